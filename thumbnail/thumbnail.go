/*
Package thumbnail implements a still image encoder for rendered frames.

Frames are scaled down to fit a bounding box, keeping their aspect ratio, and
written as PNG, GIF, JPEG, BMP or TIFF.
*/
package thumbnail

import (
	"errors"
	"path/filepath"
	"strings"
)

// Format is an output file format
type Format string

// The supported formats
const (
	PNG  Format = "png"
	GIF  Format = "gif"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

const (
	// DefaultWidth is the bounding box width used when none is given
	DefaultWidth = 160
	// DefaultHeight is the bounding box height used when none is given
	DefaultHeight = 120
)

var errFormat = errors.New("thumbnail: unsupported format")

// FormatFromPath picks the format from the extension of path
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return PNG, nil
	case ".gif":
		return GIF, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	default:
		return "", errFormat
	}
}
