package thumbnail

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Options controls the size and format of the encoded image. A zero
// Width and Height leaves the image at its original size.
type Options struct {
	Width  int
	Height int
	Format Format
}

// Fit returns the largest size with the aspect ratio of r that fits within
// width by height. A zero width or height is unconstrained.
func Fit(r image.Rectangle, width, height int) image.Rectangle {
	dx, dy := r.Dx(), r.Dy()
	if dx <= 0 || dy <= 0 || width <= 0 && height <= 0 {
		return image.Rect(0, 0, dx, dy)
	}

	w, h := width, height
	switch {
	case w <= 0:
		w = dx * h / dy
	case h <= 0:
		h = dy * w / dx
	case dx*h > dy*w:
		h = dy * w / dx
	default:
		w = dx * h / dy
	}

	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return image.Rect(0, 0, w, h)
}

// Scale resizes m to fit within width by height. Enlarging keeps hard pixel
// edges, shrinking is filtered.
func Scale(m image.Image, width, height int) image.Image {
	sr := m.Bounds()
	dr := Fit(sr, width, height)
	if dr.Dx() == sr.Dx() && dr.Dy() == sr.Dy() {
		return m
	}

	var s draw.Scaler = draw.CatmullRom
	if dr.Dx() > sr.Dx() {
		s = draw.NearestNeighbor
	}

	dst := image.NewRGBA(dr)
	s.Scale(dst, dr, m, sr, draw.Src, nil)
	return dst
}

// Encode writes m to w, scaled and in the format given by o. A nil o
// writes a PNG at the default size.
func Encode(w io.Writer, m image.Image, o *Options) error {
	if o == nil {
		o = &Options{
			Width:  DefaultWidth,
			Height: DefaultHeight,
			Format: PNG,
		}
	}

	m = Scale(m, o.Width, o.Height)

	switch o.Format {
	case PNG, "":
		return png.Encode(w, m)
	case GIF:
		return gif.Encode(w, m, &gif.Options{
			NumColors: 256,
			Quantizer: &quantize.MedianCutQuantizer{},
		})
	case JPEG:
		return jpeg.Encode(w, m, &jpeg.Options{Quality: 95})
	case BMP:
		return bmp.Encode(w, m)
	case TIFF:
		return tiff.Encode(w, m, nil)
	default:
		return errFormat
	}
}
