package indexed

import (
	"errors"
	"image"

	"github.com/bodgit/colorcycle/palette"
)

var errTooManyColors = errors.New("indexed: more than 256 colors")

// Render materializes m using the colour table t. The result is written to
// dst when it already has the right bounds, otherwise a new image is
// allocated. Any pixel index outside t is drawn opaque black.
func Render(dst *image.RGBA, m *Image, t palette.Table) *image.RGBA {
	r := image.Rect(0, 0, m.Width, m.Height)
	if dst == nil || dst.Rect != r {
		dst = image.NewRGBA(r)
	}

	pix := dst.Pix
	for i, p := range m.Pixels {
		o := i * 4
		if o+3 >= len(pix) {
			break
		}
		if p < 0 || p >= len(t) {
			pix[o+0], pix[o+1], pix[o+2] = 0, 0, 0
		} else {
			pix[o+0], pix[o+1], pix[o+2] = t[p].Channels()
		}
		pix[o+3] = 0xff
	}

	return dst
}

// Paletted returns m as an image.Paletted using the colour table t, which
// must have no more than 256 colours
func Paletted(m *Image, t palette.Table) (*image.Paletted, error) {
	if len(t) > maxColors {
		return nil, errTooManyColors
	}

	pm := image.NewPaletted(image.Rect(0, 0, m.Width, m.Height), t.Palette())
	for i, p := range m.Pixels {
		if i >= len(pm.Pix) {
			break
		}
		if p >= 0 && p < len(t) {
			pm.Pix[i] = uint8(p)
		}
	}
	return pm, nil
}
