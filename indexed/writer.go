package indexed

import (
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"io"

	"github.com/bodgit/colorcycle/palette"
	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/draw"
)

const maxColors = 256

var errColors = errors.New("indexed: colors must be between 1 and 256")

// Descriptor returns the document form of the image
func (m *Image) Descriptor() *Descriptor {
	d := &Descriptor{
		Filename: m.Filename,
		Width:    m.Width,
		Height:   m.Height,
		Colors:   make([]RGB, len(m.Colors)),
		Cycles:   make([]CycleDescriptor, len(m.Cycles)),
		Pixels:   m.Pixels,
	}
	for i, c := range m.Colors {
		r, g, b := c.Channels()
		d.Colors[i] = RGB{int(r), int(g), int(b)}
	}
	for i, c := range m.Cycles {
		d.Cycles[i] = CycleDescriptor{
			Rate:    c.Rate,
			Reverse: c.Reverse,
			Low:     c.Low,
			High:    c.High,
		}
	}
	return d
}

// Encode writes the image m to w as a JSON descriptor
func Encode(w io.Writer, m *Image) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(m.Descriptor())
}

// Convert turns an ordinary image into an indexed image of no more than n
// colours with no cycles. Images that already use a small enough palette
// keep it, anything else is quantized, optionally with dithering.
func Convert(m image.Image, n int, dither bool) (*Image, error) {
	if n < 1 || n > maxColors {
		return nil, errColors
	}

	b := m.Bounds()
	r := image.Rect(0, 0, b.Dx(), b.Dy())

	pm, _ := m.(*image.Paletted)
	if pm == nil || len(pm.Palette) > n {
		q := quantize.MedianCutQuantizer{}
		pm = image.NewPaletted(r, q.Quantize(make(color.Palette, 0, n), m))
		if dither {
			draw.FloydSteinberg.Draw(pm, r, m, b.Min)
		} else {
			draw.Draw(pm, r, m, b.Min, draw.Src)
		}
	}

	// Adjust image so that top-left corner is at (0, 0)
	if pm.Rect.Min != (image.Point{}) {
		dup := *pm
		dup.Rect = dup.Rect.Sub(dup.Rect.Min)
		pm = &dup
	}

	out := &Image{
		Width:  r.Dx(),
		Height: r.Dy(),
		Colors: make(palette.Table, len(pm.Palette)),
		Pixels: make([]int, r.Dx()*r.Dy()),
	}

	for i, c := range pm.Palette {
		nc := color.NRGBAModel.Convert(c).(color.NRGBA)
		out.Colors[i] = palette.RGB(nc.R, nc.G, nc.B)
	}

	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			out.Pixels[y*r.Dx()+x] = int(pm.ColorIndexAt(x, y))
		}
	}

	return out, nil
}
