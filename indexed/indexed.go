/*
Package indexed implements the indexed-colour image that colour cycling
operates on, along with its descriptor decoder and encoder.

An image is a row-major grid of palette indices, the base colour table those
indices refer to, and an ordered list of cycles. Descriptors are the JSON
documents published by the classic canvas colour cycling demos:

	{filename:'V08.LBM', width:640, height:480,
	 colors:[[0,0,0], ...],
	 cycles:[{reverse:0, rate:2560, low:32, high:47}, ...],
	 pixels:[...]}

The decoder accepts the JavaScript flavour of these documents as well as
strict JSON.
*/
package indexed

import (
	"errors"
	"fmt"

	"github.com/bodgit/colorcycle/cycle"
	"github.com/bodgit/colorcycle/palette"
)

const (
	defaultWidth  = 640
	defaultHeight = 480
	defaultColors = 256
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("indexed: invalid image")

// Image is an indexed-colour image with its cycles
type Image struct {
	Filename string
	Width    int
	Height   int
	Colors   palette.Table
	Cycles   []cycle.Rule
	Pixels   []int
}

func invalid(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...))
}

// ValidateCycles checks every cycle fits within a table of n colours
func ValidateCycles(cycles []cycle.Rule, n int) error {
	for i, c := range cycles {
		switch {
		case c.Rate < 0:
			return invalid("cycle %d has negative rate %d", i, c.Rate)
		case c.Low < 0, c.High >= n:
			return invalid("cycle %d range %d-%d outside %d colors", i, c.Low, c.High, n)
		case c.Low > c.High:
			return invalid("cycle %d low %d greater than high %d", i, c.Low, c.High)
		}
	}
	return nil
}

// Validate checks the image is internally consistent
func (m *Image) Validate() error {
	if m == nil {
		return invalid("no image")
	}
	if m.Width <= 0 || m.Height <= 0 {
		return invalid("bad dimensions %dx%d", m.Width, m.Height)
	}
	if len(m.Colors) == 0 {
		return invalid("empty color table")
	}
	if len(m.Pixels) != m.Width*m.Height {
		return invalid("%d pixels for %dx%d", len(m.Pixels), m.Width, m.Height)
	}
	for i, p := range m.Pixels {
		if p < 0 || p >= len(m.Colors) {
			return invalid("pixel %d index %d outside %d colors", i, p, len(m.Colors))
		}
	}
	return ValidateCycles(m.Cycles, len(m.Colors))
}

// Palette returns a new Palette built from the colours and cycles
func (m *Image) Palette() *palette.Palette {
	return palette.New(m.Colors, m.Cycles)
}

// DisabledCycles returns the indices of cycles that have a rate but an
// unrecognised mode code
func (m *Image) DisabledCycles() []int {
	var disabled []int
	for i, c := range m.Cycles {
		if _, ok := cycle.ModeFromCode(c.Reverse); c.Rate > 0 && !ok {
			disabled = append(disabled, i)
		}
	}
	return disabled
}

// Default returns a black 640x480 image with no cycles, used when nothing
// else can be loaded
func Default() *Image {
	return &Image{
		Filename: "default",
		Width:    defaultWidth,
		Height:   defaultHeight,
		Colors:   make(palette.Table, defaultColors),
		Pixels:   make([]int, defaultWidth*defaultHeight),
	}
}
