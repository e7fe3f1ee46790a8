/*
Package palette implements the colour table of an indexed image and the
recomputation of that table as its cycles advance.

Each call to Cycle starts again from the immutable base table, so the colours
at any point in time depend only on the elapsed time and never on a previous
frame.
*/
package palette

import (
	"image/color"
	"math"

	"github.com/bodgit/colorcycle/cycle"
)

const fadeScale = 100

// Color is a packed 0xRRGGBB value. It implements color.Color and is
// always opaque.
type Color uint32

// RGB packs the three channels into a Color
func RGB(r, g, b uint8) Color {
	return Color(uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// Channels returns the red, green and blue components
func (c Color) Channels() (r, g, b uint8) {
	return uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// RGBA implements the color.Color interface
func (c Color) RGBA() (r, g, b, a uint32) {
	r8, g8, b8 := c.Channels()
	r = uint32(r8) * 0x101
	g = uint32(g8) * 0x101
	b = uint32(b8) * 0x101
	a = 0xffff
	return
}

// Table is an ordered sequence of colours
type Table []Color

// Palette converts the table into a color.Palette
func (t Table) Palette() color.Palette {
	p := make(color.Palette, len(t))
	for i, c := range t {
		p[i] = c
	}
	return p
}

func blendChannel(src, dst uint8, amount int) uint32 {
	// Integer division truncates towards zero, fades depend on it
	return uint32(int(src) + (int(dst)-int(src))*amount/fadeScale)
}

// Fade mixes amount percent of dst into src. Amounts outside 0 to 100 are
// clamped.
func Fade(src, dst Color, amount int) Color {
	switch {
	case amount < 0:
		amount = 0
	case amount > fadeScale:
		amount = fadeScale
	}

	sr, sg, sb := src.Channels()
	dr, dg, db := dst.Channels()
	return Color(blendChannel(sr, dr, amount)<<16 | blendChannel(sg, dg, amount)<<8 | blendChannel(sb, db, amount))
}

func reverse(t Table) {
	for i, j := 0, len(t)-1; i < j; i, j = i+1, j-1 {
		t[i], t[j] = t[j], t[i]
	}
}

// rotate moves every colour n places towards the end of t, wrapping the
// last n colours round to the start
func rotate(t Table, n int) {
	if len(t) == 0 {
		return
	}
	if n %= len(t); n < 0 {
		n += len(t)
	}
	if n == 0 {
		return
	}
	reverse(t)
	reverse(t[:n])
	reverse(t[n:])
}

// BlendShift rotates the colours between low and high inclusive by amount
// slots. When amount is fractional the slot that will be shifted next is
// first faded towards its neighbour. Amounts of zero or less and empty
// ranges leave t untouched.
func BlendShift(t Table, low, high int, amount float64) {
	if amount <= 0 || high < low {
		return
	}

	size := high - low + 1
	n := int(math.Floor(amount))
	frac := amount - float64(n)

	if frac > 0 {
		i1 := (low+n)%size + low
		i2 := (low+n+1)%size + low
		t[i1] = Fade(t[i1], t[i2], int(math.Round(frac*fadeScale)))
	}

	rotate(t[low:high+1], n)
}

// Palette holds an immutable base table and the cycles applied to it
type Palette struct {
	base   Table
	colors Table
	cycles []cycle.Rule
}

// New returns a Palette for the base colours and cycles. Both are copied.
func New(base Table, cycles []cycle.Rule) *Palette {
	p := &Palette{
		base:   append(Table(nil), base...),
		colors: make(Table, len(base)),
		cycles: append([]cycle.Rule(nil), cycles...),
	}
	copy(p.colors, p.base)
	return p
}

// Base returns a copy of the base table
func (p *Palette) Base() Table {
	return append(Table(nil), p.base...)
}

// Cycles returns a copy of the cycles
func (p *Palette) Cycles() []cycle.Rule {
	return append([]cycle.Rule(nil), p.cycles...)
}

// Len returns the number of colours
func (p *Palette) Len() int {
	return len(p.base)
}

// Cycle recomputes the colour table after elapsed milliseconds. Cycles are
// applied in order, each one seeing the result of the ones before it. The
// returned table is reused by the next call.
func (p *Palette) Cycle(elapsed int64) Table {
	copy(p.colors, p.base)

	for _, c := range p.cycles {
		if !c.Active() || c.Low < 0 || c.High >= len(p.colors) {
			continue
		}

		amount := c.ShiftAmount(elapsed)
		span := p.colors[c.Low : c.High+1]

		if c.Mode() == cycle.Reverse {
			reverse(span)
			BlendShift(p.colors, c.Low, c.High, amount)
			reverse(span)
			continue
		}

		BlendShift(p.colors, c.Low, c.High, amount)
	}

	return p.colors
}

// Blend returns a new Palette whose base colours are faded percent of the
// way from previous to next, keeping the cycles of p. Both palettes must
// be the same length as p.
func (p *Palette) Blend(previous, next *Palette, percent int) *Palette {
	mixed := make(Table, len(p.base))
	for i := range mixed {
		mixed[i] = Fade(previous.base[i], next.base[i], percent)
	}
	return New(mixed, p.cycles)
}
