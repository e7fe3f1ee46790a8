/*
Package screen displays animation frames on a terminal.

Each terminal cell shows two vertically stacked pixels using the upper half
block character, the top pixel as the foreground colour and the bottom pixel
as the background colour. Frames are scaled to fit the terminal keeping their
aspect ratio and centred on a background colour.
*/
package screen

import (
	"image"
	"sync"

	"github.com/bodgit/colorcycle/thumbnail"
	"github.com/gdamore/tcell/v2"
	"golang.org/x/image/draw"
)

const halfBlock = '▀'

// Sink draws frames to a tcell screen
type Sink struct {
	mu     sync.Mutex
	screen tcell.Screen
	bg     tcell.Color
	buf    *image.RGBA
}

// NewSink returns a Sink drawing to s, filling any cells not covered by the
// frame with bg.
func NewSink(s tcell.Screen, bg tcell.Color) *Sink {
	return &Sink{
		screen: s,
		bg:     bg,
	}
}

// Layout returns the area of the screen, in pixels, that a frame of size r
// occupies on a screen of w by h cells.
func Layout(r image.Rectangle, w, h int) image.Rectangle {
	if w <= 0 || h <= 0 || r.Empty() {
		return image.Rectangle{}
	}

	fit := thumbnail.Fit(r, w, h*2)
	off := image.Pt((w-fit.Dx())/2, (h*2-fit.Dy())/2)
	// Keep the frame starting on a cell boundary
	off.Y &^= 1

	return fit.Add(off)
}

func (s *Sink) scale(frame *image.RGBA, dr image.Rectangle) *image.RGBA {
	if dr.Dx() == frame.Rect.Dx() && dr.Dy() == frame.Rect.Dy() {
		return frame
	}

	if s.buf == nil || s.buf.Rect.Dx() != dr.Dx() || s.buf.Rect.Dy() != dr.Dy() {
		s.buf = image.NewRGBA(image.Rect(0, 0, dr.Dx(), dr.Dy()))
	}
	draw.NearestNeighbor.Scale(s.buf, s.buf.Rect, frame, frame.Rect, draw.Src, nil)

	return s.buf
}

func (s *Sink) pixel(m *image.RGBA, area image.Rectangle, x, y int) tcell.Color {
	p := image.Pt(x, y)
	if !p.In(area) {
		return s.bg
	}
	p = p.Sub(area.Min).Add(m.Rect.Min)
	i := m.PixOffset(p.X, p.Y)
	return tcell.NewRGBColor(int32(m.Pix[i]), int32(m.Pix[i+1]), int32(m.Pix[i+2]))
}

// Draw scales frame to the screen and shows it. It is safe to use as an
// Engine frame callback.
func (s *Sink) Draw(frame *image.RGBA) {
	if frame == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := s.screen.Size()
	area := Layout(frame.Rect, w, h)
	if area.Empty() {
		return
	}
	m := s.scale(frame, area)

	for cy := 0; cy < h; cy++ {
		for cx := 0; cx < w; cx++ {
			style := tcell.StyleDefault.
				Foreground(s.pixel(m, area, cx, cy*2)).
				Background(s.pixel(m, area, cx, cy*2+1))
			s.screen.SetContent(cx, cy, halfBlock, nil, style)
		}
	}

	s.screen.Show()
}
