package colorcycle

import (
	"errors"
	"image"
	"image/gif"
	"io"
	"time"

	"github.com/bodgit/colorcycle/indexed"
)

var errFrameRate = errors.New("colorcycle: frame rate must be between 1 and 100")

// ExportGIF writes duration of the animation of m to w as a looping GIF at
// fps frames per second. Every frame shares the layout of m, only the
// palette changes.
func ExportGIF(w io.Writer, m *indexed.Image, duration time.Duration, fps int) error {
	if fps < 1 || fps > 100 {
		return errFrameRate
	}
	if err := m.Validate(); err != nil {
		return err
	}

	n := int(duration * time.Duration(fps) / time.Second)
	if n < 1 {
		n = 1
	}

	p := m.Palette()
	g := &gif.GIF{
		Image: make([]*image.Paletted, 0, n),
		Delay: make([]int, 0, n),
	}

	for i := 0; i < n; i++ {
		// Delays are in hundredths and can't express every rate exactly, so
		// frame times are derived from the accumulated delay
		at := int64(i) * 100 / int64(fps) * 10
		frame, err := indexed.Paletted(m, p.Cycle(at))
		if err != nil {
			return err
		}
		next := int64(i+1) * 100 / int64(fps)
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, int(next-at/10))
	}

	return gif.EncodeAll(w, g)
}
