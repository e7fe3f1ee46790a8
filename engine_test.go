package colorcycle

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/bodgit/colorcycle/cycle"
	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	colorA = palette.RGB(0x11, 0x22, 0x33)
	colorB = palette.RGB(0xaa, 0xbb, 0xcc)
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// 280 is one slot per second
func testImage() *indexed.Image {
	return &indexed.Image{
		Filename: "test",
		Width:    2,
		Height:   2,
		Colors:   palette.Table{colorA, colorB},
		Cycles:   []cycle.Rule{{Rate: 280, Reverse: 0, Low: 0, High: 1}},
		Pixels:   []int{0, 1, 1, 0},
	}
}

func rgba(c palette.Color) color.RGBA {
	r, g, b := c.Channels()
	return color.RGBA{r, g, b, 0xff}
}

func testEngine(t *testing.T) (*Engine, *time.Time) {
	now := epoch
	e := NewEngine(nil)
	e.now = func() time.Time { return now }
	require.NoError(t, e.SetImage(testImage()))
	return e, &now
}

func TestEngineTick(t *testing.T) {
	e, _ := testEngine(t)
	assert.Nil(t, e.CurrentFrame())

	// Not running
	e.Tick(epoch)
	assert.Nil(t, e.CurrentFrame())

	e.Start()
	assert.True(t, e.Running())

	e.Tick(epoch)
	frame := e.CurrentFrame()
	require.NotNil(t, frame)
	assert.Equal(t, image.Rect(0, 0, 2, 2), frame.Bounds())
	assert.Equal(t, rgba(colorA), frame.At(0, 0))
	assert.Equal(t, rgba(colorB), frame.At(1, 0))

	// One whole slot later the two colours have swapped
	e.Tick(epoch.Add(time.Second))
	frame = e.CurrentFrame()
	assert.Equal(t, rgba(colorB), frame.At(0, 0))
	assert.Equal(t, rgba(colorA), frame.At(1, 0))

	// Clock skew is clamped
	e.Tick(epoch.Add(-time.Hour))
	assert.Equal(t, rgba(colorA), e.CurrentFrame().At(0, 0))
	assert.Equal(t, int64(0), e.Elapsed(epoch.Add(-time.Hour)))
}

func TestEngineStrayTick(t *testing.T) {
	e, _ := testEngine(t)
	e.Start()
	e.Tick(epoch)
	before := e.CurrentFrame()

	e.Stop()
	assert.False(t, e.Running())
	e.Tick(epoch.Add(time.Second))

	assert.Equal(t, before, e.CurrentFrame())
}

func TestEngineStopDuringTick(t *testing.T) {
	e, _ := testEngine(t)
	e.Start()
	e.Tick(epoch)
	before := e.CurrentFrame()

	calls := 0
	e.OnFrame(func(*image.RGBA) {
		calls++
		e.Stop()
	})

	e.Tick(epoch.Add(time.Second))
	e.Tick(epoch.Add(2 * time.Second))

	assert.Equal(t, 1, calls)
	assert.NotEqual(t, before, e.CurrentFrame())
}

func TestEngineCurrentFrameIsCopy(t *testing.T) {
	e, _ := testEngine(t)
	e.Start()
	e.Tick(epoch)

	frame := e.CurrentFrame()
	frame.Pix[0] = 0
	assert.Equal(t, rgba(colorA), e.CurrentFrame().At(0, 0))
}

func TestEngineSetImage(t *testing.T) {
	e, now := testEngine(t)
	e.Start()

	bad := testImage()
	bad.Pixels = []int{0, 1, 2, 0}
	err := e.SetImage(bad)
	assert.True(t, errors.Is(err, indexed.ErrInvalid))
	assert.Equal(t, testImage(), e.Image())
	assert.True(t, errors.Is(e.SetImage(nil), indexed.ErrInvalid))

	// Origin resets
	*now = epoch.Add(time.Second)
	m := testImage()
	m.Width, m.Height, m.Pixels = 1, 1, []int{1}
	require.NoError(t, e.SetImage(m))
	assert.True(t, e.Running())

	e.Tick(epoch.Add(time.Second))
	frame := e.CurrentFrame()
	assert.Equal(t, image.Rect(0, 0, 1, 1), frame.Bounds())
	assert.Equal(t, rgba(colorB), frame.At(0, 0))
}

func TestEngineUpdate(t *testing.T) {
	e, now := testEngine(t)
	e.Start()

	*now = epoch.Add(time.Second)
	m := testImage()
	m.Colors = palette.Table{colorB, colorA}
	require.NoError(t, e.Update(m))

	// Clock was not reset so one slot has still elapsed
	e.Tick(epoch.Add(time.Second))
	assert.Equal(t, rgba(colorA), e.CurrentFrame().At(0, 0))

	m = testImage()
	m.Width, m.Height, m.Pixels = 1, 1, []int{0}
	assert.True(t, errors.Is(e.Update(m), indexed.ErrInvalid))

	assert.Error(t, NewEngine(nil).Update(testImage()))
}

func TestEngineUnknownMode(t *testing.T) {
	e, _ := testEngine(t)
	m := testImage()
	m.Cycles[0].Reverse = 9
	require.NoError(t, e.SetImage(m))

	e.Start()
	e.Tick(epoch.Add(time.Second))
	assert.Equal(t, rgba(colorA), e.CurrentFrame().At(0, 0))
}

func TestEngineSubscription(t *testing.T) {
	e, _ := testEngine(t)
	e.Start()

	var first, second int
	s1 := e.OnFrame(func(frame *image.RGBA) {
		assert.Equal(t, image.Rect(0, 0, 2, 2), frame.Bounds())
		first++
	})
	e.OnFrame(func(*image.RGBA) { second++ })

	e.Tick(epoch)
	s1.Unsubscribe()
	s1.Unsubscribe()
	e.Tick(epoch)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

type fakeTicker struct {
	c       chan time.Time
	stopped bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped = true }

func TestEngineRun(t *testing.T) {
	e, _ := testEngine(t)
	e.Start()

	ctx, cancel := context.WithCancel(context.Background())
	ticker := &fakeTicker{c: make(chan time.Time)}

	frames := make(chan *image.RGBA, 2)
	e.OnFrame(func(frame *image.RGBA) {
		frames <- frame
		if len(frames) == 2 {
			cancel()
		}
	})

	done := make(chan error)
	go func() {
		done <- e.Run(ctx, ticker)
	}()

	ticker.c <- epoch
	ticker.c <- epoch.Add(time.Second)

	assert.True(t, errors.Is(<-done, context.Canceled))
	assert.True(t, ticker.stopped)
	assert.Len(t, frames, 2)
}
