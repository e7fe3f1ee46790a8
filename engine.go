package colorcycle

import (
	"context"
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"sync"
	"time"

	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/palette"
)

// Ticker is a source of ticks for Engine.Run
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t timeTicker) Stop() {
	t.t.Stop()
}

// NewTicker returns a Ticker that ticks every interval
func NewTicker(interval time.Duration) Ticker {
	return timeTicker{time.NewTicker(interval)}
}

type subscriber struct {
	id uint64
	fn func(*image.RGBA)
}

// Subscription is returned by Engine.OnFrame
type Subscription struct {
	engine *Engine
	id     uint64
	once   sync.Once
}

// Unsubscribe stops any further frames being delivered. It is safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		e := s.engine
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subscribers {
			if sub.id == s.id {
				e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
				break
			}
		}
	})
}

// Engine animates one image at a time. Each tick cycles the palette by the
// time elapsed since the engine was started and renders the result to a
// frame that is then delivered to every subscriber.
type Engine struct {
	// Held for the whole of a tick
	tickMu sync.Mutex
	back   *image.RGBA

	mu          sync.Mutex
	image       *indexed.Image
	palette     *palette.Palette
	origin      time.Time
	running     bool
	generation  uint64
	frame       *image.RGBA
	subscribers []subscriber
	nextID      uint64

	logger *log.Logger
	now    func() time.Time
}

// NewEngine returns a stopped Engine with no image
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return &Engine{
		logger: logger,
		now:    time.Now,
	}
}

// Start starts the clock. Starting a running engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.origin = e.now()
	e.generation++
}

// Stop stops the clock. Any tick already in progress is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running = false
	e.generation++
}

// Running reports whether the engine is started
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) logDisabled(m *indexed.Image) {
	for _, i := range m.DisabledCycles() {
		e.logger.Printf("Cycle %d of \"%s\" has unknown mode %d, disabling\n", i, m.Filename, m.Cycles[i].Reverse)
	}
}

// SetImage replaces the image and restarts the clock from zero. An invalid
// image returns an error and leaves the current image in place.
func (e *Engine) SetImage(m *indexed.Image) error {
	if err := m.Validate(); err != nil {
		return err
	}
	e.logDisabled(m)
	p := m.Palette()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.image = m
	e.palette = p
	e.origin = e.now()
	e.generation++

	return nil
}

// Update replaces the image without resetting the clock, such as when a
// timeline palette is resolved again. The new image must be the same size
// as the current one.
func (e *Engine) Update(m *indexed.Image) error {
	if err := m.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.image == nil {
		return fmt.Errorf("%w: no image to update", indexed.ErrInvalid)
	}
	if e.image.Width != m.Width || e.image.Height != m.Height {
		return fmt.Errorf("%w: size %dx%d differs from %dx%d", indexed.ErrInvalid, m.Width, m.Height, e.image.Width, e.image.Height)
	}

	e.logDisabled(m)
	e.image = m
	e.palette = m.Palette()
	e.generation++

	return nil
}

// Image returns the current image
func (e *Engine) Image() *indexed.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.image
}

// Elapsed returns the animation time at now in milliseconds, clamped to
// zero
func (e *Engine) Elapsed(now time.Time) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return elapsed(e.origin, now)
}

func elapsed(origin, now time.Time) int64 {
	ms := now.Sub(origin).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Tick renders the frame for now and delivers it to the subscribers. It
// does nothing unless the engine is running with an image. Subscribers must
// not call Tick.
func (e *Engine) Tick(now time.Time) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if !e.running || e.palette == nil {
		e.mu.Unlock()
		return
	}
	generation, m, p := e.generation, e.image, e.palette
	ms := elapsed(e.origin, now)
	e.mu.Unlock()

	frame := indexed.Render(e.back, m, p.Cycle(ms))

	e.mu.Lock()
	if !e.running || e.generation != generation {
		e.mu.Unlock()
		e.back = frame
		return
	}
	e.back, e.frame = e.frame, frame
	subscribers := make([]subscriber, len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mu.Unlock()

	for _, s := range subscribers {
		s.fn(frame)
	}
}

// OnFrame registers fn to be called with every new frame. The frame is only
// valid until fn returns.
func (e *Engine) OnFrame(fn func(*image.RGBA)) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.subscribers = append(e.subscribers, subscriber{e.nextID, fn})

	return &Subscription{
		engine: e,
		id:     e.nextID,
	}
}

// CurrentFrame returns a copy of the last frame, or nil if there isn't one
func (e *Engine) CurrentFrame() *image.RGBA {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.frame == nil {
		return nil
	}
	frame := *e.frame
	frame.Pix = make([]uint8, len(e.frame.Pix))
	copy(frame.Pix, e.frame.Pix)
	return &frame
}

// Run ticks the engine from t until ctx is cancelled. t is stopped before
// returning.
func (e *Engine) Run(ctx context.Context, t Ticker) error {
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C():
			e.Tick(now)
		}
	}
}
