/*
Package timeline implements images whose palette changes over the course of a
day.

A timeline is a base image plus a set of palettes, each pinned to a time of
day. Resolving the timeline at a given time blends the palettes either side
of it, so a scene can drift from dawn to dusk while its cycles keep running.
*/
package timeline

import (
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bodgit/colorcycle/cycle"
	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/palette"
)

const day = 24 * time.Hour

var errLabel = errors.New("timeline: invalid time label")

// Descriptor is the document form of a timeline
type Descriptor struct {
	Base         indexed.Descriptor            `json:"base"`
	BaseFilename string                        `json:"basefilename"`
	Times        map[string]indexed.Descriptor `json:"times"`
}

type entry struct {
	label  string
	at     time.Duration
	colors palette.Table
	cycles []cycle.Rule
}

// Timeline is a base image with palettes keyed by time of day
type Timeline struct {
	base     *indexed.Image
	filename string
	entries  []entry
}

// ParseLabel parses a time label. Labels are either a number of seconds
// since midnight or an HH:MM or HH:MM:SS clock time.
func ParseLabel(s string) (time.Duration, error) {
	var d time.Duration

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("%w: %q", errLabel, s)
		}
		units := []time.Duration{time.Hour, time.Minute, time.Second}
		for i, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 || i > 0 && n > 59 {
				return 0, fmt.Errorf("%w: %q", errLabel, s)
			}
			d += time.Duration(n) * units[i]
		}
	} else {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", errLabel, s)
		}
		d = time.Duration(n) * time.Second
	}

	if d >= day {
		return 0, fmt.Errorf("%w: %q is not within a day", errLabel, s)
	}
	return d, nil
}

// New builds a timeline from a base image and a set of labelled palettes.
// Each palette must have as many colours as the base; when it has no
// cycles the base cycles are used. No two labels may name the same time.
func New(base *indexed.Image, filename string, times map[string]*indexed.Descriptor) (*Timeline, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}

	t := &Timeline{
		base:     base,
		filename: filename,
		entries:  make([]entry, 0, len(times)),
	}

	for label, d := range times {
		at, err := ParseLabel(label)
		if err != nil {
			return nil, err
		}

		colors, err := d.Table()
		if err != nil {
			return nil, fmt.Errorf("time %s: %w", label, err)
		}
		if len(colors) != len(base.Colors) {
			return nil, fmt.Errorf("%w: time %s has %d colors, base has %d", indexed.ErrInvalid, label, len(colors), len(base.Colors))
		}

		cycles := d.Rules()
		if len(cycles) == 0 {
			cycles = base.Cycles
		}
		if err := indexed.ValidateCycles(cycles, len(colors)); err != nil {
			return nil, fmt.Errorf("time %s: %w", label, err)
		}

		t.entries = append(t.entries, entry{
			label:  label,
			at:     at,
			colors: colors,
			cycles: cycles,
		})
	}

	sort.Slice(t.entries, func(i, j int) bool { return t.entries[i].at < t.entries[j].at })

	for i := 1; i < len(t.entries); i++ {
		if prev, e := t.entries[i-1], t.entries[i]; prev.at == e.at {
			first, second := prev.label, e.label
			if second < first {
				first, second = second, first
			}
			return nil, fmt.Errorf("%w: times %s and %s are both %v after midnight", errLabel, first, second, e.at)
		}
	}

	return t, nil
}

// Decode reads a timeline descriptor from r
func Decode(r io.Reader) (*Timeline, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var d Descriptor
	if err := indexed.Unmarshal(b, &d); err != nil {
		return nil, err
	}

	base, err := d.Base.Image()
	if err != nil {
		return nil, err
	}

	times := make(map[string]*indexed.Descriptor, len(d.Times))
	for label := range d.Times {
		td := d.Times[label]
		times[label] = &td
	}

	return New(base, d.BaseFilename, times)
}

// Base returns the base image
func (t *Timeline) Base() *indexed.Image {
	return t.base
}

// Labels returns the time labels in time order
func (t *Timeline) Labels() []string {
	labels := make([]string, len(t.entries))
	for i, e := range t.entries {
		labels[i] = e.label
	}
	return labels
}

func (t *Timeline) image(colors palette.Table, cycles []cycle.Rule) *indexed.Image {
	filename := t.filename
	if filename == "" {
		filename = t.base.Filename
	}
	return &indexed.Image{
		Filename: filename,
		Width:    t.base.Width,
		Height:   t.base.Height,
		Colors:   colors,
		Cycles:   cycles,
		Pixels:   t.base.Pixels,
	}
}

// At resolves the timeline at offset since midnight. The palettes either
// side of offset are blended by how far offset is between them, wrapping
// round midnight. The cycles of the earlier palette are used.
func (t *Timeline) At(offset time.Duration) *indexed.Image {
	if offset %= day; offset < 0 {
		offset += day
	}

	switch len(t.entries) {
	case 0:
		return t.image(t.base.Colors, t.base.Cycles)
	case 1:
		return t.image(t.entries[0].colors, t.entries[0].cycles)
	}

	n := len(t.entries)
	i := sort.Search(n, func(i int) bool { return t.entries[i].at > offset })
	prev, next := t.entries[(i+n-1)%n], t.entries[i%n]

	span := next.at - prev.at
	if span <= 0 {
		span += day
	}
	since := offset - prev.at
	if since < 0 {
		since += day
	}
	percent := int(since * 100 / span)

	p := palette.New(t.base.Colors, prev.cycles).Blend(palette.New(prev.colors, nil), palette.New(next.colors, nil), percent)

	return t.image(p.Base(), p.Cycles())
}

// AtTime resolves the timeline at the wall clock time of tm
func (t *Timeline) AtTime(tm time.Time) *indexed.Image {
	h, m, s := tm.Clock()
	offset := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second + time.Duration(tm.Nanosecond())
	return t.At(offset)
}
