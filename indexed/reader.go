package indexed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/bodgit/colorcycle/cycle"
	"github.com/bodgit/colorcycle/palette"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

var (
	errNoObject   = errors.New("indexed: no object in descriptor")
	errBadColor   = errors.New("indexed: color channel out of range")
	errBadChannel = errors.New("indexed: color needs three channels")
)

// RGB is a descriptor colour. It decodes from either [r,g,b] or
// {rgb:[r,g,b]} and always encodes as the latter.
type RGB [3]int

// UnmarshalJSON implements the json.Unmarshaler interface
func (c *RGB) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)

	var channels []int
	if len(b) > 0 && b[0] == '[' {
		if err := json5.Unmarshal(b, &channels); err != nil {
			return err
		}
	} else {
		var obj struct {
			RGB []int `json:"rgb"`
		}
		if err := json5.Unmarshal(b, &obj); err != nil {
			return err
		}
		channels = obj.RGB
	}

	if len(channels) != 3 {
		return errBadChannel
	}
	copy(c[:], channels)
	return nil
}

// MarshalJSON implements the json.Marshaler interface
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RGB [3]int `json:"rgb"`
	}{c})
}

// Color converts the descriptor colour into a packed colour
func (c RGB) Color() (palette.Color, error) {
	for _, v := range c {
		if v < 0 || v > 0xff {
			return 0, fmt.Errorf("%w: %v", errBadColor, c)
		}
	}
	return palette.RGB(uint8(c[0]), uint8(c[1]), uint8(c[2])), nil
}

// CycleDescriptor is the descriptor form of a cycle
type CycleDescriptor struct {
	Rate    int `json:"rate"`
	Reverse int `json:"reverse"`
	Low     int `json:"low"`
	High    int `json:"high"`
}

// Descriptor is the document form of an image
type Descriptor struct {
	Filename string            `json:"filename,omitempty"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Colors   []RGB             `json:"colors"`
	Cycles   []CycleDescriptor `json:"cycles"`
	Pixels   []int             `json:"pixels"`
}

// Table converts the descriptor colours
func (d *Descriptor) Table() (palette.Table, error) {
	t := make(palette.Table, len(d.Colors))
	for i, c := range d.Colors {
		col, err := c.Color()
		if err != nil {
			return nil, fmt.Errorf("color %d: %w", i, err)
		}
		t[i] = col
	}
	return t, nil
}

// Rules converts the descriptor cycles
func (d *Descriptor) Rules() []cycle.Rule {
	rules := make([]cycle.Rule, len(d.Cycles))
	for i, c := range d.Cycles {
		rules[i] = cycle.Rule{
			Rate:    c.Rate,
			Reverse: c.Reverse,
			Low:     c.Low,
			High:    c.High,
		}
	}
	return rules
}

// Image converts and validates the descriptor
func (d *Descriptor) Image() (*Image, error) {
	t, err := d.Table()
	if err != nil {
		return nil, err
	}

	m := &Image{
		Filename: d.Filename,
		Width:    d.Width,
		Height:   d.Height,
		Colors:   t,
		Cycles:   d.Rules(),
		Pixels:   d.Pixels,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Strip returns the outermost object in b, discarding any JavaScript
// wrapper such as a callback invocation around it
func Strip(b []byte) ([]byte, error) {
	start := bytes.IndexByte(b, '{')
	end := bytes.LastIndexByte(b, '}')
	if start < 0 || end < start {
		return nil, errNoObject
	}
	return b[start : end+1], nil
}

// Unmarshal parses a descriptor document into v. The document may be
// strict JSON or a JavaScript object literal, optionally wrapped, with bare
// keys, single quotes, comments and trailing commas.
func Unmarshal(b []byte, v interface{}) error {
	b, err := Strip(b)
	if err != nil {
		return err
	}
	return json5.Unmarshal(b, v)
}

// Decode reads an image descriptor from r and returns the validated image
func Decode(r io.Reader) (*Image, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var d Descriptor
	if err := Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return d.Image()
}
