/*
Package cycle implements the colour cycling rules attached to an indexed
image.

A rule names an inclusive range of palette slots and a rate. As time passes
the colours within the range are rotated, either continuously in one
direction, back and forth, or following a sine wave. The rotation amount is
fractional; the palette package blends between neighbouring slots to smooth
the motion.

Amounts are computed in fixed-point with two decimal places so the result is
identical whether the animation has been running for a second or a year.
*/
package cycle

import (
	"math"
	"math/bits"
)

const (
	// Speed is the legacy tuning constant that rates are divided by
	Speed = 280

	precision = 100

	// elapsed * rate / divisor == floor(elapsed / (1000 / (rate / Speed)) * precision)
	divisor = 1000 * Speed / precision
)

// Mode is the direction of a cycle
type Mode int

// The supported modes, derived from the legacy "reverse" code of a rule
const (
	Disabled Mode = iota
	Forward
	Reverse
	PingPong
	SineQuarter
	SineHalf
)

var modeNames = [...]string{
	Disabled:    "disabled",
	Forward:     "forward",
	Reverse:     "reverse",
	PingPong:    "ping-pong",
	SineQuarter: "sine-quarter",
	SineHalf:    "sine-half",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return "unknown"
	}
	return modeNames[m]
}

// ModeFromCode maps a legacy reverse code onto a Mode. Codes 0 and 1 both
// cycle forwards. Any code outside 0-5 returns Disabled and false.
func ModeFromCode(code int) (Mode, bool) {
	switch code {
	case 0, 1:
		return Forward, true
	case 2:
		return Reverse, true
	case 3:
		return PingPong, true
	case 4:
		return SineQuarter, true
	case 5:
		return SineHalf, true
	default:
		return Disabled, false
	}
}

// Rule is a single cycle over the palette slots Low to High inclusive
type Rule struct {
	Rate    int
	Reverse int
	Low     int
	High    int
}

// Size returns the number of palette slots covered by the rule
func (r Rule) Size() int {
	return r.High - r.Low + 1
}

// Mode returns the mode selected by the legacy reverse code
func (r Rule) Mode() Mode {
	m, _ := ModeFromCode(r.Reverse)
	return m
}

// Active reports whether the rule has any effect
func (r Rule) Active() bool {
	return r.Rate > 0 && r.Size() > 0 && r.Mode() != Disabled
}

// fixed returns floor(elapsed*rate/divisor) mod modulus. The product is held
// in 128 bits so it cannot overflow.
func fixed(elapsed int64, rate int, modulus int) int64 {
	d := uint64(divisor)
	hi, lo := bits.Mul64(uint64(elapsed), uint64(rate))
	return int64(bits.Rem64(hi, lo, d*uint64(modulus)) / d)
}

// ShiftAmount returns how many slots the range has rotated after elapsed
// milliseconds. Negative elapsed time is treated as zero. Inactive rules
// always return 0.
func (r Rule) ShiftAmount(elapsed int64) float64 {
	if !r.Active() {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	size := r.Size()

	switch m := r.Mode(); m {
	case PingPong:
		amount := float64(fixed(elapsed, r.Rate, size*2*precision)) / precision
		if amount >= float64(size) {
			amount = float64(size*2) - amount
		}
		return amount
	case SineQuarter, SineHalf:
		amount := float64(fixed(elapsed, r.Rate, size*precision)) / precision
		amount = math.Sin(amount*math.Pi*2/float64(size)) + 1
		if m == SineQuarter {
			return amount * float64(size) / 4
		}
		return amount * float64(size) / 2
	default:
		return float64(fixed(elapsed, r.Rate, size*precision)) / precision
	}
}

// Period returns the number of milliseconds after which the forward
// amount repeats. It is zero for inactive rules.
func (r Rule) Period() float64 {
	if !r.Active() {
		return 0
	}
	return float64(r.Size()) * 1000 * Speed / float64(r.Rate)
}
