package units

import (
	"math"
	"strconv"
	"strings"
)

// Mode selects the post-conversion rounding policy.
type Mode int

const (
	// Raw leaves the computed value untouched.
	Raw Mode = iota
	// Truncate drops the fractional part (toward zero).
	Truncate
	// Round rounds to the nearest integer, halves away from zero.
	Round
)

func (m Mode) String() string {
	switch m {
	case Truncate:
		return "truncate"
	case Round:
		return "round"
	default:
		return "raw"
	}
}

// ModeFromFlags maps the wire flags onto a Mode. Truncation wins when both
// flags are set.
func ModeFromFlags(wholeNumber, roundOff bool) Mode {
	switch {
	case wholeNumber:
		return Truncate
	case roundOff:
		return Round
	default:
		return Raw
	}
}

// Apply applies the rounding policy without formatting.
func (m Mode) Apply(v float64) float64 {
	switch m {
	case Truncate:
		return math.Trunc(v)
	case Round:
		return math.Round(v)
	}
	return v
}

// Format renders v after applying mode, using the shortest decimal form that
// round-trips: integral values carry no fraction ("250"), negative zero is
// printed as "0", and non-finite values print as "NaN", "+Inf" or "-Inf".
func Format(v float64, mode Mode) string {
	v = mode.Apply(v)
	if v == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseValue parses a cell as a decimal float64. Hex floats and digit
// separators are rejected even though strconv accepts them.
func ParseValue(s string) (float64, bool) {
	if strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
