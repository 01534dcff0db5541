package units

import (
	"math"
	"testing"
)

func TestModeFromFlags(t *testing.T) {
	tests := []struct {
		whole, round bool
		want         Mode
	}{
		{false, false, Raw},
		{true, false, Truncate},
		{false, true, Round},
		{true, true, Truncate},
	}
	for _, tt := range tests {
		if got := ModeFromFlags(tt.whole, tt.round); got != tt.want {
			t.Errorf("ModeFromFlags(%v, %v) = %v, want %v", tt.whole, tt.round, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		v    float64
		mode Mode
		want string
	}{
		{"integral", 250, Raw, "250"},
		{"fraction", 3.81, Raw, "3.81"},
		{"shortest repr", 0.1 + 0.2, Raw, "0.30000000000000004"},
		{"large no exponent", 1e21, Raw, "1000000000000000000000"},
		{"small no exponent", 1e-7, Raw, "0.0000001"},
		{"round half up", 2.5, Round, "3"},
		{"round half away from zero", -2.5, Round, "-3"},
		{"round down", 2.49, Round, "2"},
		{"truncate", 2.99, Truncate, "2"},
		{"truncate negative", -2.99, Truncate, "-2"},
		{"negative zero from truncate", -0.7, Truncate, "0"},
		{"negative zero from round", -0.4, Round, "0"},
		{"negative zero raw", math.Copysign(0, -1), Raw, "0"},
		{"nan", math.NaN(), Round, "NaN"},
		{"inf", math.Inf(1), Truncate, "+Inf"},
		{"neg inf", math.Inf(-1), Raw, "-Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.v, tt.mode); got != tt.want {
				t.Errorf("Format(%v, %v) = %q, want %q", tt.v, tt.mode, got, tt.want)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if Raw.String() != "raw" || Truncate.String() != "truncate" || Round.String() != "round" {
		t.Errorf("unexpected mode names: %s %s %s", Raw, Truncate, Round)
	}
}

func TestParseValue(t *testing.T) {
	ok := map[string]float64{
		"1":       1,
		"-2.5":    -2.5,
		"+3":      3,
		".5":      0.5,
		"1e3":     1000,
		"1E-2":    0.01,
		"0012.50": 12.5,
	}
	for in, want := range ok {
		got, parsed := ParseValue(in)
		if !parsed || got != want {
			t.Errorf("ParseValue(%q) = %v, %v; want %v, true", in, got, parsed, want)
		}
	}

	if v, parsed := ParseValue("inf"); !parsed || !math.IsInf(v, 1) {
		t.Errorf("ParseValue(inf) = %v, %v", v, parsed)
	}

	bad := []string{"", " ", "abc", "1,5", "0x1p-2", "1_000", "1e999", " 1", "1 ", "--1"}
	for _, in := range bad {
		if _, parsed := ParseValue(in); parsed {
			t.Errorf("ParseValue(%q) parsed, want failure", in)
		}
	}
}
