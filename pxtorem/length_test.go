package pxtorem

import "testing"

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		root      float64
		precision int
		min       float64
		want      string
		outcome   outcome
	}{
		{"exact", "75px", 75, 5, 0, "1rem", converted},
		{"half", "37.5px", 75, 2, 0, "0.5rem", converted},
		{"zero", "0px", 16, 5, 0, "0", converted},
		{"negative zero", "-0px", 16, 5, 0, "0", converted},
		{"fraction", "1px", 16, 5, 0, "0.0625rem", converted},
		{"round down", "1px", 3, 5, 0, "0.33333rem", converted},
		{"round up", "2px", 3, 5, 0, "0.66667rem", converted},
		{"negative", "-2px", 3, 5, 0, "-0.66667rem", converted},
		{"leading plus", "+.5px", 1, 5, 0, "0.5rem", converted},
		{"exponent", "1e2px", 100, 5, 0, "1rem", converted},
		{"precision zero truncates to zero", "1px", 16, 0, 0, "0", converted},
		{"precision zero rounds half away", "8px", 16, 0, 0, "1rem", converted},
		{"precision zero negative", "-8px", 16, 0, 0, "-1rem", converted},
		{"carry into integer", "9.99px", 1, 1, 0, "10rem", converted},
		{"tiny becomes zero", "0.00001px", 16, 5, 0, "0", converted},
		{"at minimum", "2px", 16, 5, 2, "0.125rem", converted},
		{"below minimum", "1px", 16, 5, 2, "1px", belowMinimum},
		{"negative below minimum", "-1px", 16, 5, 2, "-1px", belowMinimum},
		{"uppercase unit", "10PX", 16, 5, 0, "10PX", notLength},
		{"mixed case unit", "10Px", 16, 5, 0, "10Px", notLength},
		{"other unit", "10em", 16, 5, 0, "10em", notLength},
		{"unit only", "px", 16, 5, 0, "px", notLength},
		{"overflow", "1e999px", 16, 5, 0, "1e999px", unconvertible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, res := convertLength(tt.raw, tt.root, tt.precision, tt.min)
			if got != tt.want || res != tt.outcome {
				t.Errorf("convertLength(%q) = (%q, %d), want (%q, %d)", tt.raw, got, res, tt.want, tt.outcome)
			}
		})
	}
}

func TestFormatFixed(t *testing.T) {
	tests := []struct {
		v         float64
		precision int
		want      string
	}{
		{0, 5, "0"},
		{1, 5, "1"},
		{1.5, 5, "1.5"},
		{1.005, 2, "1.01"},
		{-1.005, 2, "-1.01"},
		{2.5, 0, "3"},
		{-2.5, 0, "-3"},
		{0.999999, 5, "1"},
		{99.995, 2, "100"},
		{1e-7, 5, "0"},
		{-1e-7, 5, "0"},
		{123456.5, 0, "123457"},
		{0.1 + 0.2, 15, "0.3"},
		{1.25, 1, "1.3"},
		{1.24, 1, "1.2"},
	}
	for _, tt := range tests {
		if got := formatFixed(tt.v, tt.precision); got != tt.want {
			t.Errorf("formatFixed(%v, %d) = %q, want %q", tt.v, tt.precision, got, tt.want)
		}
	}
}
