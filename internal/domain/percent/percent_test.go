package percent

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  BasisPoints
	}{
		{"whole number", "40", 4000},
		{"comma decimal", "40,5", 4050},
		{"dot decimal", "40.5", 4050},
		{"percent suffix", "40.5%", 4050},
		{"percent suffix with space", "40,5 %", 4050},
		{"fraction", "0.405", 4050},
		{"fraction comma", "0,4", 4000},
		{"one is full", "1", 10000},
		{"hundred is full", "100", 10000},
		{"zero", "0", 0},
		{"empty is zero", "", 0},
		{"whitespace only is zero", "   ", 0},
		{"two decimal places", "12,34", 1234},
		{"rounds half up", "0.00125", 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q): unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"abc", "40,5,1", "-3", "10%%x"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if !errors.Is(err, ErrUnparseable) {
				t.Errorf("Parse(%q): expected ErrUnparseable, got %v", input, err)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		bp   BasisPoints
		want string
	}{
		{4000, "40"},
		{4050, "40,5"},
		{1234, "12,34"},
		{10000, "100"},
		{0, "0"},
		{13, "0,13"},
		{105, "1,05"},
	}
	for _, tt := range tests {
		if got := tt.bp.Display(); got != tt.want {
			t.Errorf("(%d).Display() = %q, want %q", tt.bp, got, tt.want)
		}
	}
}

func TestParseDisplayRoundTrip(t *testing.T) {
	for _, s := range []string{"40", "40,5", "12,34", "0,13"} {
		bp, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := bp.Display(); got != s {
			t.Errorf("round trip %q -> %d -> %q", s, bp, got)
		}
	}
}

func TestFloat(t *testing.T) {
	if f := BasisPoints(4050).Float(); f != 0.405 {
		t.Errorf("Float() = %v, want 0.405", f)
	}
}
