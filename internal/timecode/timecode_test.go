package timecode

import (
	"math"
	"testing"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00"},
		{5, "00:00:05"},
		{59.999, "00:00:59"},
		{60, "00:01:00"},
		{3665, "01:01:05"},
		{86399, "23:59:59"},
		{86400, "24:00:00"},
		{360000, "100:00:00"},
		{-3, "00:00:00"},
		{math.NaN(), "00:00:00"},
	}
	for _, tt := range tests {
		if got := Format(tt.seconds); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestCompact(t *testing.T) {
	if got := Compact(3665.4); got != "010105" {
		t.Errorf("Compact(3665.4) = %q, want 010105", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   int
		wantOK bool
	}{
		{"compact five digits", "10105", 3665, true},
		{"punctuated", "1:01:05", 3665, true},
		{"canonical", "01:01:05", 3665, true},
		{"seconds only", "42", 42, true},
		{"minutes and seconds", "1234", 12*60 + 34, true},
		{"minute overflow accepted", "007000", 70 * 60, true},
		{"second overflow accepted", "000099", 99, true},
		{"mixed junk", "h01m02s03", 3723, true},
		{"long hours", "100:00:00", 360000, true},
		{"seven digits keep leading hours", "1234567", 123*3600 + 45*60 + 67, true},
		{"empty", "", 0, false},
		{"no digits", "abc:de", 0, false},
		{"zero", "0", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	samples := []int{0, 1, 59, 60, 61, 3599, 3600, 3665, 86399, 86400, 359999, 360000, 1234567}
	for s := 0; s < 7500; s += 7 {
		samples = append(samples, s)
	}
	for _, s := range samples {
		text := Format(float64(s))
		got, ok := Parse(text)
		if !ok || got != s {
			t.Fatalf("Parse(Format(%d)) = %d, %v via %q", s, got, ok, text)
		}
		got, ok = Parse(Compact(float64(s)))
		if !ok || got != s {
			t.Fatalf("Parse(Compact(%d)) = %d, %v", s, got, ok)
		}
	}
}

func TestMustParsePanicsOnGarbage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustParse did not panic")
		}
	}()
	MustParse("--")
}
