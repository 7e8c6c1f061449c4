// Package timecode converts between second counts and the "HH:MM:SS" text
// used for clip boundaries and export commands.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format renders seconds as "HH:MM:SS". Fractions are floored, negative
// values clamp to zero and hours are not wrapped at 24.
func Format(seconds float64) string {
	total := wholeSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// Compact renders seconds as "HHMMSS", the form operators type by hand.
func Compact(seconds float64) string {
	return strings.ReplaceAll(Format(seconds), ":", "")
}

// Parse reads lenient operator input. Every non-digit is dropped, the rest is
// left-padded to six digits and read as HHMMSS, where the last four digits
// are MMSS and everything before them is hours. "10105" and "1:01:05" both
// parse to 3665. Minute and second fields of 60 or more are accepted and
// simply add up.
func Parse(text string) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, text)
	if digits == "" {
		return 0, false
	}
	if len(digits) < 6 {
		digits = strings.Repeat("0", 6-len(digits)) + digits
	}

	split := len(digits) - 4
	hours, err := strconv.Atoi(digits[:split])
	if err != nil || hours > math.MaxInt32 {
		return 0, false
	}
	minutes, _ := strconv.Atoi(digits[split : split+2])
	secs, _ := strconv.Atoi(digits[split+2:])
	return hours*3600 + minutes*60 + secs, true
}

// MustParse is Parse for values that were produced by Format.
func MustParse(text string) int {
	v, ok := Parse(text)
	if !ok {
		panic("timecode: unparseable " + strconv.Quote(text))
	}
	return v
}

func wholeSeconds(seconds float64) int {
	if math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	if seconds >= math.MaxInt32*3600.0 {
		return math.MaxInt32 * 3600
	}
	return int(math.Floor(seconds))
}
