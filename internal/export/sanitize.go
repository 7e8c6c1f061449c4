package export

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/qiaofuyo/video-slice/internal/faults"
)

const nameSafePunct = " -_.,()[]"

// SanitizeName makes s usable as an EDL title or event name. Recording names
// are often CJK, so letters of any script are kept after NFC normalization;
// control characters are dropped and other symbols become '_'. The result is
// trimmed and cut to maxLen runes when maxLen > 0.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(nameRune, norm.NFC.String(s)))
	if maxLen > 0 && utf8.RuneCountInString(cleaned) > maxLen {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxLen]))
	}
	return cleaned
}

func nameRune(r rune) rune {
	switch {
	case unicode.IsControl(r):
		return -1
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.Is(unicode.Mn, r):
		return r
	case strings.ContainsRune(nameSafePunct, r):
		return r
	default:
		return '_'
	}
}

// ValidateOutputDir checks that dir names an existing directory written as a
// clean path without "..". Failures are validation faults carrying the text
// shown to the operator.
func ValidateOutputDir(dir string) error {
	const op = "output dir"
	if strings.TrimSpace(dir) == "" {
		return faults.Validation(op, "enter the output directory")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return faults.Validation(op, "the output directory must not contain ..")
		}
	}
	if filepath.Clean(dir) != dir {
		return faults.Validation(op, "the output directory must be a clean path")
	}

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return faults.Validation(op, "the output directory does not exist")
	case err != nil:
		return faults.Wrap(faults.ErrValidation, op, "the output directory cannot be read", err)
	case !info.IsDir():
		return faults.Validation(op, "the output path is not a directory")
	}
	return nil
}
