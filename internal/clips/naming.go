package clips

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultExt is the output extension given to new clips.
const DefaultExt = "mp4"

const unknownHost = "unknown"

var illegalPathChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Group is the naming group clips are numbered within.
type Group struct {
	Host string `json:"host"`
	Date string `json:"date"`
}

// DeriveHost picks the output host for a clip of fileName. A non-blank
// override wins; otherwise it is the part of the base name before the first
// underscore. Characters that are illegal in file names become underscores.
func DeriveHost(fileName, override string) string {
	if o := strings.TrimSpace(override); o != "" {
		return illegalPathChars.Replace(o)
	}

	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	host, _, _ := strings.Cut(base, "_")
	if host == "" {
		host = base
	}
	host = illegalPathChars.Replace(host)
	if host == "" {
		return unknownHost
	}
	return host
}

// FileDate formats the source modification time as YYYYMMDD in local time,
// falling back to now when the modification time is unknown.
func FileDate(modified, now time.Time) string {
	if modified.IsZero() {
		modified = now
	}
	return modified.Local().Format("20060102")
}

// Stem is the generated output stem for index within g.
func Stem(g Group, index int) string {
	return fmt.Sprintf("%s_%s_%d", g.Host, g.Date, index)
}

// NextIndex is the index a new clip in g receives: one more than the number
// of records already in g.
func NextIndex(records []Record, g Group) int {
	n := 0
	for _, r := range records {
		if r.Group() == g {
			n++
		}
	}
	return n + 1
}

// renumberAfterRemoval closes the gap left by removing index from g. Records
// are visited in ledger order and each is shifted at most once. Hand-edited
// stems are left alone.
func renumberAfterRemoval(records []Record, g Group, removedIndex int) []int {
	var shifted []int
	for i := range records {
		r := &records[i]
		if r.Group() != g || r.Index <= removedIndex {
			continue
		}
		r.Index--
		if !r.StemEdited {
			r.Stem = Stem(g, r.Index)
		}
		shifted = append(shifted, i)
	}
	return shifted
}
