// Package clips holds the ordered ledger of marked clips and the naming
// rules that keep every (host, date) group densely numbered.
package clips

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qiaofuyo/video-slice/internal/faults"
	"github.com/qiaofuyo/video-slice/internal/media"
	"github.com/qiaofuyo/video-slice/internal/timecode"
)

// Record is one marked clip awaiting export.
type Record struct {
	ID             uuid.UUID `json:"id"`
	SourceName     string    `json:"source_name"`
	SourceSize     int64     `json:"source_size"`
	SourceModified time.Time `json:"source_modified,omitzero"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
	Host           string    `json:"host"`
	Date           string    `json:"date"`
	Index          int       `json:"index"`
	Stem           string    `json:"stem"`
	Ext            string    `json:"ext"`
	StemEdited     bool      `json:"stem_edited"`
}

func (r Record) Group() Group {
	return Group{Host: r.Host, Date: r.Date}
}

func (r Record) OutputFileName() string {
	return r.Stem + "." + r.Ext
}

// SourceKey is the selection key the clip was captured from.
func (r Record) SourceKey() media.Key {
	return media.Key{Name: r.SourceName, Size: r.SourceSize}
}

// StartSeconds and EndSeconds parse the stored boundaries back to seconds.
func (r Record) StartSeconds() int { return timecode.MustParse(r.Start) }
func (r Record) EndSeconds() int   { return timecode.MustParse(r.End) }

// ChangeKind names a ledger mutation.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeRemoved  ChangeKind = "removed"
	ChangeRenamed  ChangeKind = "renamed"
	ChangeCleared  ChangeKind = "cleared"
)

// Change describes one completed mutation. Shifted lists the positions whose
// index was decremented by a removal.
type Change struct {
	Kind     ChangeKind
	Position int
	Record   Record
	Shifted  []int
}

type Options struct {
	DefaultExt string
	Now        func() time.Time
}

// Ledger is the ordered list of clips. Insertion order is display order and
// export order.
//
// Ledger has no locks. It must only be driven from one goroutine.
type Ledger struct {
	records     []Record
	defaultExt  string
	now         func() time.Time
	subscribers []func(Change)
}

func NewLedger(opts Options) *Ledger {
	ext := strings.TrimPrefix(strings.TrimSpace(opts.DefaultExt), ".")
	if ext == "" {
		ext = DefaultExt
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{defaultExt: ext, now: now}
}

// Subscribe registers fn to run after every successful mutation.
func (l *Ledger) Subscribe(fn func(Change)) {
	l.subscribers = append(l.subscribers, fn)
}

func (l *Ledger) publish(c Change) {
	for _, fn := range l.subscribers {
		fn(c)
	}
}

// Append records a clip of src from startSec to endSec. hostOverride, when
// not blank, replaces the host derived from the file name for this clip only.
func (l *Ledger) Append(src media.Source, startSec, endSec int, hostOverride string) (Record, error) {
	if startSec < 0 || endSec < 0 {
		return Record{}, faults.Validation("add clip", "clip times must not be negative")
	}
	if startSec >= endSec {
		return Record{}, faults.Validation("add clip", "end time must be later than start time")
	}

	g := Group{
		Host: DeriveHost(src.Name, hostOverride),
		Date: FileDate(src.LastModified, l.now()),
	}
	idx := NextIndex(l.records, g)
	rec := Record{
		ID:             uuid.New(),
		SourceName:     src.Name,
		SourceSize:     src.Size,
		SourceModified: src.LastModified,
		Start:          timecode.Format(float64(startSec)),
		End:            timecode.Format(float64(endSec)),
		Host:           g.Host,
		Date:           g.Date,
		Index:          idx,
		Stem:           Stem(g, idx),
		Ext:            l.defaultExt,
	}
	l.records = append(l.records, rec)
	l.publish(Change{Kind: ChangeAppended, Position: len(l.records) - 1, Record: rec})
	return rec, nil
}

// Remove deletes the clip at pos and renumbers its group.
func (l *Ledger) Remove(pos int) (Record, error) {
	if err := l.checkPos("remove clip", pos); err != nil {
		return Record{}, err
	}
	removed := l.records[pos]
	l.records = append(l.records[:pos], l.records[pos+1:]...)
	shifted := renumberAfterRemoval(l.records, removed.Group(), removed.Index)
	l.publish(Change{Kind: ChangeRemoved, Position: pos, Record: removed, Shifted: shifted})
	return removed, nil
}

// Rename edits the output stem, the extension, or both. A nil argument keeps
// that half unchanged. Duplicate output names across clips are allowed. A
// stem equal to the generated one is not treated as a hand edit, so the
// record follows renumbering again.
func (l *Ledger) Rename(pos int, stem, ext *string) (Record, error) {
	if err := l.checkPos("rename clip", pos); err != nil {
		return Record{}, err
	}
	r := &l.records[pos]
	if stem != nil {
		r.Stem = *stem
		r.StemEdited = r.Stem != Stem(r.Group(), r.Index)
	}
	if ext != nil {
		r.Ext = strings.TrimPrefix(*ext, ".")
	}
	l.publish(Change{Kind: ChangeRenamed, Position: pos, Record: *r})
	return *r, nil
}

// Clear empties the ledger and reports how many clips were dropped.
func (l *Ledger) Clear() int {
	n := len(l.records)
	l.records = nil
	l.publish(Change{Kind: ChangeCleared})
	return n
}

// Records returns a copy of the ledger in order.
func (l *Ledger) Records() []Record {
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) Len() int {
	return len(l.records)
}

func (l *Ledger) Get(pos int) (Record, error) {
	if err := l.checkPos("get clip", pos); err != nil {
		return Record{}, err
	}
	return l.records[pos], nil
}

func (l *Ledger) checkPos(op string, pos int) error {
	if pos < 0 || pos >= len(l.records) {
		return faults.Wrap(faults.ErrValidation, op, fmt.Sprintf("no clip at position %d", pos), nil)
	}
	return nil
}

// ResolveSource finds the selected source a clip was captured from.
func ResolveSource(rec Record, sources []media.Source) (media.Source, error) {
	key := rec.SourceKey()
	for _, src := range sources {
		if src.Key() == key {
			return src, nil
		}
	}
	return media.Source{}, faults.Wrap(faults.ErrLookup, "resolve source",
		fmt.Sprintf("original file %s is no longer selected", rec.SourceName), nil)
}
