package media

import (
	"fmt"

	"github.com/qiaofuyo/video-slice/internal/faults"
)

// Selection is the ordered list of sources the operator picked. Adding a
// source whose Key is already present is a no-op.
type Selection struct {
	items []Source
}

func NewSelection() *Selection {
	return &Selection{}
}

// Add appends sources not yet selected and returns the ones actually added.
func (s *Selection) Add(sources ...Source) []Source {
	added := make([]Source, 0, len(sources))
	for _, src := range sources {
		if _, ok := s.Find(src.Key()); ok {
			continue
		}
		s.items = append(s.items, src)
		added = append(added, src)
	}
	return added
}

// Remove deselects the source at index.
func (s *Selection) Remove(index int) (Source, error) {
	if index < 0 || index >= len(s.items) {
		return Source{}, faults.Wrap(faults.ErrLookup, "deselect",
			fmt.Sprintf("no selected file at position %d", index), nil)
	}
	removed := s.items[index]
	s.items = append(s.items[:index], s.items[index+1:]...)
	return removed, nil
}

// IndexOfPath returns the position of the source with the given path, or -1.
func (s *Selection) IndexOfPath(path string) int {
	for i, src := range s.items {
		if src.Path == path {
			return i
		}
	}
	return -1
}

func (s *Selection) Get(index int) (Source, bool) {
	if index < 0 || index >= len(s.items) {
		return Source{}, false
	}
	return s.items[index], true
}

func (s *Selection) Find(key Key) (Source, bool) {
	for _, src := range s.items {
		if src.Key() == key {
			return src, true
		}
	}
	return Source{}, false
}

// List returns a copy of the selection in order.
func (s *Selection) List() []Source {
	out := make([]Source, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Selection) Len() int {
	return len(s.items)
}
