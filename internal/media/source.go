// Package media models the operator's selected files and the single live
// playback binding over them.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Source is a locally selected media file. Values are never mutated after
// creation; clips keep their own copy of the identity fields.
type Source struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Key is the equality key used for selection dedupe and clip resolution.
// No content hash is available, so name and size stand in for identity.
type Key struct {
	Name string
	Size int64
}

// Stat builds a Source from a file on disk.
func Stat(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, fmt.Errorf("failed to stat %s: %w", filepath.Base(abs), err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%s is a directory", filepath.Base(abs))
	}
	return NewSource(abs, info.Size(), info.ModTime()), nil
}

// NewSource builds a Source, normalizing the base name to NFC so names typed
// by the operator compare equal to names read from disk.
func NewSource(path string, size int64, modified time.Time) Source {
	return Source{
		Path:         path,
		Name:         NormalizeName(filepath.Base(path)),
		Size:         size,
		LastModified: modified,
	}
}

// NormalizeName returns the NFC form of a file name.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

func (s Source) Key() Key {
	return Key{Name: s.Name, Size: s.Size}
}

// Identity is the full identity string including the modification time.
func (s Source) Identity() string {
	mod := int64(0)
	if !s.LastModified.IsZero() {
		mod = s.LastModified.UnixMilli()
	}
	return fmt.Sprintf("%s|%d|%d", s.Name, s.Size, mod)
}

// Ext returns the lower-case extension without the dot.
func (s Source) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(s.Name), "."))
}
