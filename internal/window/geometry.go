// Package window sizes and remembers the floating preview window.
package window

import (
	"context"
	"strconv"
	"strings"
)

// StorageKey is the fixed key geometry is persisted under.
const StorageKey = "videoPlayerState"

// Geometry holds CSS pixel strings exactly as the page applies them.
type Geometry struct {
	Width  string `json:"width"`
	Height string `json:"height"`
	Left   string `json:"left"`
	Top    string `json:"top"`
}

// IsZero reports whether nothing has been recorded.
func (g Geometry) IsZero() bool {
	return g == Geometry{}
}

// Viewport is the page's inner size in CSS pixels.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Store persists geometry between binds.
type Store interface {
	LoadGeometry(ctx context.Context) (Geometry, bool, error)
	SaveGeometry(ctx context.Context, g Geometry) error
}

// Px formats v as a CSS pixel length.
func Px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// ParsePx reads a CSS pixel length.
func ParsePx(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "px"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Initial fits a videoW x videoH frame inside the viewport, keeping its
// aspect ratio, and centers it. It reports false when the video size is not
// known yet.
func Initial(videoW, videoH int, vp Viewport) (Geometry, bool) {
	if videoW <= 0 || videoH <= 0 {
		return Geometry{}, false
	}
	aspect := float64(videoW) / float64(videoH)
	w, h := float64(videoW), float64(videoH)
	if vp.Width > 0 && w > vp.Width {
		w = vp.Width
		h = w / aspect
	}
	if vp.Height > 0 && h > vp.Height {
		h = vp.Height
		w = h * aspect
	}
	return Geometry{
		Width:  Px(w),
		Height: Px(h),
		Left:   Px((vp.Width - w) / 2),
		Top:    Px((vp.Height - h) / 2),
	}, true
}

// Validate checks that every field is a pixel length.
func (g Geometry) Validate() bool {
	for _, f := range []string{g.Width, g.Height, g.Left, g.Top} {
		if !strings.HasSuffix(f, "px") {
			return false
		}
		if _, ok := ParsePx(f); !ok {
			return false
		}
	}
	return true
}
