package playback

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/qiaofuyo/video-slice/internal/media"
)

// RoutePrefix is where issued locators are served.
const RoutePrefix = "/playback/"

// Registry hands out revocable playback URLs for selected sources. Each
// bind gets a fresh token and a revoked token stops resolving immediately.
// Locators end in the source's extension so players can pick a demuxer.
type Registry struct {
	baseURL string

	mu     sync.RWMutex
	tokens map[string]string
}

// NewRegistry issues locators under baseURL, e.g. "http://127.0.0.1:8787".
// An empty baseURL yields root-relative locators.
func NewRegistry(baseURL string) *Registry {
	return &Registry{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  make(map[string]string),
	}
}

// Issue implements media.Locators.
func (r *Registry) Issue(src media.Source) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.tokens[token] = src.Path
	r.mu.Unlock()

	locator := r.baseURL + RoutePrefix + token
	if ext := src.Ext(); ext != "" {
		locator += "." + ext
	}
	return locator
}

// Revoke implements media.Locators. Unknown locators are ignored.
func (r *Registry) Revoke(locator string) {
	token := TokenFromLocator(locator)
	r.mu.Lock()
	delete(r.tokens, token)
	r.mu.Unlock()
}

// Resolve returns the file path behind a live token.
func (r *Registry) Resolve(token string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.tokens[token]
	return path, ok
}

// Live is the number of unrevoked locators.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// TokenFromLocator extracts the token from an issued locator or from the
// last path segment of a playback request. The extension suffix is dropped.
func TokenFromLocator(locator string) string {
	if i := strings.LastIndex(locator, RoutePrefix); i >= 0 {
		locator = locator[i+len(RoutePrefix):]
	}
	token, _, _ := strings.Cut(locator, ".")
	return token
}
