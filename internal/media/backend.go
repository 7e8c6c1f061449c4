package media

// Metadata is what a backend learns once the resource can be decoded.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Handle is one live decode binding. OnMetadataReady fires at most once.
// Destroy is best-effort and may be called on a handle that never loaded.
type Handle interface {
	OnMetadataReady(fn func(Metadata))
	Play() error
	Pause() error
	Seek(position float64) error
	Destroy() error
}

// Backend attaches a locator to something that can decode it. When Attach
// fails it may still return a partially constructed handle, which the caller
// must destroy.
type Backend interface {
	Name() string
	Available() bool
	Attach(locator string, sizeHint int64) (Handle, error)
}

// Locators issues and revokes the transient addresses a backend loads from.
type Locators interface {
	Issue(src Source) string
	Revoke(locator string)
}

type pathLocators struct{}

func (pathLocators) Issue(src Source) string { return src.Path }
func (pathLocators) Revoke(string)           {}
