package guideline

import (
	"context"
	"io"
	"time"
)

// Source retrieves the full guideline collection.
type Source interface {
	FetchAll(ctx context.Context) ([]Guideline, error)
}

// Getter performs a plain GET and returns the response body verbatim.
type Getter interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// Archiver captures a guideline's document and returns where it was stored. An empty
// result signals that capture failed.
type Archiver interface {
	Archive(ctx context.Context, detailURL, title string) string
}

// Store is the append-only record store used for dedup across runs.
type Store interface {
	Initialize() error
	LoadProcessedKeys() map[string]struct{}
	Append(record Record) error
}

// BlobStore writes document artifacts and returns their location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Browser opens isolated rendering sessions. Sessions are never shared between
// archivals.
type Browser interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is one rendering session bound to the context it was opened with.
type Session interface {
	// Navigate loads the page at rawURL.
	Navigate(rawURL string) error
	// WaitForDocument blocks until either the content marker or the download link is
	// present, or the session's wait timeout elapses.
	WaitForDocument() error
	// HasContent reports whether the primary-content marker is present.
	HasContent() (bool, error)
	// DocumentLink returns the download link target. found is false when the link
	// element is absent; href may be empty when the element has no target.
	DocumentLink() (href string, found bool, err error)
	// PrintPDF prints the loaded page without background graphics or header/footer.
	PrintPDF() ([]byte, error)
	// Close tears the session down. It is safe to call more than once.
	Close() error
}

// IDGenerator produces short random suffixes.
type IDGenerator interface {
	NewSuffix() (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}
