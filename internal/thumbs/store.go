// Package thumbs produces, caches and invalidates preview thumbnails for
// raster images and PDF documents. Generated previews are keyed by source
// path in an embedded store and invalidated when the source file's
// modification time changes.
package thumbs

// Entry is a cached thumbnail for one source path.
type Entry struct {
	Path           string `json:"path"`
	Image          []byte `json:"image"`
	MimeType       string `json:"mimeType"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	SourceModified int64  `json:"sourceModified"` // source mtime, unix nanoseconds
	CreatedAt      int64  `json:"createdAt"`
}

// Stats aggregates the cache contents.
type Stats struct {
	Count      int   `json:"count"`
	TotalBytes int64 `json:"totalBytes"`
}

// Store persists thumbnail entries, one per source path.
type Store interface {
	// Get returns the entry for path, or ok=false on a miss.
	Get(path string) (entry *Entry, ok bool, err error)

	// Put stores entry, replacing any previous entry for its path.
	Put(entry *Entry) error

	// Delete removes the entry for path, reporting whether one existed.
	// Missing entries are not an error.
	Delete(path string) (bool, error)

	// DeletePrefix removes every entry whose path starts with prefix,
	// returning how many were removed.
	DeletePrefix(prefix string) (int, error)

	// Paths lists every cached source path.
	Paths() ([]string, error)

	// Stats returns entry count and total stored bytes.
	Stats() (Stats, error)

	// Clear removes all entries, returning how many were removed.
	Clear() (int, error)

	Close() error
}
