// Package upload manages resumable chunked file ingestion: sessions,
// concurrent out-of-order chunk writes, finalization and stale-session
// cleanup.
package upload

import (
	"context"
	"time"
)

// TempSuffix marks in-progress upload files so sweeps and manual audits can
// tell them from completed files.
const TempSuffix = ".partial"

// Session tracks partial receipt of one chunked upload.
type Session struct {
	ID             string
	FilePath       string // temporary file, TempSuffix-suffixed
	OriginalName   string
	TotalChunks    int
	UploadedChunks []int // sorted set of received chunk indices
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// HasChunk reports whether index is already recorded.
func (s *Session) HasChunk(index int) bool {
	for _, c := range s.UploadedChunks {
		if c == index {
			return true
		}
	}
	return false
}

// Complete reports whether every chunk has been received.
func (s *Session) Complete() bool {
	return len(s.UploadedChunks) == s.TotalChunks
}

// SessionStore persists upload sessions.
type SessionStore interface {
	// Create inserts a new session.
	Create(ctx context.Context, s *Session) error

	// Get returns the session, or a NotFound error when absent.
	Get(ctx context.Context, id string) (*Session, error)

	// SetChunks replaces the session's uploaded-chunk set.
	SetChunks(ctx context.Context, id string, chunks []int) error

	// Delete removes the session. Missing sessions are not an error.
	Delete(ctx context.Context, id string) error

	// ListExpired returns sessions whose expiry is before cutoff.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*Session, error)

	// Count returns the number of stored sessions.
	Count(ctx context.Context) (int, error)

	Close() error
}
