package upload

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/driftfs/driftfs/internal/fserr"
)

// SQLiteStore implements SessionStore on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the session database at path and runs
// schema migrations.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	// modernc's driver takes pragmas as _pragma=name(value) pairs.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate session db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS upload_sessions (
    id TEXT PRIMARY KEY,
    file_path TEXT NOT NULL,
    original_name TEXT NOT NULL,
    total_chunks INTEGER NOT NULL,
    uploaded_chunks TEXT NOT NULL DEFAULT '[]',
    created_at INTEGER NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_upload_sessions_expires
    ON upload_sessions(expires_at);
`
	_, err := s.db.Exec(schema)
	return err
}

// Create inserts a new session row.
func (s *SQLiteStore) Create(ctx context.Context, sess *Session) error {
	chunks, err := json.Marshal(sess.UploadedChunks)
	if err != nil {
		return fmt.Errorf("encode chunk set: %w", err)
	}
	if sess.UploadedChunks == nil {
		chunks = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO upload_sessions (id, file_path, original_name, total_chunks, uploaded_chunks, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.FilePath, sess.OriginalName, sess.TotalChunks,
		string(chunks), sess.CreatedAt.UnixNano(), sess.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns the session by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, file_path, original_name, total_chunks, uploaded_chunks, created_at, expires_at
		 FROM upload_sessions WHERE id = ?`, id)

	var sess Session
	var chunks string
	var createdAt, expiresAt int64
	err := row.Scan(&sess.ID, &sess.FilePath, &sess.OriginalName,
		&sess.TotalChunks, &chunks, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fserr.NotFound("upload session %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(chunks), &sess.UploadedChunks); err != nil {
		return nil, fmt.Errorf("decode chunk set for session %s: %w", id, err)
	}
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.ExpiresAt = time.Unix(0, expiresAt)
	return &sess, nil
}

// SetChunks replaces the uploaded-chunk set for a session.
func (s *SQLiteStore) SetChunks(ctx context.Context, id string, chunks []int) error {
	encoded, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode chunk set: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE upload_sessions SET uploaded_chunks = ? WHERE id = ?`,
		string(encoded), id)
	if err != nil {
		return fmt.Errorf("update chunk set for session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fserr.NotFound("upload session %s not found", id)
	}
	return nil
}

// Delete removes a session row.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListExpired returns sessions that expired before cutoff.
func (s *SQLiteStore) ListExpired(ctx context.Context, cutoff time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, original_name, total_chunks, uploaded_chunks, created_at, expires_at
		 FROM upload_sessions WHERE expires_at < ?`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var chunks string
		var createdAt, expiresAt int64
		if err := rows.Scan(&sess.ID, &sess.FilePath, &sess.OriginalName,
			&sess.TotalChunks, &chunks, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		if err := json.Unmarshal([]byte(chunks), &sess.UploadedChunks); err != nil {
			// Corrupt chunk set: still return the session so the sweep
			// can remove the row and its temporary file.
			sess.UploadedChunks = nil
		}
		sess.CreatedAt = time.Unix(0, createdAt)
		sess.ExpiresAt = time.Unix(0, expiresAt)
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}

// Count returns the number of stored sessions.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_sessions`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
