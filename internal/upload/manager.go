package upload

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/events"
	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/logging"
	"github.com/driftfs/driftfs/internal/metrics"
	"github.com/driftfs/driftfs/internal/mounts"
)

const (
	// DefaultChunkSize is the byte size of every chunk but the last.
	DefaultChunkSize = 5 * 1024 * 1024
	// DefaultExpiry is how long a session may stay incomplete.
	DefaultExpiry = 24 * time.Hour
	// sweepInterval is the minimum gap between lazy staleness sweeps.
	sweepInterval = time.Hour
)

// DirInvalidator evicts a directory's cached listing after a mutation.
type DirInvalidator interface {
	Invalidate(path string)
}

// Config controls the upload manager. A nil Now defaults to time.Now.
type Config struct {
	ChunkSize int64
	Expiry    time.Duration
	Now       func() time.Time
}

// Manager runs the chunked-upload state machine. Chunk byte writes land on
// disjoint ranges and proceed in parallel; only the session's chunk-set
// read-modify-write is serialized, under a per-session lock.
type Manager struct {
	guard       *mounts.Guard
	store       SessionStore
	dirCache    DirInvalidator      // may be nil
	broadcaster *events.Broadcaster // may be nil

	chunkSize int64
	expiry    time.Duration
	now       func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	lastSweep time.Time
}

// NewManager creates an upload manager and runs a startup staleness sweep.
func NewManager(guard *mounts.Guard, store SessionStore, dirCache DirInvalidator, broadcaster *events.Broadcaster, cfg Config) *Manager {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		guard:       guard,
		store:       store,
		dirCache:    dirCache,
		broadcaster: broadcaster,
		chunkSize:   cfg.ChunkSize,
		expiry:      cfg.Expiry,
		now:         cfg.Now,
		locks:       make(map[string]*sync.Mutex),
	}
	if n, err := m.CleanupStale(context.Background()); err != nil {
		logging.Warn("startup upload sweep failed", zap.Error(err))
	} else if n > 0 {
		logging.Info("cleaned up stale uploads", zap.Int("count", n))
	}
	return m
}

// ChunkSize returns the configured chunk size.
func (m *Manager) ChunkSize() int64 { return m.chunkSize }

// InitUpload starts a session for filename under destDir and creates its
// empty temporary file. The target name is de-collided with a short random
// suffix when a same-named file (or in-progress upload) already exists.
func (m *Manager) InitUpload(ctx context.Context, destDir, filename string, totalChunks int) (*Session, error) {
	if ok, reason := m.guard.Authorize(destDir); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}
	if err := validateName(filename); err != nil {
		return nil, err
	}
	if totalChunks < 1 {
		return nil, fserr.Invalid("totalChunks must be at least 1, got %d", totalChunks)
	}

	info, err := os.Stat(destDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("directory %s does not exist", destDir)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", destDir)
	}
	if !info.IsDir() {
		return nil, fserr.NotFound("%s is not a directory", destDir)
	}

	target, err := collisionFreeTarget(destDir, filename)
	if err != nil {
		return nil, err
	}
	tempPath := target + TempSuffix
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fserr.Wrap(fserr.KindTransient, err, "create temporary file %s", tempPath)
	}
	f.Close()

	nowT := m.now()
	sess := &Session{
		ID:           newID(16),
		FilePath:     tempPath,
		OriginalName: filename,
		TotalChunks:  totalChunks,
		CreatedAt:    nowT,
		ExpiresAt:    nowT.Add(m.expiry),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		os.Remove(tempPath)
		return nil, fserr.Wrap(fserr.KindTransient, err, "persist upload session")
	}

	logging.Info("chunked upload initiated",
		zap.String("session_id", sess.ID),
		zap.String("target", target),
		zap.Int("chunks", totalChunks))
	m.invalidateDir(tempPath)
	m.updateSessionGauge(ctx)
	m.maybeSweep(ctx)
	return sess, nil
}

// SaveChunk writes one chunk at its byte offset and records the index in
// the session's chunk set. Chunks may arrive out of order and concurrently.
func (m *Manager) SaveChunk(ctx context.Context, sessionID string, chunkIndex int, data []byte) error {
	sess, err := m.loadLive(ctx, sessionID)
	if err != nil {
		return err
	}
	if chunkIndex < 0 || chunkIndex >= sess.TotalChunks {
		return fserr.Invalid("chunk index %d outside [0, %d)", chunkIndex, sess.TotalChunks)
	}
	if int64(len(data)) > m.chunkSize {
		return fserr.Invalid("chunk of %d bytes exceeds chunk size %d", len(data), m.chunkSize)
	}

	// The raw byte write needs no lock: each chunk owns a disjoint range.
	f, err := os.OpenFile(sess.FilePath, os.O_WRONLY, 0o644)
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "open temporary file for session %s", sessionID)
	}
	_, err = f.WriteAt(data, int64(chunkIndex)*m.chunkSize)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "write chunk %d for session %s", chunkIndex, sessionID)
	}

	// Serialize the read-modify-write of the shared chunk set.
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err = m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.HasChunk(chunkIndex) {
		chunks := append(append([]int(nil), sess.UploadedChunks...), chunkIndex)
		sort.Ints(chunks)
		if err := m.store.SetChunks(ctx, sessionID, chunks); err != nil {
			return fserr.Wrap(fserr.KindTransient, err, "record chunk %d for session %s", chunkIndex, sessionID)
		}
	}
	metrics.RecordUploadChunk(int64(len(data)))
	return nil
}

// FinalizeUpload renames the temporary file to its final name. It fails
// with a Conflict reporting uploaded/total counts while chunks are missing.
func (m *Manager) FinalizeUpload(ctx context.Context, sessionID string) (string, error) {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, err := m.loadLive(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !sess.Complete() {
		metrics.RecordUploadFinalized(false)
		return "", fserr.Conflict("incomplete upload: %d/%d chunks received",
			len(sess.UploadedChunks), sess.TotalChunks)
	}

	finalPath := strings.TrimSuffix(sess.FilePath, TempSuffix)
	if _, err := os.Lstat(finalPath); err == nil {
		// The final name appeared while the upload ran; pick a fresh one.
		finalPath, err = collisionFreeTarget(filepath.Dir(finalPath), filepath.Base(finalPath))
		if err != nil {
			metrics.RecordUploadFinalized(false)
			return "", err
		}
	}
	if err := os.Rename(sess.FilePath, finalPath); err != nil {
		metrics.RecordUploadFinalized(false)
		return "", fserr.Wrap(fserr.KindTransient, err, "finalize session %s", sessionID)
	}

	if err := m.store.Delete(ctx, sessionID); err != nil {
		logging.Warn("failed to delete finalized session", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.releaseLock(sessionID)

	m.invalidateDir(finalPath)
	if m.broadcaster != nil {
		size := int64(0)
		if info, err := os.Stat(finalPath); err == nil {
			size = info.Size()
		}
		m.broadcaster.Publish(events.Event{Type: events.EventUpload, Path: finalPath, Size: size})
	}

	logging.Info("chunked upload completed",
		zap.String("session_id", sessionID),
		zap.String("path", finalPath))
	metrics.RecordUploadFinalized(true)
	m.updateSessionGauge(ctx)
	return finalPath, nil
}

// CancelUpload deletes the session and its temporary file.
func (m *Manager) CancelUpload(ctx context.Context, sessionID string) error {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(sess.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("failed to remove temporary file",
			zap.String("path", sess.FilePath), zap.Error(err))
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "delete session %s", sessionID)
	}
	m.releaseLock(sessionID)
	m.invalidateDir(sess.FilePath)
	logging.Info("chunked upload cancelled", zap.String("session_id", sessionID))
	m.updateSessionGauge(ctx)
	return nil
}

// CleanupStale removes sessions (and temporary files) past their expiry.
func (m *Manager) CleanupStale(ctx context.Context) (int, error) {
	expired, err := m.store.ListExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("list expired sessions: %w", err)
	}
	removed := 0
	for _, sess := range expired {
		if err := os.Remove(sess.FilePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("failed to remove stale temporary file",
				zap.String("path", sess.FilePath), zap.Error(err))
		}
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			logging.Warn("failed to delete stale session",
				zap.String("session_id", sess.ID), zap.Error(err))
			continue
		}
		m.releaseLock(sess.ID)
		m.invalidateDir(sess.FilePath)
		removed++
	}
	m.mu.Lock()
	m.lastSweep = m.now()
	m.mu.Unlock()
	m.updateSessionGauge(ctx)
	return removed, nil
}

// invalidateDir evicts the cached listing of the directory holding path.
// Temporary files appear and disappear there, so the cache must not keep
// serving a snapshot taken before the change.
func (m *Manager) invalidateDir(path string) {
	if m.dirCache != nil {
		m.dirCache.Invalidate(filepath.Dir(path))
	}
}

// loadLive loads a session and rejects expired ones.
func (m *Manager) loadLive(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if m.now().After(sess.ExpiresAt) {
		return nil, fserr.NotFound("upload session %s has expired", sessionID)
	}
	return sess, nil
}

// maybeSweep runs a staleness sweep when the last one is old enough.
func (m *Manager) maybeSweep(ctx context.Context) {
	m.mu.Lock()
	due := m.now().Sub(m.lastSweep) > sweepInterval
	m.mu.Unlock()
	if !due {
		return
	}
	if _, err := m.CleanupStale(ctx); err != nil {
		logging.Warn("lazy upload sweep failed", zap.Error(err))
	}
}

func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[sessionID] = lock
	}
	return lock
}

func (m *Manager) releaseLock(sessionID string) {
	m.mu.Lock()
	delete(m.locks, sessionID)
	m.mu.Unlock()
}

func (m *Manager) updateSessionGauge(ctx context.Context) {
	if n, err := m.store.Count(ctx); err == nil {
		metrics.SetUploadSessionsActive(int64(n))
	}
}

// collisionFreeTarget returns destDir/filename, suffixing the stem with a
// short random id while the name (or its in-progress twin) is taken.
func collisionFreeTarget(destDir, filename string) (string, error) {
	candidate := filepath.Join(destDir, filename)
	for attempt := 0; attempt < 10; attempt++ {
		if !pathTaken(candidate) && !pathTaken(candidate+TempSuffix) {
			return candidate, nil
		}
		ext := filepath.Ext(filename)
		stem := strings.TrimSuffix(filename, ext)
		candidate = filepath.Join(destDir, fmt.Sprintf("%s_%s%s", stem, newID(3), ext))
	}
	return "", fserr.Conflict("could not find a free name for %s in %s", filename, destDir)
}

func pathTaken(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// validateName rejects empty names and names with path separators or
// traversal segments.
func validateName(name string) error {
	if name == "" {
		return fserr.Invalid("file name is empty")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fserr.Invalid("invalid file name %q", name)
	}
	return nil
}

func newID(bytes int) string {
	b := make([]byte, bytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}
