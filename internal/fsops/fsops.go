// Package fsops implements the mutating filesystem operations: create,
// rename, copy, move, delete, and content writes. Every mutation evicts
// the affected directories from the shared listing cache as part of the
// same call, drops stale thumbnails, and publishes a change event.
package fsops

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/browse"
	"github.com/driftfs/driftfs/internal/events"
	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/logging"
	"github.com/driftfs/driftfs/internal/mounts"
	"github.com/driftfs/driftfs/internal/thumbs"
)

// ItemResult reports the outcome for one path in a batch operation.
type ItemResult struct {
	Path  string `json:"path"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// BatchResult aggregates per-item outcomes. Success is true only when
// every item succeeded.
type BatchResult struct {
	Success bool         `json:"success"`
	Items   []ItemResult `json:"items"`
}

// Ops performs mutating filesystem operations.
type Ops struct {
	guard       *mounts.Guard
	cache       *browse.DirectoryCache
	thumbs      *thumbs.Cache       // may be nil
	broadcaster *events.Broadcaster // may be nil
}

// New creates the mutation service.
func New(guard *mounts.Guard, cache *browse.DirectoryCache, thumbCache *thumbs.Cache, broadcaster *events.Broadcaster) *Ops {
	return &Ops{guard: guard, cache: cache, thumbs: thumbCache, broadcaster: broadcaster}
}

// CreateFolder creates an empty directory under parent.
func (o *Ops) CreateFolder(parent, name string) (string, error) {
	path, err := o.newChildPath(parent, name)
	if err != nil {
		return "", err
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", fserr.Wrap(fserr.KindTransient, err, "create folder %s", path)
	}
	o.mutated(events.EventCreate, path, "")
	return path, nil
}

// CreateFile creates an empty file under parent.
func (o *Ops) CreateFile(parent, name string) (string, error) {
	path, err := o.newChildPath(parent, name)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fserr.Wrap(fserr.KindTransient, err, "create file %s", path)
	}
	f.Close()
	o.mutated(events.EventCreate, path, "")
	return path, nil
}

// WriteFile replaces the content of path.
func (o *Ops) WriteFile(path string, data []byte) error {
	if ok, reason := o.guard.Authorize(path); !ok {
		return fserr.AccessDenied("%s", reason)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fserr.Invalid("%s is a directory", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "write %s", path)
	}
	if o.thumbs != nil {
		if err := o.thumbs.Invalidate(path); err != nil {
			logging.Warn("thumbnail invalidation failed", zap.String("path", path), zap.Error(err))
		}
	}
	o.mutated(events.EventModify, path, "")
	return nil
}

// Rename gives path a new name inside its directory. A taken name is a
// Conflict; renames do not auto-resolve.
func (o *Ops) Rename(path, newName string) (string, error) {
	if ok, reason := o.guard.Authorize(path); !ok {
		return "", fserr.AccessDenied("%s", reason)
	}
	if err := validateName(newName); err != nil {
		return "", err
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return "", fserr.NotFound("%s does not exist", path)
	}

	newPath := filepath.Join(filepath.Dir(path), newName)
	if _, err := os.Lstat(newPath); err == nil {
		return "", fserr.Conflict("%s already exists", newPath)
	}
	if err := os.Rename(path, newPath); err != nil {
		return "", fserr.Wrap(fserr.KindTransient, err, "rename %s", path)
	}

	o.dropThumbs(path)
	o.mutated(events.EventMove, path, newPath)
	return newPath, nil
}

// Copy copies each source into destDir, directories recursively. Item
// failures are collected, not fatal to the batch.
func (o *Ops) Copy(sources []string, destDir string) (*BatchResult, error) {
	if err := o.checkBatchDest(destDir); err != nil {
		return nil, err
	}
	result := &BatchResult{Success: true}
	for _, src := range sources {
		err := o.copyOne(src, destDir)
		result.add(src, err)
	}
	o.cache.Invalidate(destDir)
	return result, nil
}

// Move moves each source into destDir. Item failures are collected, not
// fatal to the batch.
func (o *Ops) Move(sources []string, destDir string) (*BatchResult, error) {
	if err := o.checkBatchDest(destDir); err != nil {
		return nil, err
	}
	result := &BatchResult{Success: true}
	for _, src := range sources {
		err := o.moveOne(src, destDir)
		result.add(src, err)
		if err == nil {
			o.cache.Invalidate(filepath.Dir(src))
			o.dropThumbs(src)
			o.publish(events.EventMove, src, filepath.Join(destDir, filepath.Base(src)))
		}
	}
	o.cache.Invalidate(destDir)
	return result, nil
}

// Delete removes each path, directories recursively. Item failures are
// collected, not fatal to the batch.
func (o *Ops) Delete(paths []string) (*BatchResult, error) {
	result := &BatchResult{Success: true}
	for _, path := range paths {
		err := o.deleteOne(path)
		result.add(path, err)
		if err == nil {
			o.cache.Invalidate(filepath.Dir(path))
			o.dropThumbs(path)
			o.publish(events.EventDelete, path, "")
		}
	}
	return result, nil
}

func (o *Ops) copyOne(src, destDir string) error {
	if ok, reason := o.guard.Authorize(src); !ok {
		return fserr.AccessDenied("%s", reason)
	}
	info, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return fserr.NotFound("%s does not exist", src)
	}
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "stat %s", src)
	}

	dst := filepath.Join(destDir, filepath.Base(src))
	if _, err := os.Lstat(dst); err == nil {
		return fserr.Conflict("%s already exists", dst)
	}
	if info.IsDir() {
		err = copyTree(src, dst)
	} else {
		err = copyFile(src, dst, info.Mode())
	}
	if err != nil {
		return err
	}
	o.publish(events.EventCreate, dst, "")
	return nil
}

func (o *Ops) moveOne(src, destDir string) error {
	if ok, reason := o.guard.Authorize(src); !ok {
		return fserr.AccessDenied("%s", reason)
	}
	if _, err := os.Lstat(src); errors.Is(err, fs.ErrNotExist) {
		return fserr.NotFound("%s does not exist", src)
	}
	dst := filepath.Join(destDir, filepath.Base(src))
	if _, err := os.Lstat(dst); err == nil {
		return fserr.Conflict("%s already exists", dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "move %s", src)
	}
	return nil
}

func (o *Ops) deleteOne(path string) error {
	if ok, reason := o.guard.Authorize(path); !ok {
		return fserr.AccessDenied("%s", reason)
	}
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return fserr.NotFound("%s does not exist", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "delete %s", path)
	}
	return nil
}

func (o *Ops) newChildPath(parent, name string) (string, error) {
	if ok, reason := o.guard.Authorize(parent); !ok {
		return "", fserr.AccessDenied("%s", reason)
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	info, err := os.Stat(parent)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fserr.NotFound("directory %s does not exist", parent)
	}
	if err != nil {
		return "", fserr.Wrap(fserr.KindTransient, err, "stat %s", parent)
	}
	if !info.IsDir() {
		return "", fserr.NotFound("%s is not a directory", parent)
	}
	path := filepath.Join(parent, name)
	if _, err := os.Lstat(path); err == nil {
		return "", fserr.Conflict("%s already exists", path)
	}
	return path, nil
}

func (o *Ops) checkBatchDest(destDir string) error {
	if ok, reason := o.guard.Authorize(destDir); !ok {
		return fserr.AccessDenied("%s", reason)
	}
	info, err := os.Stat(destDir)
	if errors.Is(err, fs.ErrNotExist) {
		return fserr.NotFound("directory %s does not exist", destDir)
	}
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "stat %s", destDir)
	}
	if !info.IsDir() {
		return fserr.NotFound("%s is not a directory", destDir)
	}
	return nil
}

// mutated invalidates the parent listing and publishes an event.
func (o *Ops) mutated(eventType, path, newPath string) {
	o.cache.Invalidate(filepath.Dir(path))
	if newPath != "" {
		o.cache.Invalidate(filepath.Dir(newPath))
	}
	o.publish(eventType, path, newPath)
}

func (o *Ops) publish(eventType, path, newPath string) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.Publish(events.Event{Type: eventType, Path: path, NewPath: newPath})
}

// dropThumbs removes cached previews for path and any subtree under it.
func (o *Ops) dropThumbs(path string) {
	if o.thumbs == nil {
		return
	}
	if _, err := o.thumbs.InvalidateTree(path); err != nil {
		logging.Warn("thumbnail invalidation failed", zap.String("path", path), zap.Error(err))
	}
}

func validateName(name string) error {
	if name == "" {
		return fserr.Invalid("name is empty")
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return fserr.Invalid("invalid name %q", name)
	}
	return nil
}

func (r *BatchResult) add(path string, err error) {
	item := ItemResult{Path: path, OK: err == nil}
	if err != nil {
		item.Error = err.Error()
		r.Success = false
	}
	r.Items = append(r.Items, item)
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "open %s", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fserr.Wrap(fserr.KindTransient, err, "copy %s", src)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fserr.Wrap(fserr.KindTransient, err, "close %s", dst)
	}
	return nil
}

// copyTree copies a directory recursively. Unreadable entries abort the
// subtree copy; the caller records the failure for this item.
func copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "create %s", dst)
	}
	des, err := os.ReadDir(src)
	if err != nil {
		return fserr.Wrap(fserr.KindTransient, err, "read %s", src)
	}
	for _, de := range des {
		s := filepath.Join(src, de.Name())
		d := filepath.Join(dst, de.Name())
		if de.IsDir() {
			if err := copyTree(s, d); err != nil {
				return err
			}
			continue
		}
		info, err := de.Info()
		if err != nil {
			return fserr.Wrap(fserr.KindTransient, err, "stat %s", s)
		}
		if err := copyFile(s, d, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}
