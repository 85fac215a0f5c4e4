package thumbs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/logging"
	"github.com/driftfs/driftfs/internal/metrics"
	"github.com/driftfs/driftfs/internal/mounts"
)

// Result is a generated or cached preview.
type Result struct {
	Bytes    []byte
	MimeType string
}

// Config controls preview generation.
type Config struct {
	Size    int
	Quality int
}

// Cache serves preview thumbnails, generating on miss and invalidating on
// source modification.
type Cache struct {
	guard    *mounts.Guard
	store    Store
	renderer PageRenderer
	size     int
	quality  int
}

// New creates a thumbnail cache over the given store and renderer.
func New(guard *mounts.Guard, store Store, renderer PageRenderer, cfg Config) *Cache {
	if cfg.Size <= 0 {
		cfg.Size = DefaultThumbSize
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultThumbQuality
	}
	return &Cache{
		guard:    guard,
		store:    store,
		renderer: renderer,
		size:     cfg.Size,
		quality:  cfg.Quality,
	}
}

type sourceKind int

const (
	kindUnsupported sourceKind = iota
	kindImage
	kindPDF
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// classify decides whether path is a raster image, a PDF, or neither.
// The extension answers for well-known names; otherwise the file header
// is sniffed.
func classify(path string) sourceKind {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return kindPDF
	}
	if imageExtensions[ext] {
		return kindImage
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return kindUnsupported
	}
	switch {
	case mt.Is("application/pdf"):
		return kindPDF
	case strings.HasPrefix(mt.String(), "image/"):
		if imageExtensions[mt.Extension()] {
			return kindImage
		}
	}
	return kindUnsupported
}

// GetThumbnail returns the preview for path, serving from cache when the
// cached entry still matches the live file's modification time. A nil
// result with nil error means no thumbnail is possible; generation
// failures degrade to that rather than propagate.
func (c *Cache) GetThumbnail(ctx context.Context, path string) (*Result, error) {
	if ok, reason := c.guard.Authorize(path); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("%s does not exist", path)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, fserr.Invalid("%s is a directory", path)
	}
	modTime := info.ModTime().UnixNano()

	kind := classify(path)
	if kind == kindUnsupported {
		metrics.RecordThumbnail("unsupported")
		return nil, nil
	}

	if entry, ok, err := c.store.Get(path); err != nil {
		logging.Warn("thumbnail store read failed", zap.String("path", path), zap.Error(err))
	} else if ok {
		if entry.SourceModified == modTime {
			metrics.RecordThumbnail("cached")
			return &Result{Bytes: entry.Image, MimeType: entry.MimeType}, nil
		}
		// Stale: source changed since the preview was generated.
		if _, err := c.store.Delete(path); err != nil {
			logging.Warn("stale thumbnail delete failed", zap.String("path", path), zap.Error(err))
		}
	}

	preview, w, h := c.generate(ctx, path, kind)
	if preview == nil {
		metrics.RecordThumbnail("failed")
		return nil, nil
	}

	entry := &Entry{
		Path:           path,
		Image:          preview,
		MimeType:       ThumbMimeType,
		Width:          w,
		Height:         h,
		SourceModified: modTime,
		CreatedAt:      time.Now().UnixNano(),
	}
	if err := c.store.Put(entry); err != nil {
		logging.Warn("thumbnail store write failed", zap.String("path", path), zap.Error(err))
	}
	metrics.RecordThumbnail("generated")
	return &Result{Bytes: preview, MimeType: ThumbMimeType}, nil
}

// generate produces preview bytes, or nil when generation fails.
// Failures are logged, never returned.
func (c *Cache) generate(ctx context.Context, path string, kind sourceKind) (preview []byte, w, h int) {
	start := time.Now()
	var data []byte
	var err error
	var kindName string

	switch kind {
	case kindPDF:
		kindName = "pdf"
		data, err = c.renderer.RenderFirstPage(ctx, path)
		if err != nil {
			logging.Warn("pdf rasterization failed", zap.String("path", path), zap.Error(err))
			return nil, 0, 0
		}
	case kindImage:
		kindName = "image"
		data, err = os.ReadFile(path)
		if err != nil {
			logging.Warn("thumbnail source read failed", zap.String("path", path), zap.Error(err))
			return nil, 0, 0
		}
	default:
		return nil, 0, 0
	}

	preview, w, h, err = renderPreview(data, c.size, c.quality)
	if err != nil {
		logging.Warn("thumbnail generation failed", zap.String("path", path), zap.Error(err))
		return nil, 0, 0
	}
	metrics.RecordThumbnailGeneration(kindName, time.Since(start))
	return preview, w, h
}

// Invalidate removes the cached preview for exactly path.
func (c *Cache) Invalidate(path string) error {
	_, err := c.store.Delete(path)
	return err
}

// InvalidateTree removes cached previews for path and everything under it,
// returning how many entries were actually removed.
func (c *Cache) InvalidateTree(path string) (int, error) {
	exact, err := c.store.Delete(path)
	if err != nil {
		return 0, err
	}
	n, err := c.store.DeletePrefix(strings.TrimSuffix(path, "/") + "/")
	if exact {
		n++
	}
	return n, err
}

// DeleteOrphans removes entries whose source file no longer exists.
func (c *Cache) DeleteOrphans() (int, error) {
	paths, err := c.store.Paths()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			if ok, err := c.store.Delete(p); err == nil && ok {
				removed++
			}
		}
	}
	return removed, nil
}

// Stats returns aggregate cache statistics.
func (c *Cache) Stats() (Stats, error) {
	return c.store.Stats()
}

// Clear removes every cached preview.
func (c *Cache) Clear() (int, error) {
	return c.store.Clear()
}
