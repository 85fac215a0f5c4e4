package thumbs

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/mounts"
)

// fakeRenderer stands in for pdftoppm.
type fakeRenderer struct {
	page []byte
	err  error
}

func (f *fakeRenderer) RenderFirstPage(ctx context.Context, path string) ([]byte, error) {
	return f.page, f.err
}

func (f *fakeRenderer) Available() bool { return true }

// countingStore counts writes so tests can tell cache hits from
// regeneration.
type countingStore struct {
	Store
	puts int
}

func (s *countingStore) Put(entry *Entry) error {
	s.puts++
	return s.Store.Put(entry)
}

func newTestCache(t *testing.T, renderer PageRenderer) (*Cache, *countingStore, string) {
	t.Helper()
	root := t.TempDir()
	registry := mounts.NewRegistry([]config.Mount{{Label: "test", Path: root}})
	guard := mounts.NewGuard(registry)

	badger, err := OpenBadgerStore(filepath.Join(t.TempDir(), "thumbs"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { badger.Close() })

	store := &countingStore{Store: badger}
	return New(guard, store, renderer, Config{Size: 40, Quality: 80}), store, root
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.WriteFile(path, pngBytes(t, w, h), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGetThumbnailImage(t *testing.T) {
	cache, store, root := newTestCache(t, &fakeRenderer{})
	src := filepath.Join(root, "photo.png")
	writeImage(t, src, 100, 60)

	result, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("image source should produce a thumbnail")
	}
	if result.MimeType != ThumbMimeType {
		t.Fatalf("mime = %q", result.MimeType)
	}

	// The preview is a square cover crop.
	img, err := jpeg.Decode(bytes.NewReader(result.Bytes))
	if err != nil {
		t.Fatalf("preview is not a decodable JPEG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 40 || b.Dy() != 40 {
		t.Fatalf("preview is %dx%d, want 40x40", b.Dx(), b.Dy())
	}

	// Second call serves from the store without regenerating.
	again, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(again.Bytes, result.Bytes) {
		t.Fatal("cached preview differs from generated one")
	}
	if store.puts != 1 {
		t.Fatalf("puts = %d, want 1", store.puts)
	}
}

func TestGetThumbnailStaleSource(t *testing.T) {
	cache, store, root := newTestCache(t, &fakeRenderer{})
	src := filepath.Join(root, "photo.png")
	writeImage(t, src, 100, 60)

	if _, err := cache.GetThumbnail(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	// Rewrite the source with a different mtime.
	writeImage(t, src, 80, 80)
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(src, past, past); err != nil {
		t.Fatal(err)
	}

	if _, err := cache.GetThumbnail(context.Background(), src); err != nil {
		t.Fatal(err)
	}
	if store.puts != 2 {
		t.Fatalf("stale source should regenerate, puts = %d", store.puts)
	}

	entry, ok, err := store.Get(src)
	if err != nil || !ok {
		t.Fatalf("entry missing after regeneration: %v", err)
	}
	if entry.SourceModified != past.UnixNano() {
		t.Fatal("regenerated entry should carry the new source mtime")
	}
}

func TestGetThumbnailUnsupported(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})
	src := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(src, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatal("text file should have no thumbnail")
	}
}

func TestGetThumbnailPDF(t *testing.T) {
	page := pngBytes(t, 120, 90)
	cache, _, root := newTestCache(t, &fakeRenderer{page: page})
	src := filepath.Join(root, "doc.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if result == nil {
		t.Fatal("rendered pdf page should produce a thumbnail")
	}
	if _, err := jpeg.Decode(bytes.NewReader(result.Bytes)); err != nil {
		t.Fatalf("pdf preview is not a JPEG: %v", err)
	}
}

func TestGetThumbnailRendererFailure(t *testing.T) {
	cache, store, root := newTestCache(t, &fakeRenderer{err: errors.New("pdftoppm not found")})
	src := filepath.Join(root, "doc.pdf")
	if err := os.WriteFile(src, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatal("renderer failure should degrade to no thumbnail")
	}
	if store.puts != 0 {
		t.Fatal("failed generation must not be stored")
	}
}

func TestGetThumbnailCorruptImage(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})
	src := filepath.Join(root, "broken.png")
	if err := os.WriteFile(src, []byte("not a png at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := cache.GetThumbnail(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatal("undecodable image should degrade to no thumbnail")
	}
}

func TestGetThumbnailErrors(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})

	_, err := cache.GetThumbnail(context.Background(), "/outside/x.png")
	if !fserr.IsKind(err, fserr.KindAccessDenied) {
		t.Fatalf("outside mount: err = %v", err)
	}

	_, err = cache.GetThumbnail(context.Background(), filepath.Join(root, "missing.png"))
	if !fserr.IsKind(err, fserr.KindNotFound) {
		t.Fatalf("missing source: err = %v", err)
	}

	_, err = cache.GetThumbnail(context.Background(), root)
	if !fserr.IsKind(err, fserr.KindInvalid) {
		t.Fatalf("directory: err = %v", err)
	}
}

func TestInvalidateTree(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})
	sub := filepath.Join(root, "album")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	inside1 := filepath.Join(sub, "a.png")
	inside2 := filepath.Join(sub, "b.png")
	outside := filepath.Join(root, "c.png")
	for _, p := range []string{inside1, inside2, outside} {
		writeImage(t, p, 50, 50)
		if _, err := cache.GetThumbnail(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := cache.InvalidateTree(sub)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 1 {
		t.Fatalf("remaining count = %d, want 1", stats.Count)
	}

	// A plain file with its own entry counts exactly once.
	removed, err = cache.InvalidateTree(outside)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("file invalidation removed = %d, want 1", removed)
	}
	// Nothing cached under this path: nothing removed.
	removed, err = cache.InvalidateTree(outside)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 0 {
		t.Fatalf("repeat invalidation removed = %d, want 0", removed)
	}
}

func TestDeleteOrphans(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})
	keep := filepath.Join(root, "keep.png")
	gone := filepath.Join(root, "gone.png")
	for _, p := range []string{keep, gone} {
		writeImage(t, p, 50, 50)
		if _, err := cache.GetThumbnail(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}

	removed, err := cache.DeleteOrphans()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok, _ := cache.store.Get(keep); !ok {
		t.Fatal("live source's thumbnail should survive")
	}
}

func TestClear(t *testing.T) {
	cache, _, root := newTestCache(t, &fakeRenderer{})
	src := filepath.Join(root, "a.png")
	writeImage(t, src, 50, 50)
	if _, err := cache.GetThumbnail(context.Background(), src); err != nil {
		t.Fatal(err)
	}

	removed, err := cache.Clear()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	stats, err := cache.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Count != 0 || stats.TotalBytes != 0 {
		t.Fatalf("stats after clear = %+v", stats)
	}
}
