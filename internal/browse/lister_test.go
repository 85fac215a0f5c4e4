package browse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/mounts"
)

func newTestLister(t *testing.T) (*Lister, string) {
	t.Helper()
	root := t.TempDir()
	registry := mounts.NewRegistry([]config.Mount{{Label: "test", Path: root}})
	guard := mounts.NewGuard(registry)
	cache := NewDirectoryCache(CacheConfig{Capacity: 5, TTL: time.Minute})
	return NewLister(guard, cache), root
}

func mkFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}

func names(items []FileItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestListDirectoryNameSort(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, "zebra.txt"), 1)
	mkFile(t, filepath.Join(root, "apple.txt"), 1)
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 3 {
		t.Fatalf("total = %d, want 3", result.Total)
	}
	// Directories come first regardless of name order.
	got := names(result.Items)
	want := []string{"subdir", "apple.txt", "zebra.txt"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
	if !result.Items[0].IsDir {
		t.Fatal("subdir should report IsDir")
	}
	if result.Items[1].MimeType != "text/plain; charset=utf-8" {
		t.Fatalf("mime = %q", result.Items[1].MimeType)
	}
}

func TestListDirectoryDescKeepsDirsFirst(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, "a.txt"), 1)
	mkFile(t, filepath.Join(root, "b.txt"), 1)
	if err := os.Mkdir(filepath.Join(root, "zdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{SortOrder: OrderDesc})
	if err != nil {
		t.Fatal(err)
	}
	got := names(result.Items)
	want := []string{"zdir", "b.txt", "a.txt"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
}

func TestListDirectorySizeSort(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, "big.bin"), 300)
	mkFile(t, filepath.Join(root, "small.bin"), 10)
	mkFile(t, filepath.Join(root, "mid.bin"), 100)

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{SortBy: SortBySize})
	if err != nil {
		t.Fatal(err)
	}
	got := names(result.Items)
	want := []string{"small.bin", "mid.bin", "big.bin"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items = %v, want %v", got, want)
		}
	}
}

func TestListDirectoryPagination(t *testing.T) {
	lister, root := newTestLister(t)
	for i := 0; i < 25; i++ {
		mkFile(t, filepath.Join(root, fmt.Sprintf("f%02d.txt", i)), 1)
	}

	seen := map[string]bool{}
	for page := 1; page <= 3; page++ {
		result, err := lister.ListDirectory(context.Background(), root, ListOptions{Page: page, PageSize: 10})
		if err != nil {
			t.Fatal(err)
		}
		if result.Total != 25 {
			t.Fatalf("total = %d, want 25", result.Total)
		}
		wantLen := 10
		if page == 3 {
			wantLen = 5
		}
		if len(result.Items) != wantLen {
			t.Fatalf("page %d has %d items, want %d", page, len(result.Items), wantLen)
		}
		wantMore := page < 3
		if result.HasMore != wantMore {
			t.Fatalf("page %d hasMore = %v, want %v", page, result.HasMore, wantMore)
		}
		for _, n := range names(result.Items) {
			if seen[n] {
				t.Fatalf("item %q appeared on two pages", n)
			}
			seen[n] = true
		}
	}
	if len(seen) != 25 {
		t.Fatalf("pages covered %d items, want 25", len(seen))
	}
}

func TestListDirectoryPageBeyondEnd(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, "only.txt"), 1)

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{Page: 9, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Items) != 0 || result.HasMore {
		t.Fatalf("beyond-end page should be empty, got %v", names(result.Items))
	}
	if result.Total != 1 {
		t.Fatalf("total = %d, want 1", result.Total)
	}
}

func TestListDirectoryHidesDotfiles(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, ".hidden"), 1)
	mkFile(t, filepath.Join(root, "visible.txt"), 1)

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{ShowHidden: false})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 || result.Items[0].Name != "visible.txt" {
		t.Fatalf("items = %v", names(result.Items))
	}

	result, err = lister.ListDirectory(context.Background(), root, ListOptions{ShowHidden: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Fatalf("showHidden total = %d, want 2", result.Total)
	}
}

func TestListDirectoryLargeDirFallback(t *testing.T) {
	lister, root := newTestLister(t)
	lister.fallbackThreshold = 5
	for i := 0; i < 8; i++ {
		mkFile(t, filepath.Join(root, fmt.Sprintf("f%d.txt", i)), 1)
	}

	result, err := lister.ListDirectory(context.Background(), root, ListOptions{SortBy: SortBySize})
	if err != nil {
		t.Fatal(err)
	}
	if result.Warning == "" {
		t.Fatal("oversized expensive sort should carry a warning")
	}
	// Fallback means name order, not size order.
	got := names(result.Items)
	if got[0] != "f0.txt" || got[7] != "f7.txt" {
		t.Fatalf("fallback order = %v", got)
	}

	// Name sort over the same directory stays silent.
	result, err = lister.ListDirectory(context.Background(), root, ListOptions{SortBy: SortByName})
	if err != nil {
		t.Fatal(err)
	}
	if result.Warning != "" {
		t.Fatalf("name sort should not warn, got %q", result.Warning)
	}
}

func TestListDirectoryErrors(t *testing.T) {
	lister, root := newTestLister(t)

	_, err := lister.ListDirectory(context.Background(), "/outside/root", ListOptions{})
	if !fserr.IsKind(err, fserr.KindAccessDenied) {
		t.Fatalf("outside mount: err = %v", err)
	}

	_, err = lister.ListDirectory(context.Background(), filepath.Join(root, "missing"), ListOptions{})
	if !fserr.IsKind(err, fserr.KindNotFound) {
		t.Fatalf("missing dir: err = %v", err)
	}

	mkFile(t, filepath.Join(root, "file.txt"), 1)
	_, err = lister.ListDirectory(context.Background(), filepath.Join(root, "file.txt"), ListOptions{})
	if !fserr.IsKind(err, fserr.KindNotFound) {
		t.Fatalf("file as dir: err = %v", err)
	}
}

func TestListDirectoryUsesCache(t *testing.T) {
	lister, root := newTestLister(t)
	mkFile(t, filepath.Join(root, "a.txt"), 1)

	if _, err := lister.ListDirectory(context.Background(), root, ListOptions{}); err != nil {
		t.Fatal(err)
	}

	// A file created behind the cache's back stays invisible until
	// invalidation.
	mkFile(t, filepath.Join(root, "b.txt"), 1)
	result, err := lister.ListDirectory(context.Background(), root, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 1 {
		t.Fatalf("cached total = %d, want 1", result.Total)
	}

	lister.cache.Invalidate(root)
	result, err = lister.ListDirectory(context.Background(), root, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 {
		t.Fatalf("post-invalidate total = %d, want 2", result.Total)
	}
}

func TestSearchFilesRecursive(t *testing.T) {
	lister, root := newTestLister(t)
	sub := filepath.Join(root, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mkFile(t, filepath.Join(root, "report-2024.pdf"), 1)
	mkFile(t, filepath.Join(sub, "Report-old.pdf"), 1)
	mkFile(t, filepath.Join(root, "notes.txt"), 1)

	items, err := lister.SearchFiles(context.Background(), root, "report", SearchOptions{Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("matches = %v", names(items))
	}
}

func TestSearchFilesNonRecursive(t *testing.T) {
	lister, root := newTestLister(t)
	sub := filepath.Join(root, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mkFile(t, filepath.Join(sub, "match.txt"), 1)
	mkFile(t, filepath.Join(root, "match.log"), 1)

	items, err := lister.SearchFiles(context.Background(), root, "match", SearchOptions{Recursive: false})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "match.log" {
		t.Fatalf("matches = %v", names(items))
	}
}

func TestSearchFilesLimit(t *testing.T) {
	lister, root := newTestLister(t)
	for i := 0; i < 10; i++ {
		mkFile(t, filepath.Join(root, fmt.Sprintf("hit%d.txt", i)), 1)
	}

	items, err := lister.SearchFiles(context.Background(), root, "hit", SearchOptions{Limit: 4})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 4 {
		t.Fatalf("limit ignored, got %d items", len(items))
	}
}

func TestGetStats(t *testing.T) {
	lister, root := newTestLister(t)
	sub := filepath.Join(root, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	mkFile(t, filepath.Join(root, "a.bin"), 100)
	mkFile(t, filepath.Join(sub, "b.bin"), 50)

	stats, err := lister.GetStats(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FileCount == nil || *stats.FileCount != 2 {
		t.Fatalf("fileCount = %v, want 2", stats.FileCount)
	}
	if stats.FolderCount == nil || *stats.FolderCount != 1 {
		t.Fatalf("folderCount = %v, want 1", stats.FolderCount)
	}
	if stats.Size != 150 {
		t.Fatalf("size = %d, want 150", stats.Size)
	}
	if !stats.IsDir || stats.Name != filepath.Base(root) {
		t.Fatalf("stats = %+v", stats)
	}

	// Stats of a single file.
	stats, err = lister.GetStats(context.Background(), filepath.Join(root, "a.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.FileCount == nil || *stats.FileCount != 1 {
		t.Fatalf("fileCount = %v, want 1", stats.FileCount)
	}
	if stats.FolderCount != nil {
		t.Fatalf("folderCount = %v, want nil", stats.FolderCount)
	}
	if stats.Size != 100 {
		t.Fatalf("size = %d, want 100", stats.Size)
	}
}
