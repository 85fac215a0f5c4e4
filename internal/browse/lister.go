package browse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/metrics"
	"github.com/driftfs/driftfs/internal/mounts"
)

const (
	// DefaultPageSize is used when the caller does not pick one.
	DefaultPageSize = 100

	// largeDirFallback is the filtered-entry count above which non-name
	// sorts fall back to the cheap name sort.
	largeDirFallback = 10000

	// statBatchLimit bounds how many stat calls run in parallel.
	statBatchLimit = 100
)

// Lister serves paginated, sorted, filtered directory listings.
type Lister struct {
	guard *mounts.Guard
	cache *DirectoryCache

	// fallbackThreshold is largeDirFallback unless overridden in tests.
	fallbackThreshold int
}

// NewLister creates a lister sharing the given directory cache.
func NewLister(guard *mounts.Guard, cache *DirectoryCache) *Lister {
	return &Lister{
		guard:             guard,
		cache:             cache,
		fallbackThreshold: largeDirFallback,
	}
}

// loadEntries returns the cached snapshot for dir, reading the directory
// fresh when the cache misses.
func loadEntries(cache *DirectoryCache, dir string) (*CacheEntry, error) {
	if entry, ok := cache.Get(dir); ok {
		return entry, nil
	}
	des, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("directory %s does not exist", dir)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "read directory %s", dir)
	}
	entries := make([]DirEntry, len(des))
	for i, de := range des {
		kind := KindFile
		if de.IsDir() {
			kind = KindDirectory
		}
		entries[i] = DirEntry{Name: de.Name(), Kind: kind}
	}
	return cache.Put(dir, entries), nil
}

// ListDirectory returns one page of dir's entries.
func (l *Lister) ListDirectory(ctx context.Context, dir string, opts ListOptions) (*ListResult, error) {
	if ok, reason := l.guard.Authorize(dir); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("directory %s does not exist", dir)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", dir)
	}
	if !info.IsDir() {
		return nil, fserr.NotFound("%s is not a directory", dir)
	}

	entry, err := loadEntries(l.cache, dir)
	if err != nil {
		return nil, err
	}

	filtered := filterEntries(entry.Entries, opts.ShowHidden, opts.Search)

	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	if opts.SortOrder != OrderDesc {
		opts.SortOrder = OrderAsc
	}

	result := &ListResult{
		Total:    len(filtered),
		Page:     opts.Page,
		PageSize: opts.PageSize,
		HasMore:  opts.Page*opts.PageSize < len(filtered),
	}

	sortBy := opts.SortBy
	switch sortBy {
	case SortByName, SortByDate, SortBySize, SortByType:
	default:
		sortBy = SortByName
	}
	if sortBy != SortByName && len(filtered) > l.fallbackThreshold {
		result.Warning = "directory too large for the requested sort; sorted by name instead"
		sortBy = SortByName
	}

	if sortBy == SortByName {
		// Cheap path: sort names without stat-ing, then stat only the
		// requested page.
		sortEntriesByName(filtered, opts.SortOrder == OrderDesc)
		page := slicePage(filtered, opts.Page, opts.PageSize)
		result.Items = statEntries(ctx, dir, page)
		metrics.RecordListing("name")
		return result, nil
	}

	items := statEntries(ctx, dir, filtered)
	sortItems(items, sortBy, opts.SortOrder == OrderDesc)
	result.Items = slicePage(items, opts.Page, opts.PageSize)
	metrics.RecordListing("stat")
	return result, nil
}

func filterEntries(entries []DirEntry, showHidden bool, search string) []DirEntry {
	search = strings.ToLower(search)
	filtered := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if !showHidden && isHidden(e.Name) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Name), search) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

// sortEntriesByName orders entries directories-first, then by name
// collation. Only the name comparison flips for descending order.
func sortEntriesByName(entries []DirEntry, desc bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		r := CompareNames(entries[i].Name, entries[j].Name)
		if desc {
			return r > 0
		}
		return r < 0
	})
}

// sortItems orders stat-ed items by the requested key. Directories always
// precede files; ties fall back to the name comparator.
func sortItems(items []FileItem, sortBy string, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		var r int
		switch sortBy {
		case SortByDate:
			switch {
			case a.Modified.Before(b.Modified):
				r = -1
			case a.Modified.After(b.Modified):
				r = 1
			}
		case SortBySize:
			switch {
			case a.Size < b.Size:
				r = -1
			case a.Size > b.Size:
				r = 1
			}
		case SortByType:
			r = strings.Compare(a.Extension, b.Extension)
		}
		if r == 0 {
			r = CompareNames(a.Name, b.Name)
		}
		if desc {
			return r > 0
		}
		return r < 0
	})
}

func slicePage[T any](s []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(s) {
		return nil
	}
	end := start + pageSize
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}

// statEntries stats entries in bounded parallel batches, preserving input
// order. Entries whose stat fails are skipped, not fatal.
func statEntries(ctx context.Context, dir string, entries []DirEntry) []FileItem {
	start := time.Now()
	slots := make([]*FileItem, len(entries))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(statBatchLimit)
	for i, e := range entries {
		g.Go(func() error {
			item, err := statEntry(dir, e.Name)
			if err == nil {
				slots[i] = item
			}
			return nil
		})
	}
	_ = g.Wait()
	metrics.RecordStatBatch(time.Since(start))

	items := make([]FileItem, 0, len(entries))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}
	return items
}

func statEntry(dir, name string) (*FileItem, error) {
	path := filepath.Join(dir, name)
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return newFileItem(path, info), nil
}

func newFileItem(path string, info fs.FileInfo) *FileItem {
	item := &FileItem{
		Name:     info.Name(),
		Path:     path,
		Modified: info.ModTime(),
		IsDir:    info.IsDir(),
	}
	if !item.IsDir {
		item.Size = info.Size()
		item.Extension = strings.ToLower(strings.TrimPrefix(filepath.Ext(item.Name), "."))
		item.MimeType = mimeTypeByName(item.Name)
	}
	return item
}
