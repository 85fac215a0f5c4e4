package browse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/driftfs/driftfs/internal/fserr"
	"github.com/driftfs/driftfs/internal/mounts"
)

// NeighborFinder locates the files around a target inside its parent
// directory, in name-sorted order, for previous/next viewer navigation.
// It shares the Lister's directory cache so repeated navigation does not
// re-read or re-sort the directory.
type NeighborFinder struct {
	guard *mounts.Guard
	cache *DirectoryCache
}

// NewNeighborFinder creates a finder sharing the given directory cache.
func NewNeighborFinder(guard *mounts.Guard, cache *DirectoryCache) *NeighborFinder {
	return &NeighborFinder{guard: guard, cache: cache}
}

// GetNeighbors returns a window of sibling files around targetPath, the
// target included, filtered by the optional media type. HasPrevious and
// HasNext report whether matching files exist beyond the window, with
// their paths, without materializing the rest of the directory.
func (f *NeighborFinder) GetNeighbors(ctx context.Context, targetPath string, opts NeighborOptions) (*NeighborResult, error) {
	if ok, reason := f.guard.Authorize(targetPath); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("%s does not exist", targetPath)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", targetPath)
	}
	if info.IsDir() {
		return nil, fserr.Invalid("%s is a directory", targetPath)
	}

	parent := filepath.Dir(targetPath)
	entry, err := loadEntries(f.cache, parent)
	if err != nil {
		return nil, err
	}
	sorted := entry.SortedByName()

	found := findExact(sorted, filepath.Base(targetPath))
	if found < 0 {
		return nil, fserr.NotFound("%s not present in its parent listing", targetPath)
	}

	if opts.Before < 0 {
		opts.Before = 0
	}
	if opts.After < 0 {
		opts.After = 0
	}

	matches := func(e DirEntry) bool {
		return !e.IsDir() && hasMediaType(e.Name, opts.MediaType)
	}

	result := &NeighborResult{}

	// Walk backward collecting up to Before matches, then probe one
	// further to learn whether more exist.
	var before []DirEntry
	for i := found - 1; i >= 0; i-- {
		if !matches(sorted[i]) {
			continue
		}
		if len(before) < opts.Before {
			before = append(before, sorted[i])
			continue
		}
		result.HasPrevious = true
		result.PreviousPath = filepath.Join(parent, sorted[i].Name)
		break
	}

	var after []DirEntry
	for i := found + 1; i < len(sorted); i++ {
		if !matches(sorted[i]) {
			continue
		}
		if len(after) < opts.After {
			after = append(after, sorted[i])
			continue
		}
		result.HasNext = true
		result.NextPath = filepath.Join(parent, sorted[i].Name)
		break
	}

	window := make([]DirEntry, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- { // collected in reverse
		window = append(window, before[i])
	}
	window = append(window, DirEntry{Name: filepath.Base(targetPath)})
	window = append(window, after...)

	items := statEntries(ctx, parent, window)
	result.Items = items
	return result, nil
}

// findExact binary-searches the name-sorted entries for name, then scans
// outward across the run of collation-equal neighbors for the entry whose
// name matches exactly. Distinct entries can collate equal (case or
// normalization differences), so the scan disambiguates.
func findExact(sorted []DirEntry, name string) int {
	idx := sort.Search(len(sorted), func(i int) bool {
		return CompareNames(sorted[i].Name, name) >= 0
	})

	isMatch := func(i int) bool {
		return sorted[i].Name == name && !sorted[i].IsDir()
	}
	for i := idx; i < len(sorted) && collatedEqual(sorted[i].Name, name); i++ {
		if isMatch(i) {
			return i
		}
	}
	for i := idx - 1; i >= 0 && collatedEqual(sorted[i].Name, name); i-- {
		if isMatch(i) {
			return i
		}
	}
	return -1
}

// collatedEqual reports whether two names compare equal under collation
// alone, ignoring the bytewise tiebreak of CompareNames.
func collatedEqual(a, b string) bool {
	return compareCollated(a, b) == 0
}
