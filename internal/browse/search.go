package browse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftfs/driftfs/internal/fserr"
)

// DefaultSearchLimit caps search results when the caller does not.
const DefaultSearchLimit = 100

// SearchFiles walks basePath collecting entries whose name contains query
// (case-insensitive). Non-recursive mode scans only the immediate
// directory. Traversal stops once the limit is reached; unreadable
// subdirectories are skipped.
func (l *Lister) SearchFiles(ctx context.Context, basePath, query string, opts SearchOptions) ([]FileItem, error) {
	if ok, reason := l.guard.Authorize(basePath); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}
	info, err := os.Stat(basePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("directory %s does not exist", basePath)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", basePath)
	}
	if !info.IsDir() {
		return nil, fserr.NotFound("%s is not a directory", basePath)
	}

	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	query = strings.ToLower(query)

	items := make([]FileItem, 0, opts.Limit)
	queue := []string{basePath}
	for len(queue) > 0 && len(items) < opts.Limit {
		if err := ctx.Err(); err != nil {
			return items, fserr.Wrap(fserr.KindTransient, err, "search cancelled")
		}

		dir := queue[0]
		queue = queue[1:]

		des, err := os.ReadDir(dir)
		if err != nil {
			// Unreadable subdirectory: skip, not fatal.
			continue
		}
		for _, de := range des {
			if len(items) >= opts.Limit {
				break
			}
			name := de.Name()
			if !opts.ShowHidden && isHidden(name) {
				continue
			}
			if query == "" || strings.Contains(strings.ToLower(name), query) {
				if item, err := statEntry(dir, name); err == nil {
					items = append(items, *item)
				}
			}
			if opts.Recursive && de.IsDir() {
				queue = append(queue, filepath.Join(dir, name))
			}
		}
	}
	return items, nil
}
