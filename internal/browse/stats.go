package browse

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/driftfs/driftfs/internal/fserr"
)

// GetStats returns path's metadata with recursive totals filled in. For a
// directory the size covers the whole subtree and the file and folder
// counts are populated; for a plain file the file count is one and no
// folder count is reported.
func (l *Lister) GetStats(ctx context.Context, path string) (*FileItem, error) {
	if ok, reason := l.guard.Authorize(path); !ok {
		return nil, fserr.AccessDenied("%s", reason)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fserr.NotFound("%s does not exist", path)
		}
		return nil, fserr.Wrap(fserr.KindTransient, err, "stat %s", path)
	}

	item := newFileItem(path, info)
	if !info.IsDir() {
		files := int64(1)
		item.FileCount = &files
		return item, nil
	}

	var size, files, folders int64
	queue := []string{path}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fserr.Wrap(fserr.KindTransient, err, "aggregate %s", path)
		}
		dir := queue[0]
		queue = queue[1:]
		des, err := os.ReadDir(dir)
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			continue
		}
		for _, de := range des {
			if de.IsDir() {
				folders++
				queue = append(queue, filepath.Join(dir, de.Name()))
				continue
			}
			files++
			if fi, err := de.Info(); err == nil {
				size += fi.Size()
			}
		}
	}
	item.Size = size
	item.FileCount = &files
	item.FolderCount = &folders
	return item, nil
}
