// Package browse implements directory listing, search, and neighbor
// navigation over the configured mounts, backed by a shared bounded
// directory cache.
package browse

import (
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// EntryKind distinguishes directories from files in a raw directory listing.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// DirEntry is a single raw directory entry: a name tagged as file or
// directory. No stat data is attached; that is resolved lazily.
type DirEntry struct {
	Name string
	Kind EntryKind
}

// IsDir reports whether the entry is a directory.
func (e DirEntry) IsDir() bool { return e.Kind == KindDirectory }

// FileItem is a fully stat-ed directory entry as returned to callers.
type FileItem struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	IsDir       bool      `json:"isDir"`
	MimeType    string    `json:"mimeType,omitempty"`
	Extension   string    `json:"extension,omitempty"`
	FileCount   *int64    `json:"fileCount,omitempty"`
	FolderCount *int64    `json:"folderCount,omitempty"`
}

// Sort keys accepted by ListDirectory.
const (
	SortByName = "name"
	SortByDate = "date"
	SortBySize = "size"
	SortByType = "type"
)

// Sort orders accepted by ListDirectory.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ListOptions controls a paginated directory listing.
type ListOptions struct {
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
	ShowHidden bool
	Search     string
}

// ListResult is one page of a directory listing.
type ListResult struct {
	Items    []FileItem `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	HasMore  bool       `json:"hasMore"`
	Warning  string     `json:"warning,omitempty"`
}

// SearchOptions controls a filename search.
type SearchOptions struct {
	Recursive  bool
	ShowHidden bool
	Limit      int
}

// NeighborOptions controls neighbor lookup around a target file.
type NeighborOptions struct {
	Before    int
	After     int
	MediaType string // "image", "video", or "" for any file
}

// NeighborResult is an ordered window of sibling files around the target,
// target included.
type NeighborResult struct {
	Items        []FileItem `json:"items"`
	HasPrevious  bool       `json:"hasPrevious"`
	HasNext      bool       `json:"hasNext"`
	PreviousPath string     `json:"previousPath,omitempty"`
	NextPath     string     `json:"nextPath,omitempty"`
}

// mimeTypeByName resolves a MIME type from the file extension alone.
// Listings must not open files, so content sniffing is out.
func mimeTypeByName(name string) string {
	mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if mt == "" {
		return "application/octet-stream"
	}
	return mt
}

// hasMediaType reports whether name's MIME type carries the given prefix
// ("image", "video"). An empty mediaType matches every file.
func hasMediaType(name, mediaType string) bool {
	if mediaType == "" {
		return true
	}
	return strings.HasPrefix(mimeTypeByName(name), mediaType+"/")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
