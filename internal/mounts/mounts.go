// Package mounts holds the mount registry and the path guard that restricts
// every filesystem access to the configured mount roots.
package mounts

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/metrics"
)

// RootProvider supplies the current list of allowed mount roots.
// The guard polls it on every authorization check, so registry updates
// take effect immediately.
type RootProvider interface {
	Roots() []string
}

// Registry is an in-memory mount registry.
type Registry struct {
	mu     sync.RWMutex
	mounts []config.Mount
}

// NewRegistry creates a registry with the given mounts.
func NewRegistry(mounts []config.Mount) *Registry {
	return &Registry{mounts: append([]config.Mount(nil), mounts...)}
}

// Mounts returns a copy of the registered mounts.
func (r *Registry) Mounts() []config.Mount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]config.Mount(nil), r.mounts...)
}

// Roots returns the absolute paths of all registered mounts.
func (r *Registry) Roots() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roots := make([]string, len(r.mounts))
	for i, m := range r.mounts {
		roots[i] = m.Path
	}
	return roots
}

// SetMounts replaces the registered mounts.
func (r *Registry) SetMounts(mounts []config.Mount) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mounts = append([]config.Mount(nil), mounts...)
}

// Guard authorizes filesystem paths against the mount allowlist.
type Guard struct {
	roots RootProvider
}

// NewGuard creates a path guard over the given root provider.
func NewGuard(roots RootProvider) *Guard {
	return &Guard{roots: roots}
}

// Authorize reports whether path may be touched. A path is allowed when it
// contains no parent-directory segment and is equal to, or separator-bounded
// under, one of the mount roots. The returned reason is empty when allowed.
func (g *Guard) Authorize(path string) (bool, string) {
	allowed, reason := g.check(path)
	metrics.RecordAuthorization(allowed)
	return allowed, reason
}

func (g *Guard) check(path string) (bool, string) {
	if path == "" {
		return false, "empty path"
	}
	if hasTraversal(path) {
		return false, "path contains a parent-directory segment"
	}
	clean := filepath.Clean(path)
	for _, root := range g.roots.Roots() {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true, ""
		}
	}
	return false, "path is outside the configured mounts"
}

// hasTraversal reports whether any segment of path is "..".
// The raw path is inspected before cleaning so that attempts like
// /data/sub/../../etc are rejected even when they clean to an allowed
// looking prefix.
func hasTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}
