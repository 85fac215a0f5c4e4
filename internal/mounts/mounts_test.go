package mounts

import (
	"testing"

	"github.com/driftfs/driftfs/internal/config"
)

func newTestGuard(roots ...string) *Guard {
	mounts := make([]config.Mount, len(roots))
	for i, r := range roots {
		mounts[i] = config.Mount{Label: "m", Path: r}
	}
	return NewGuard(NewRegistry(mounts))
}

func TestGuardAllowsPathsUnderMount(t *testing.T) {
	g := newTestGuard("/data")

	cases := []string{
		"/data",
		"/data/x",
		"/data/sub/deep/file.txt",
	}
	for _, path := range cases {
		if ok, reason := g.Authorize(path); !ok {
			t.Errorf("Authorize(%q) denied: %s", path, reason)
		}
	}
}

func TestGuardDeniesOutsideMount(t *testing.T) {
	g := newTestGuard("/data")

	cases := []string{
		"/other/x",
		"/",
		"/datafake/x", // prefix match must be separator-bounded
		"",
	}
	for _, path := range cases {
		if ok, _ := g.Authorize(path); ok {
			t.Errorf("Authorize(%q) allowed, want denied", path)
		}
	}
}

func TestGuardDeniesTraversal(t *testing.T) {
	g := newTestGuard("/data")

	cases := []string{
		"/data/sub/../../etc/passwd",
		"/data/..",
		"../data/x",
	}
	for _, path := range cases {
		if ok, _ := g.Authorize(path); ok {
			t.Errorf("Authorize(%q) allowed, want denied", path)
		}
	}
}

func TestGuardMultipleMounts(t *testing.T) {
	g := newTestGuard("/data", "/srv/media")

	if ok, reason := g.Authorize("/srv/media/photos/a.jpg"); !ok {
		t.Errorf("second mount denied: %s", reason)
	}
	if ok, _ := g.Authorize("/srv/other"); ok {
		t.Error("sibling of second mount allowed")
	}
}

func TestRegistryUpdateTakesEffect(t *testing.T) {
	reg := NewRegistry([]config.Mount{{Label: "a", Path: "/a"}})
	g := NewGuard(reg)

	if ok, _ := g.Authorize("/b/file"); ok {
		t.Fatal("unregistered mount allowed")
	}
	reg.SetMounts([]config.Mount{{Label: "b", Path: "/b"}})
	if ok, reason := g.Authorize("/b/file"); !ok {
		t.Fatalf("new mount denied after registry update: %s", reason)
	}
	if ok, _ := g.Authorize("/a/file"); ok {
		t.Fatal("removed mount still allowed")
	}
}
