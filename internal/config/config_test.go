package config

import "testing"

func TestParseMounts(t *testing.T) {
	mounts, err := parseMounts("media=/srv/media, docs=/srv/docs/")
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 2 {
		t.Fatalf("mounts = %+v", mounts)
	}
	if mounts[0].Label != "media" || mounts[0].Path != "/srv/media" {
		t.Fatalf("mounts[0] = %+v", mounts[0])
	}
	if mounts[1].Path != "/srv/docs" {
		t.Fatalf("trailing slash not cleaned: %+v", mounts[1])
	}
}

func TestParseMountsBarePath(t *testing.T) {
	mounts, err := parseMounts("/srv/shared")
	if err != nil {
		t.Fatal(err)
	}
	if len(mounts) != 1 || mounts[0].Label != "shared" {
		t.Fatalf("mounts = %+v", mounts)
	}
}

func TestParseMountsRelativeRejected(t *testing.T) {
	if _, err := parseMounts("media=relative/path"); err == nil {
		t.Fatal("relative mount path should be rejected")
	}
}

func TestLoadRequiresMounts(t *testing.T) {
	t.Setenv("MOUNTS", "")
	if _, err := Load(); err == nil {
		t.Fatal("empty MOUNTS should be an error")
	}

	t.Setenv("MOUNTS", "data=/srv/data")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Mounts) != 1 {
		t.Fatalf("mounts = %+v", cfg.Mounts)
	}
	if cfg.DirCacheCapacity != 20 || cfg.ThumbSize != 400 {
		t.Fatalf("defaults wrong: %+v", cfg)
	}
}
