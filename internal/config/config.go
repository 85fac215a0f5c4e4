// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Mount is an administrator-registered filesystem root.
type Mount struct {
	Label string `json:"label"`
	Path  string `json:"path"`
}

// Config holds all driftfs server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Mounts: the filesystem roots the server is allowed to touch.
	Mounts []Mount

	// DataDir holds the upload-session database and the thumbnail store.
	DataDir string

	// Directory cache
	DirCacheTTL      time.Duration
	DirCacheCapacity int

	// Uploads
	ChunkSize    int64
	UploadExpiry time.Duration

	// Thumbnails
	ThumbSize        int
	ThumbQuality     int
	PDFToPPMPath     string
	PDFRenderTimeout time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		DataDir:          envOr("DATA_DIR", "/var/lib/driftfs"),
		DirCacheTTL:      envDuration("DIR_CACHE_TTL", 45*time.Second),
		DirCacheCapacity: envInt("DIR_CACHE_CAPACITY", 20),
		ChunkSize:        envInt64("CHUNK_SIZE", 5*1024*1024),
		UploadExpiry:     envDuration("UPLOAD_EXPIRY", 24*time.Hour),
		ThumbSize:        envInt("THUMB_SIZE", 400),
		ThumbQuality:     envInt("THUMB_QUALITY", 80),
		PDFToPPMPath:     envOr("PDFTOPPM_PATH", "pdftoppm"),
		PDFRenderTimeout: envDuration("PDF_RENDER_TIMEOUT", 30*time.Second),
	}

	mounts, err := parseMounts(os.Getenv("MOUNTS"))
	if err != nil {
		return nil, err
	}
	if len(mounts) == 0 {
		return nil, fmt.Errorf("MOUNTS is required (comma-separated label=/abs/path pairs)")
	}
	cfg.Mounts = mounts

	return cfg, nil
}

// parseMounts parses "media=/srv/media,docs=/srv/docs" into mounts.
// The label is optional; a bare path gets its base name as label.
func parseMounts(raw string) ([]Mount, error) {
	if raw == "" {
		return nil, nil
	}
	var mounts []Mount
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, path, found := strings.Cut(part, "=")
		if !found {
			path = label
			label = filepath.Base(path)
		}
		if !filepath.IsAbs(path) {
			return nil, fmt.Errorf("mount path %q is not absolute", path)
		}
		mounts = append(mounts, Mount{Label: label, Path: filepath.Clean(path)})
	}
	return mounts, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
