// driftfs server
//
// Features:
// - Mount-scoped filesystem browsing with a bounded directory cache
// - Sorted, paginated listings with parallel stat batches
// - Media neighbor navigation (previous/next within a directory)
// - Chunked out-of-order uploads with durable session state
// - Thumbnail generation (images + PDF first page) with a persistent cache
// - Prometheus metrics & structured logging (zap)
// - SSE change events
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/api"
	"github.com/driftfs/driftfs/internal/browse"
	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/events"
	"github.com/driftfs/driftfs/internal/fsops"
	"github.com/driftfs/driftfs/internal/logging"
	"github.com/driftfs/driftfs/internal/metrics"
	"github.com/driftfs/driftfs/internal/mounts"
	"github.com/driftfs/driftfs/internal/thumbs"
	"github.com/driftfs/driftfs/internal/upload"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("driftfs server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Int("mounts", len(cfg.Mounts)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logging.Fatal("data dir create failed", zap.Error(err))
	}

	// Mount registry and path guard
	registry := mounts.NewRegistry(cfg.Mounts)
	guard := mounts.NewGuard(registry)
	for _, m := range cfg.Mounts {
		logging.Info("mount registered", zap.String("label", m.Label), zap.String("path", m.Path))
	}

	// Directory cache over all listings and neighbor lookups
	dirCache := browse.NewDirectoryCache(browse.CacheConfig{
		Capacity: cfg.DirCacheCapacity,
		TTL:      cfg.DirCacheTTL,
	})
	lister := browse.NewLister(guard, dirCache)
	neighbors := browse.NewNeighborFinder(guard, dirCache)

	// SSE broadcaster
	broadcaster := events.NewBroadcaster()

	// Upload session store (embedded SQLite)
	sessionStore, err := upload.OpenSQLiteStore(filepath.Join(cfg.DataDir, "uploads.db"))
	if err != nil {
		logging.Fatal("upload session store open failed", zap.Error(err))
	}
	defer sessionStore.Close()

	uploadManager := upload.NewManager(guard, sessionStore, dirCache, broadcaster, upload.Config{
		ChunkSize: cfg.ChunkSize,
		Expiry:    cfg.UploadExpiry,
	})

	// Thumbnail store (embedded Badger)
	thumbStore, err := thumbs.OpenBadgerStore(filepath.Join(cfg.DataDir, "thumbs"))
	if err != nil {
		logging.Fatal("thumbnail store open failed", zap.Error(err))
	}
	defer thumbStore.Close()

	renderer := thumbs.NewPDFToPPM(cfg.PDFToPPMPath, cfg.ThumbQuality, cfg.PDFRenderTimeout)
	thumbCache := thumbs.New(guard, thumbStore, renderer, thumbs.Config{
		Size:    cfg.ThumbSize,
		Quality: cfg.ThumbQuality,
	})

	ops := fsops.New(guard, dirCache, thumbCache, broadcaster)

	srv := api.New(registry, lister, neighbors, ops, uploadManager, thumbCache, broadcaster)

	// Start metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	// Periodic stale-upload sweep backs up the lazy in-request sweep
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := uploadManager.CleanupStale(ctx); err != nil {
					logging.Error("upload sweep failed", zap.Error(err))
				} else if n > 0 {
					logging.Info("cleaned up stale uploads", zap.Int("count", n))
				}
			}
		}
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
}
