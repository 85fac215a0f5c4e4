package thumbs

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driftfs/driftfs/internal/logging"
)

// DefaultRenderTimeout bounds a single PDF rasterization.
const DefaultRenderTimeout = 30 * time.Second

// PageRenderer rasterizes the first page of a document to JPEG bytes.
// It is a capability: tests substitute a fake, production uses pdftoppm.
type PageRenderer interface {
	// RenderFirstPage returns the first page as JPEG bytes.
	RenderFirstPage(ctx context.Context, path string) ([]byte, error)

	// Available reports whether the renderer can run at all. Probed once
	// and cached.
	Available() bool
}

// PDFToPPM renders PDFs through the poppler pdftoppm binary.
type PDFToPPM struct {
	binary  string
	quality int
	timeout time.Duration

	probeOnce sync.Once
	available bool
}

// NewPDFToPPM creates a renderer around the given pdftoppm binary.
func NewPDFToPPM(binary string, quality int, timeout time.Duration) *PDFToPPM {
	if binary == "" {
		binary = "pdftoppm"
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &PDFToPPM{binary: binary, quality: quality, timeout: timeout}
}

// Available probes for the binary once and caches the answer.
func (r *PDFToPPM) Available() bool {
	r.probeOnce.Do(func() {
		path, err := exec.LookPath(r.binary)
		r.available = err == nil
		if err != nil {
			logging.Warn("pdftoppm not found, PDF thumbnails disabled",
				zap.String("binary", r.binary))
		} else {
			logging.Info("pdftoppm found", zap.String("path", path))
		}
	})
	return r.available
}

// RenderFirstPage rasterizes page one of the PDF at path to JPEG on stdout.
// Nonzero exit, timeout, or empty output are all failures.
func (r *PDFToPPM) RenderFirstPage(ctx context.Context, path string) ([]byte, error) {
	if !r.Available() {
		return nil, fmt.Errorf("pdftoppm is not available")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary,
		"-jpeg",
		"-f", "1", "-l", "1",
		"-jpegopt", fmt.Sprintf("quality=%d", r.quality),
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("pdftoppm timed out after %s on %s", r.timeout, path)
		}
		return nil, fmt.Errorf("pdftoppm failed on %s: %w (%s)", path, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for %s", path)
	}
	return stdout.Bytes(), nil
}
