package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/onnwee/cloudlog/internal/cloudlog"
	"github.com/onnwee/cloudlog/internal/jobs"
	"github.com/onnwee/cloudlog/internal/tracing"
)

// DefaultSnapshotInterval is how often the snapshot file is rewritten.
const DefaultSnapshotInterval = 30 * time.Second

// ErrEmptySnapshotPath is returned when no file path is configured.
var ErrEmptySnapshotPath = errors.New("snapshot path cannot be empty")

// FileSnapshot periodically writes the full buffer to a JSON file,
// oldest entry first, in the same shape the /logs endpoint returns.
type FileSnapshot struct {
	path     string
	interval time.Duration
	buffer   *cloudlog.Buffer
	logger   *slog.Logger
	metrics  *jobs.Metrics

	mu      sync.Mutex
	lastErr error
}

// NewFileSnapshot creates a FileSnapshot for path.
func NewFileSnapshot(path string, interval time.Duration, buffer *cloudlog.Buffer, logger *slog.Logger) (*FileSnapshot, error) {
	if path == "" {
		return nil, ErrEmptySnapshotPath
	}
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSnapshot{path: path, interval: interval, buffer: buffer, logger: logger}, nil
}

// SetMetrics records every write as a snapshot job in m.
func (f *FileSnapshot) SetMetrics(m *jobs.Metrics) {
	f.metrics = m
}

// Err returns the error of the most recent write, or nil.
func (f *FileSnapshot) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Run rewrites the file every interval until ctx is cancelled, then writes
// one final snapshot.
func (f *FileSnapshot) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := f.Write(context.WithoutCancel(ctx)); err != nil {
				f.logger.Warn("final snapshot failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			if err := f.Write(ctx); err != nil {
				f.logger.Warn("snapshot failed",
					slog.String("path", f.path),
					slog.String("error", err.Error()))
			}
		}
	}
}

// Write replaces the snapshot file with the current buffer contents.
// The file is written to a temporary name first and renamed into place.
func (f *FileSnapshot) Write(ctx context.Context) (err error) {
	_, endSpan := tracing.StartSinkSpan(ctx, "file", "write")
	defer func() {
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
		endSpan(err)
	}()

	start := time.Now()
	data, err := json.Marshal(f.buffer.Snapshot())
	if err != nil {
		f.metrics.Observe(jobs.JobTypeSnapshot, start, "encode")
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := f.writeFile(data); err != nil {
		f.metrics.Observe(jobs.JobTypeSnapshot, start, "io")
		return err
	}
	f.metrics.Observe(jobs.JobTypeSnapshot, start, "")
	return nil
}

func (f *FileSnapshot) writeFile(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}
