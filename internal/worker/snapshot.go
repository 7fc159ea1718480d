// Package worker runs the background backup snapshots of the arcade documents
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/advent-arcade/internal/config"
	"github.com/advent-arcade/internal/metrics"
	"github.com/advent-arcade/internal/storage"
)

// SnapshotKeys are the documents copied to the backup store
var SnapshotKeys = []string{storage.KeyStats, storage.KeyUsers, storage.KeyGames}

// SnapshotWorker periodically copies documents from the primary store to a
// backup store
type SnapshotWorker struct {
	primary storage.Store
	backup  storage.Store
	config  *config.SnapshotConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(
	primary storage.Store,
	backup storage.Store,
	cfg *config.SnapshotConfig,
	logger *slog.Logger,
) *SnapshotWorker {
	return &SnapshotWorker{
		primary: primary,
		backup:  backup,
		config:  cfg,
		logger:  logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the background snapshot process
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if w.config.Interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %s", w.config.Interval)
	}
	w.running = true

	w.logger.Info("snapshot worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background snapshot process
func (w *SnapshotWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.logger.Info("snapshot worker stopped")
	return nil
}

// run is the main worker loop
func (w *SnapshotWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("snapshot cycle failed", "error", err)
			}
		}
	}
}

// RunOnce copies every snapshot document present in the primary store and
// returns how many were copied. A failing document does not stop the others.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	copied := 0
	var errs []error

	for _, key := range SnapshotKeys {
		data, err := w.primary.Read(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", key, err))
			continue
		}
		if err := w.backup.Write(ctx, key, data); err != nil {
			errs = append(errs, fmt.Errorf("writing backup of %s: %w", key, err))
			continue
		}
		copied++
	}

	err := errors.Join(errs...)
	metrics.RecordSnapshot(err == nil)
	w.logger.Info("snapshot cycle completed",
		"duration", time.Since(start),
		"copied", copied,
		"errors", len(errs),
	)
	return copied, err
}

// Restore fills documents missing from the primary store with their backup
// copy. Documents already present in the primary are never overwritten.
func (w *SnapshotWorker) Restore(ctx context.Context) (int, error) {
	w.logger.Info("restoring missing documents from backup")

	restored := 0
	for _, key := range SnapshotKeys {
		_, err := w.primary.Read(ctx, key)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return restored, fmt.Errorf("checking %s: %w", key, err)
		}

		data, err := w.backup.Read(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return restored, fmt.Errorf("reading backup of %s: %w", key, err)
		}
		if err := w.primary.Write(ctx, key, data); err != nil {
			return restored, fmt.Errorf("restoring %s: %w", key, err)
		}

		w.logger.Info("restored document from backup", "key", key, "bytes", len(data))
		restored++
	}

	return restored, nil
}

// IsRunning returns whether the worker is currently running
func (w *SnapshotWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
