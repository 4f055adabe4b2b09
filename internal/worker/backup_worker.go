// Package worker keeps per-user backups and mirrors in step with the ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/core"
	"smartaccounting/internal/metrics"
	"smartaccounting/internal/services"
	"smartaccounting/internal/sheets"
)

const refreshConcurrency = 4

// LedgerReader lists users and their records.
type LedgerReader interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error)
}

// Exporter writes a user's backup file.
type Exporter interface {
	Export(ctx context.Context, userID string) (services.ExportResult, error)
}

// BackupWorker re-exports a user's backup whenever their ledger changes and
// optionally mirrors the ledger to a spreadsheet.
type BackupWorker struct {
	ledger   LedgerReader
	exporter Exporter
	mirror   sheets.RecordMirror // nil disables mirroring

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewBackupWorker(ledger LedgerReader, exporter Exporter, mirror sheets.RecordMirror) *BackupWorker {
	return &BackupWorker{ledger: ledger, exporter: exporter, mirror: mirror}
}

// HandleRecordChanged refreshes the backup and mirror of msg.UserID.
func (w *BackupWorker) HandleRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error {
	slog.InfoContext(ctx, "Processing record changed message",
		"user_id", msg.UserID,
		"record_id", msg.RecordID,
		"op", msg.Op)
	return w.refreshUser(ctx, msg.UserID)
}

func (w *BackupWorker) refreshUser(ctx context.Context, userID string) error {
	res, err := w.exporter.Export(ctx, userID)
	switch {
	case errors.Is(err, services.ErrNothingToExport):
		// keep the last backup around so an accidental wipe can be undone
		slog.InfoContext(ctx, "Ledger empty, leaving backup untouched", "user_id", userID)
	case err != nil:
		return fmt.Errorf("export %s: %w", userID, err)
	default:
		slog.DebugContext(ctx, "Backup refreshed", "user_id", userID, "count", res.Count)
	}

	if w.mirror == nil {
		return nil
	}
	recs, err := w.ledger.ListRecords(ctx, userID, core.Filter{Sort: core.SortOldest})
	if err != nil {
		return fmt.Errorf("load records for %s: %w", userID, err)
	}
	if err := w.mirror.ReplaceUserRecords(ctx, userID, recs); err != nil {
		return fmt.Errorf("mirror %s: %w", userID, err)
	}
	return nil
}

// RefreshAll refreshes every user. It keeps going past individual failures
// and returns them joined.
func (w *BackupWorker) RefreshAll(ctx context.Context) error {
	users, err := w.ledger.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, u := range users {
		g.Go(func() error {
			if err := w.refreshUser(gctx, u); err != nil {
				slog.ErrorContext(gctx, "Refresh failed", "user_id", u, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.MarkRefresh(time.Now())
	slog.InfoContext(ctx, "Reconciliation finished", "users", len(users), "failed", len(errs))
	return errors.Join(errs...)
}

// Start runs RefreshAll immediately and then every interval until Stop or
// ctx is done.
func (w *BackupWorker) Start(ctx context.Context, interval time.Duration) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("backup worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.runLoop(ctx, interval, stopCh, doneCh)
	slog.InfoContext(ctx, "Backup worker started", "refresh_interval", interval)
	return nil
}

// Stop signals the loop and waits for it, bounded by ctx.
func (w *BackupWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)
	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Backup worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Backup worker stop timed out")
		return ctx.Err()
	}
}

func (w *BackupWorker) runLoop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := w.RefreshAll(ctx); err != nil {
		slog.WarnContext(ctx, "Startup reconciliation had failures", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RefreshAll(ctx); err != nil {
				slog.WarnContext(ctx, "Reconciliation had failures", "error", err)
			}
		}
	}
}
