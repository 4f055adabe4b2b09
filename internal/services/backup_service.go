package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/core"
	"smartaccounting/internal/metrics"
)

var (
	ErrNothingToExport = errors.New("no records to export")
	ErrEmptyBackup     = errors.New("backup contains no valid records")
	ErrBackupNotFound  = backup.ErrBackupNotFound
)

// BackupStore reads and replaces a user's whole ledger.
type BackupStore interface {
	ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error)
	ReplaceAllRecords(ctx context.Context, userID string, recs []core.Record) (int, error)
}

// BackupFiles persists encoded backups per user.
type BackupFiles interface {
	Write(ctx context.Context, userID string, data []byte) (string, error)
	Read(userID string) ([]byte, error)
}

type ExportResult struct {
	Count    int
	FileName string
}

type ImportResult struct {
	Imported int
	Skipped  int
}

// BackupService exports a user's ledger to JSON and restores it.
type BackupService struct {
	store       BackupStore
	files       BackupFiles
	publisher   Publisher
	invalidator Invalidator
}

func NewBackupService(store BackupStore, files BackupFiles, publisher Publisher, invalidator Invalidator) *BackupService {
	return &BackupService{
		store:       store,
		files:       files,
		publisher:   publisher,
		invalidator: invalidator,
	}
}

// Encode renders the user's ledger, oldest first, as backup JSON.
func (s *BackupService) Encode(ctx context.Context, userID string) ([]byte, int, error) {
	recs, err := s.store.ListRecords(ctx, userID, core.Filter{Sort: core.SortOldest})
	if err != nil {
		return nil, 0, fmt.Errorf("load records: %w", err)
	}
	if len(recs) == 0 {
		return nil, 0, ErrNothingToExport
	}
	data, err := backup.Encode(recs)
	if err != nil {
		return nil, 0, err
	}
	return data, len(recs), nil
}

// Export writes the user's backup file.
func (s *BackupService) Export(ctx context.Context, userID string) (res ExportResult, err error) {
	defer func() { metrics.RecordBackup("export", res.Count, err) }()

	data, n, err := s.Encode(ctx, userID)
	if err != nil {
		return ExportResult{}, err
	}
	name, err := s.files.Write(ctx, userID, data)
	if err != nil {
		return ExportResult{}, fmt.Errorf("write backup: %w", err)
	}

	slog.InfoContext(ctx, "Ledger exported", "user_id", userID, "count", n, "file", name)
	return ExportResult{Count: n, FileName: name}, nil
}

// Import restores the user's ledger from their backup file.
func (s *BackupService) Import(ctx context.Context, userID string) (ImportResult, error) {
	data, err := s.files.Read(userID)
	if err != nil {
		metrics.RecordBackup("import", 0, err)
		return ImportResult{}, err
	}
	return s.ImportData(ctx, userID, data)
}

// ImportData replaces the user's ledger with the records in data. Record
// ids are reassigned and every record is owned by userID.
func (s *BackupService) ImportData(ctx context.Context, userID string, data []byte) (res ImportResult, err error) {
	defer func() { metrics.RecordBackup("import", res.Imported, err) }()

	dec, err := backup.Decode(data)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrEmptyBackup, err)
	}
	if len(dec.Records) == 0 {
		return ImportResult{Skipped: dec.Skipped}, ErrEmptyBackup
	}

	n, err := s.store.ReplaceAllRecords(ctx, userID, dec.Records)
	if err != nil {
		return ImportResult{}, fmt.Errorf("replace records: %w", err)
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
	publishChange(ctx, s.publisher, amqp.NewRecordChangedMessage(userID, 0, amqp.OpImport))

	slog.InfoContext(ctx, "Ledger imported", "user_id", userID, "imported", n, "skipped", dec.Skipped)
	return ImportResult{Imported: n, Skipped: dec.Skipped}, nil
}
