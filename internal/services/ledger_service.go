package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/catalog"
	"smartaccounting/internal/core"
	"smartaccounting/internal/metrics"
)

// LedgerStore is the record persistence the ledger needs.
type LedgerStore interface {
	AddRecord(ctx context.Context, rec core.Record) (int64, error)
	UpdateRecord(ctx context.Context, rec core.Record) error
	DeleteRecord(ctx context.Context, userID string, id int64) error
	DeleteAllRecords(ctx context.Context, userID string) (int64, error)
	GetRecord(ctx context.Context, userID string, id int64) (core.Record, error)
	ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error)
	CountRecords(ctx context.Context, userID string) (int64, error)
}

// Publisher announces ledger changes. A nil Publisher disables events.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *amqp.RecordChangedMessage) error
}

// Invalidator drops cached results derived from a user's ledger.
type Invalidator interface {
	Invalidate(userID string)
}

// LedgerService validates and stores ledger records, then tells the rest
// of the system about the change.
type LedgerService struct {
	store       LedgerStore
	publisher   Publisher
	invalidator Invalidator
	catalog     *catalog.Catalog
	strict      bool
}

func NewLedgerService(store LedgerStore, publisher Publisher, invalidator Invalidator, cat *catalog.Catalog, strict bool) *LedgerService {
	if cat == nil {
		cat = catalog.Default()
	}
	return &LedgerService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		catalog:     cat,
		strict:      strict,
	}
}

// Catalog returns the category catalogue in use.
func (s *LedgerService) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *LedgerService) prepare(userID string, rec core.Record) (core.Record, error) {
	rec.UserID = userID
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Note = strings.TrimSpace(rec.Note)
	rec.ImagePath = strings.TrimSpace(rec.ImagePath)
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	if s.strict {
		if err := s.catalog.Check(rec.Type, rec.Category); err != nil {
			return core.Record{}, err
		}
	}
	return rec, nil
}

// AddRecord stores a new record for userID and returns it with its id.
func (s *LedgerService) AddRecord(ctx context.Context, userID string, rec core.Record) (core.Record, error) {
	rec, err := s.prepare(userID, rec)
	if err != nil {
		return core.Record{}, err
	}

	id, err := s.store.AddRecord(ctx, rec)
	metrics.RecordMutation(string(amqp.OpCreate), err)
	if err != nil {
		return core.Record{}, fmt.Errorf("save record: %w", err)
	}

	s.changed(ctx, userID, id, amqp.OpCreate)
	return s.store.GetRecord(ctx, userID, id)
}

// UpdateRecord rewrites an existing record. The record must belong to userID.
func (s *LedgerService) UpdateRecord(ctx context.Context, userID string, rec core.Record) (core.Record, error) {
	if rec.ID <= 0 {
		return core.Record{}, core.ErrNotFound
	}
	rec, err := s.prepare(userID, rec)
	if err != nil {
		return core.Record{}, err
	}

	err = s.store.UpdateRecord(ctx, rec)
	metrics.RecordMutation(string(amqp.OpUpdate), err)
	if err != nil {
		return core.Record{}, fmt.Errorf("update record %d: %w", rec.ID, err)
	}

	s.changed(ctx, userID, rec.ID, amqp.OpUpdate)
	return s.store.GetRecord(ctx, userID, rec.ID)
}

func (s *LedgerService) DeleteRecord(ctx context.Context, userID string, id int64) error {
	err := s.store.DeleteRecord(ctx, userID, id)
	metrics.RecordMutation(string(amqp.OpDelete), err)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	s.changed(ctx, userID, id, amqp.OpDelete)
	return nil
}

// DeleteAllRecords clears the user's ledger and returns how many records went.
func (s *LedgerService) DeleteAllRecords(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.DeleteAllRecords(ctx, userID)
	metrics.RecordMutation(string(amqp.OpDeleteAll), err)
	if err != nil {
		return 0, fmt.Errorf("delete all records: %w", err)
	}
	s.changed(ctx, userID, 0, amqp.OpDeleteAll)
	return n, nil
}

func (s *LedgerService) GetRecord(ctx context.Context, userID string, id int64) (core.Record, error) {
	return s.store.GetRecord(ctx, userID, id)
}

// ListRecords returns the user's records matching f.
func (s *LedgerService) ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListRecords(ctx, userID, f)
}

func (s *LedgerService) CountRecords(ctx context.Context, userID string) (int64, error) {
	return s.store.CountRecords(ctx, userID)
}

// changed invalidates cached reports and publishes an event. Publish
// failures are logged only: the record is already stored.
func (s *LedgerService) changed(ctx context.Context, userID string, id int64, op amqp.Op) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
	publishChange(ctx, s.publisher, amqp.NewRecordChangedMessage(userID, id, op))
}

func publishChange(ctx context.Context, p Publisher, msg *amqp.RecordChangedMessage) {
	if p == nil {
		slog.DebugContext(ctx, "AMQP disabled, skipping record changed message", "op", msg.Op)
		return
	}
	err := p.PublishRecordChanged(ctx, msg)
	metrics.RecordPublish(err)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to publish record changed message",
			"user_id", msg.UserID,
			"record_id", msg.RecordID,
			"op", msg.Op,
			"error", err)
	}
}
