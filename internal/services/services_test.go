package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartaccounting/internal/amqp"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/catalog"
	"smartaccounting/internal/core"
	"smartaccounting/internal/storage"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*amqp.RecordChangedMessage
	err  error
}

func (p *recordingPublisher) PublishRecordChanged(_ context.Context, msg *amqp.RecordChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) ops() []amqp.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Op, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Op
	}
	return out
}

type fixture struct {
	repo    *storage.SQLiteRepository
	pub     *recordingPublisher
	ledger  *LedgerService
	reports *ReportService
	backups *BackupService
	files   *backup.FileStore
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	files, err := backup.NewFileStore(filepath.Join(dir, "backups"))
	require.NoError(t, err)

	pub := &recordingPublisher{}
	reports := NewReportService(repo)
	return &fixture{
		repo:    repo,
		pub:     pub,
		reports: reports,
		files:   files,
		ledger:  NewLedgerService(repo, pub, reports, catalog.Default(), strict),
		backups: NewBackupService(repo, files, pub, reports),
	}
}

func expense(cat string, cents int64, d core.Date) core.Record {
	return core.Record{Type: core.Expense, Category: cat, Amount: core.Money{Cents: cents}, Date: d}
}

func TestLedgerServiceCRUD(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	rec, err := f.ledger.AddRecord(ctx, "alice", expense("  餐饮 ", 1200, core.NewDate(2025, 3, 1)))
	require.NoError(t, err)
	assert.Positive(t, rec.ID)
	assert.Equal(t, "餐饮", rec.Category)
	assert.Equal(t, "alice", rec.UserID)

	rec.Amount = core.Money{Cents: 1500}
	rec.UserID = "mallory"
	updated, err := f.ledger.UpdateRecord(ctx, "alice", rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), updated.Amount.Cents)

	_, err = f.ledger.UpdateRecord(ctx, "bob", rec)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.ledger.DeleteRecord(ctx, "bob", rec.ID), core.ErrNotFound)

	require.NoError(t, f.ledger.DeleteRecord(ctx, "alice", rec.ID))
	_, err = f.ledger.GetRecord(ctx, "alice", rec.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []amqp.Op{amqp.OpCreate, amqp.OpUpdate, amqp.OpDelete}, f.pub.ops())
}

func TestLedgerServiceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	cases := []struct {
		name string
		rec  core.Record
		want error
	}{
		{"bad type", core.Record{Type: "gift", Category: "餐饮", Amount: core.Money{Cents: 1}, Date: core.NewDate(2025, 1, 1)}, core.ErrInvalidType},
		{"blank category", expense("  ", 1, core.NewDate(2025, 1, 1)), core.ErrEmptyCategory},
		{"zero amount", expense("餐饮", 0, core.NewDate(2025, 1, 1)), core.ErrInvalidAmount},
		{"no date", expense("餐饮", 1, core.Date{}), core.ErrInvalidDate},
		{"unknown category", expense("Yachts", 1, core.NewDate(2025, 1, 1)), catalog.ErrUnknownCategory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.AddRecord(ctx, "alice", tc.rec)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, f.pub.ops())

	_, err := f.ledger.ListRecords(ctx, "alice", core.Filter{Range: core.DateRange{Start: core.NewDate(2025, 2, 1), End: core.NewDate(2025, 1, 1)}})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.pub.err = errors.New("broker down")

	rec, err := f.ledger.AddRecord(ctx, "alice", expense("餐饮", 100, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)
	assert.Positive(t, rec.ID)
}

func TestNilPublisher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	svc := NewLedgerService(f.repo, nil, nil, nil, false)

	_, err := svc.AddRecord(ctx, "alice", expense("餐饮", 100, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)
	n, err := svc.DeleteAllRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReportsAndCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	march := core.DateRange{Start: core.NewDate(2025, 3, 1), End: core.NewDate(2025, 3, 31)}

	_, err := f.ledger.AddRecord(ctx, "alice", core.Record{Type: core.Income, Category: "工资", Amount: core.Money{Cents: 10000}, Date: core.NewDate(2025, 3, 1)})
	require.NoError(t, err)
	_, err = f.ledger.AddRecord(ctx, "alice", expense("餐饮", 3000, core.NewDate(2025, 3, 2)))
	require.NoError(t, err)
	_, err = f.ledger.AddRecord(ctx, "alice", expense("交通", 1000, core.NewDate(2025, 3, 2)))
	require.NoError(t, err)

	sum, err := f.reports.Summary(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), sum.Balance().Cents)

	cats, err := f.reports.CategoryBreakdown(ctx, "alice", march)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "餐饮", cats[0].Category)
	assert.Equal(t, 75.0, cats[0].Percent)

	trend, err := f.reports.Trend(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, core.ByDay, trend.Granularity)
	require.Len(t, trend.Points, 2)
	assert.Equal(t, "02", trend.Points[1].Label())

	// cached until the ledger changes
	_, err = f.ledger.AddRecord(ctx, "alice", expense("餐饮", 1000, core.NewDate(2025, 3, 3)))
	require.NoError(t, err)
	sum, err = f.reports.Summary(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), sum.Expense.Cents)

	dash, err := f.reports.Dashboard(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), dash.Summary.Expense.Cents)
	assert.Len(t, dash.Categories, 2)
	assert.Len(t, dash.Trend.Points, 3)

	year := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 12, 31)}
	trend, err = f.reports.Trend(ctx, "alice", year)
	require.NoError(t, err)
	assert.Equal(t, core.ByMonth, trend.Granularity)
	require.Len(t, trend.Points, 1)
	assert.Equal(t, "03", trend.Points[0].Label())

	_, err = f.reports.Dashboard(ctx, "alice", core.DateRange{Start: year.End, End: year.Start})
	assert.ErrorIs(t, err, core.ErrInvalidRange)
}

// heldStore blocks the first Summary query after reading until released.
type heldStore struct {
	*storage.SQLiteRepository
	read    chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *heldStore) Summary(ctx context.Context, userID string, r core.DateRange) (core.Summary, error) {
	sum, err := h.SQLiteRepository.Summary(ctx, userID, r)
	h.once.Do(func() {
		close(h.read)
		<-h.release
	})
	return sum, err
}

func TestReportComputedDuringWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	held := &heldStore{SQLiteRepository: f.repo, read: make(chan struct{}), release: make(chan struct{})}
	reports := NewReportService(held)
	ledger := NewLedgerService(f.repo, nil, reports, catalog.Default(), false)
	march := core.DateRange{Start: core.NewDate(2025, 3, 1), End: core.NewDate(2025, 3, 31)}

	done := make(chan core.Summary, 1)
	go func() {
		sum, err := reports.Summary(ctx, "alice", march)
		assert.NoError(t, err)
		done <- sum
	}()

	<-held.read
	_, err := ledger.AddRecord(ctx, "alice", expense("餐饮", 4200, core.NewDate(2025, 3, 2)))
	require.NoError(t, err)
	close(held.release)

	stale := <-done
	assert.Equal(t, int64(0), stale.Count)

	sum, err := reports.Summary(ctx, "alice", march)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Count)
	assert.Equal(t, int64(4200), sum.Expense.Cents)
}
