package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartaccounting/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func rec(user string, typ core.EntryType, cat string, cents int64, date core.Date) core.Record {
	return core.Record{UserID: user, Type: typ, Category: cat, Amount: core.Money{Cents: cents}, Date: date}
}

func ids(recs []core.Record) []int64 {
	out := make([]int64, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateUser(ctx, User{Username: "alice", PasswordHash: "h", CreatedAt: time.Now()}))
	err := repo.CreateUser(ctx, User{Username: "alice", PasswordHash: "x"})
	assert.True(t, errors.Is(err, ErrConflict), "expected conflict, got %v", err)

	u, err := repo.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h", u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = repo.GetUser(ctx, "bob")
	assert.ErrorIs(t, err, core.ErrNotFound)

	ok, err := repo.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.CreateUser(ctx, User{Username: "bob", PasswordHash: "h"}))
	users, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, users)
}

func TestRecordCRUDIsUserScoped(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	id, err := repo.AddRecord(ctx, rec("alice", core.Expense, "餐饮", 1250, core.NewDate(2025, 3, 1)))
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := repo.GetRecord(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, "餐饮", got.Category)
	assert.Equal(t, int64(1250), got.Amount.Cents)
	assert.Equal(t, "2025-03-01", got.Date.String())

	_, err = repo.GetRecord(ctx, "bob", id)
	assert.ErrorIs(t, err, core.ErrNotFound)

	upd := got
	upd.UserID = "bob"
	upd.Note = "hijack"
	assert.ErrorIs(t, repo.UpdateRecord(ctx, upd), core.ErrNotFound)

	upd.UserID = "alice"
	upd.Note = "lunch"
	upd.Amount = core.Money{Cents: 999}
	require.NoError(t, repo.UpdateRecord(ctx, upd))
	got, err = repo.GetRecord(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, "lunch", got.Note)
	assert.Equal(t, int64(999), got.Amount.Cents)

	assert.ErrorIs(t, repo.DeleteRecord(ctx, "bob", id), core.ErrNotFound)
	require.NoError(t, repo.DeleteRecord(ctx, "alice", id))
	assert.ErrorIs(t, repo.DeleteRecord(ctx, "alice", id), core.ErrNotFound)
}

func TestListRecordsFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	add := func(r core.Record) int64 {
		id, err := repo.AddRecord(ctx, r)
		require.NoError(t, err)
		return id
	}
	a := add(rec("alice", core.Expense, "餐饮", 500, core.NewDate(2025, 3, 1)))
	b := add(rec("alice", core.Income, "工资", 10000, core.NewDate(2025, 3, 5)))
	c := add(rec("alice", core.Expense, "交通", 500, core.NewDate(2025, 3, 5)))
	d := add(rec("alice", core.Expense, "餐饮", 2000, core.NewDate(2025, 4, 2)))
	add(rec("bob", core.Expense, "餐饮", 700, core.NewDate(2025, 3, 2)))

	cases := []struct {
		name string
		f    core.Filter
		want []int64
	}{
		{"newest default", core.Filter{}, []int64{d, c, b, a}},
		{"oldest", core.Filter{Sort: core.SortOldest}, []int64{a, b, c, d}},
		{"amount desc", core.Filter{Sort: core.SortAmountDesc}, []int64{b, d, c, a}},
		{"amount asc ties by id desc", core.Filter{Sort: core.SortAmountAsc}, []int64{c, a, d, b}},
		{"type", core.Filter{Type: core.Income}, []int64{b}},
		{"category", core.Filter{Category: "餐饮"}, []int64{d, a}},
		{"category all", core.Filter{Category: "全部"}, []int64{d, c, b, a}},
		{"range", core.Filter{Range: core.DateRange{Start: core.NewDate(2025, 3, 1), End: core.NewDate(2025, 3, 5)}}, []int64{c, b, a}},
		{"half range ignored", core.Filter{Range: core.DateRange{Start: core.NewDate(2025, 4, 1)}}, []int64{d, c, b, a}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.ListRecords(ctx, "alice", tc.f)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}

	n, err := repo.CountRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, r := range []core.Record{
		rec("alice", core.Income, "工资", 10000, core.NewDate(2025, 1, 10)),
		rec("alice", core.Expense, "餐饮", 1500, core.NewDate(2025, 1, 10)),
		rec("alice", core.Expense, "餐饮", 500, core.NewDate(2025, 1, 12)),
		rec("alice", core.Expense, "交通", 3000, core.NewDate(2025, 2, 1)),
		rec("bob", core.Expense, "餐饮", 99999, core.NewDate(2025, 1, 10)),
	} {
		_, err := repo.AddRecord(ctx, r)
		require.NoError(t, err)
	}

	all := core.DateRange{}
	s, err := repo.Summary(ctx, "alice", all)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), s.Income.Cents)
	assert.Equal(t, int64(5000), s.Expense.Cents)
	assert.Equal(t, int64(4), s.Count)

	jan := core.DateRange{Start: core.NewDate(2025, 1, 1), End: core.NewDate(2025, 1, 31)}
	s, err = repo.Summary(ctx, "alice", jan)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), s.Expense.Cents)

	cats, err := repo.ExpenseByCategory(ctx, "alice", all)
	require.NoError(t, err)
	want := []core.CategoryAmount{
		{Category: "交通", Amount: core.Money{Cents: 3000}},
		{Category: "餐饮", Amount: core.Money{Cents: 2000}},
	}
	if diff := cmp.Diff(want, cats); diff != "" {
		t.Fatalf("categories mismatch (-want +got):\n%s", diff)
	}

	days, err := repo.Trend(ctx, "alice", jan, core.ByDay)
	require.NoError(t, err)
	wantDays := []core.TrendPoint{
		{Key: "2025-01-10", Income: core.Money{Cents: 10000}, Expense: core.Money{Cents: 1500}},
		{Key: "2025-01-12", Expense: core.Money{Cents: 500}},
	}
	if diff := cmp.Diff(wantDays, days); diff != "" {
		t.Fatalf("daily trend mismatch (-want +got):\n%s", diff)
	}

	months, err := repo.Trend(ctx, "alice", all, core.ByMonth)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2025-01", months[0].Key)
	assert.Equal(t, int64(3000), months[1].Expense.Cents)
}

func TestReplaceAllRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.AddRecord(ctx, rec("alice", core.Expense, "餐饮", 100, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)
	_, err = repo.AddRecord(ctx, rec("bob", core.Expense, "餐饮", 100, core.NewDate(2025, 1, 1)))
	require.NoError(t, err)

	incoming := []core.Record{
		{ID: 42, UserID: "mallory", Type: core.Income, Category: "奖金", Amount: core.Money{Cents: 700}, Date: core.NewDate(2025, 2, 1)},
		{ID: 43, UserID: "mallory", Type: core.Expense, Category: "购物", Amount: core.Money{Cents: 300}, Date: core.NewDate(2025, 2, 2)},
	}
	n, err := repo.ReplaceAllRecords(ctx, "alice", incoming)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := repo.ListRecords(ctx, "alice", core.Filter{Sort: core.SortOldest})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, "alice", r.UserID)
		assert.NotEqual(t, int64(42), r.ID)
	}

	bobs, err := repo.CountRecords(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(1), bobs)

	deleted, err := repo.DeleteAllRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}
