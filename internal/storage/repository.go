package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartaccounting/internal/core"

	_ "modernc.org/sqlite"
)

// ErrConflict is returned when an insert collides with an existing key.
var ErrConflict = errors.New("already exists")

const timeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

// User is the stored form of an account.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- users ---

// CreateUser inserts a user; ErrConflict when the username is taken.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u User) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.Username, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", u.Username, ErrConflict)
	}
	slog.InfoContext(ctx, "User registered", "username", u.Username)
	return nil
}

// GetUser returns core.ErrNotFound when no such user exists.
func (r *SQLiteRepository) GetUser(ctx context.Context, username string) (User, error) {
	var (
		u       User
		created string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, core.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = parseTime(created)
	return u, nil
}

func (r *SQLiteRepository) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

// ListUserIDs returns every registered username, sorted.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- records ---

const recordColumns = `id, user_id, type, category, amount_cents, date, note, image_path, created_at, updated_at`

// AddRecord stores rec for rec.UserID and returns the new id.
func (r *SQLiteRepository) AddRecord(ctx context.Context, rec core.Record) (int64, error) {
	id, err := insertRecord(ctx, r.db, rec, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	slog.InfoContext(ctx, "Record saved to SQLite",
		"id", id,
		"user_id", rec.UserID,
		"type", rec.Type,
		"category", rec.Category,
		"amount_cents", rec.Amount.Cents,
		"date", rec.Date.String())
	return id, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, db execer, rec core.Record, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO records (user_id, type, category, amount_cents, date, note, image_path, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, string(rec.Type), rec.Category, rec.Amount.Cents, rec.Date.String(),
		rec.Note, rec.ImagePath, formatTime(now), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert record id: %w", err)
	}
	return id, nil
}

// UpdateRecord rewrites the record matching both rec.ID and rec.UserID.
func (r *SQLiteRepository) UpdateRecord(ctx context.Context, rec core.Record) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE records
		 SET type = ?, category = ?, amount_cents = ?, date = ?, note = ?, image_path = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		string(rec.Type), rec.Category, rec.Amount.Cents, rec.Date.String(), rec.Note, rec.ImagePath,
		formatTime(time.Now().UTC()), rec.ID, rec.UserID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return expectOne(res, "update record")
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if err := expectOne(res, "delete record"); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Record deleted", "id", id, "user_id", userID)
	return nil
}

// DeleteAllRecords clears the user's ledger and returns how many rows went.
func (r *SQLiteRepository) DeleteAllRecords(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete all records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all records: %w", err)
	}
	slog.InfoContext(ctx, "Ledger cleared", "user_id", userID, "deleted", n)
	return n, nil
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, userID string, id int64) (core.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ? AND user_id = ?`, id, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, core.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListRecords returns the user's records matching f, ordered by f.Sort.
func (r *SQLiteRepository) ListRecords(ctx context.Context, userID string, f core.Filter) ([]core.Record, error) {
	where, args := whereClause(userID, f.Type, f.Category, f.Range)
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + where + ` ORDER BY ` + orderBy(f.Sort)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

func (r *SQLiteRepository) CountRecords(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// ReplaceAllRecords swaps the user's ledger for recs in one transaction.
// Incoming ids and user ids are ignored.
func (r *SQLiteRepository) ReplaceAllRecords(ctx context.Context, userID string, recs []core.Record) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("clear records: %w", err)
	}
	now := time.Now().UTC()
	for _, rec := range recs {
		rec.ID = 0
		rec.UserID = userID
		if _, err := insertRecord(ctx, tx, rec, now); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}

	slog.InfoContext(ctx, "Ledger replaced", "user_id", userID, "count", len(recs))
	return len(recs), nil
}

// --- aggregates ---

func (r *SQLiteRepository) Summary(ctx context.Context, userID string, dr core.DateRange) (core.Summary, error) {
	where, args := whereClause(userID, "", "", dr)
	query := `SELECT
		COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0),
		COUNT(*)
		FROM records WHERE ` + where

	s := core.Summary{Range: dr}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.Income.Cents, &s.Expense.Cents, &s.Count); err != nil {
		return core.Summary{}, fmt.Errorf("summary: %w", err)
	}
	return s, nil
}

// ExpenseByCategory sums expenses per category, largest first.
func (r *SQLiteRepository) ExpenseByCategory(ctx context.Context, userID string, dr core.DateRange) ([]core.CategoryAmount, error) {
	where, args := whereClause(userID, core.Expense, "", dr)
	query := `SELECT category, SUM(amount_cents) AS total FROM records WHERE ` + where +
		` GROUP BY category HAVING total > 0 ORDER BY total DESC, category ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expense by category: %w", err)
	}
	defer rows.Close()

	out := []core.CategoryAmount{}
	for rows.Next() {
		var ca core.CategoryAmount
		if err := rows.Scan(&ca.Category, &ca.Amount.Cents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ca)
	}
	return out, rows.Err()
}

// Trend buckets income and expense by day or month, oldest first.
func (r *SQLiteRepository) Trend(ctx context.Context, userID string, dr core.DateRange, g core.Granularity) ([]core.TrendPoint, error) {
	format := "%Y-%m-%d"
	if g == core.ByMonth {
		format = "%Y-%m"
	}
	where, args := whereClause(userID, "", "", dr)
	query := `SELECT strftime('` + format + `', date) AS time_key,
		COALESCE(SUM(CASE WHEN type = 'income' THEN amount_cents ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN type = 'expense' THEN amount_cents ELSE 0 END), 0)
		FROM records WHERE ` + where + ` GROUP BY time_key ORDER BY time_key ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	defer rows.Close()

	out := []core.TrendPoint{}
	for rows.Next() {
		var p core.TrendPoint
		if err := rows.Scan(&p.Key, &p.Income.Cents, &p.Expense.Cents); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- helpers ---

// whereClause always scopes by user; the other conditions are optional.
func whereClause(userID string, t core.EntryType, category string, dr core.DateRange) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{userID}
	if t != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(t))
	}
	if !core.IsAll(category) {
		conds = append(conds, "category = ?")
		args = append(args, strings.TrimSpace(category))
	}
	if dr.Active() {
		conds = append(conds, "date BETWEEN ? AND ?")
		args = append(args, dr.Start.String(), dr.End.String())
	}
	return strings.Join(conds, " AND "), args
}

func orderBy(s core.SortOrder) string {
	switch s {
	case core.SortOldest:
		return "date ASC, id ASC"
	case core.SortAmountDesc:
		return "amount_cents DESC, id DESC"
	case core.SortAmountAsc:
		return "amount_cents ASC, id DESC"
	default:
		return "date DESC, id DESC"
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.Record, error) {
	var (
		rec                       core.Record
		typ, date, created, upd string
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &typ, &rec.Category, &rec.Amount.Cents, &date,
		&rec.Note, &rec.ImagePath, &created, &upd); err != nil {
		return core.Record{}, err
	}
	rec.Type = core.EntryType(typ)
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Record{}, err
	}
	rec.Date = d
	rec.CreatedAt = parseTime(created)
	rec.UpdatedAt = parseTime(upd)
	return rec, nil
}

func expectOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
