package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Income  EntryType = "income"
	Expense EntryType = "expense"
)

const (
	maxCategoryLen  = 50
	maxNoteLen      = 200
	maxImagePathLen = 500

	dateLayout = "2006-01-02"
)

type (
	// EntryType separates money coming in from money going out.
	EntryType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Record is a single ledger line owned by one user.
	Record struct {
		ID        int64
		UserID    string
		Type      EntryType
		Category  string
		Amount    Money
		Date      Date
		Note      string
		ImagePath string // opaque attachment reference
		CreatedAt time.Time
		UpdatedAt time.Time
	}
)

var (
	ErrInvalidType      = errors.New("invalid entry type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyCategory    = errors.New("empty category")
	ErrCategoryTooLong  = fmt.Errorf("category too long (max %d characters)", maxCategoryLen)
	ErrNoteTooLong      = fmt.Errorf("note too long (max %d characters)", maxNoteLen)
	ErrImagePathTooLong = fmt.Errorf("image path too long (max %d characters)", maxImagePathLen)
	ErrNotFound         = errors.New("record not found")
)

// ParseEntryType accepts the English tokens as well as the labels used by
// the mobile client backups (收入 / 支出).
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "收入":
		return Income, nil
	case "expense", "支出":
		return Expense, nil
	}
	return "", ErrInvalidType
}

func (t EntryType) Valid() bool {
	return t == Income || t == Expense
}

func (t EntryType) String() string {
	return string(t)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (r Record) Validate() error {
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(r.Category) > maxCategoryLen {
		return ErrCategoryTooLong
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(r.Note) > maxNoteLen {
		return ErrNoteTooLong
	}
	if len(r.ImagePath) > maxImagePathLen {
		return ErrImagePathTooLong
	}
	return nil
}
