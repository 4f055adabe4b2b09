package core

import (
	"errors"
	"strings"
	"time"
)

const (
	SortNewest     SortOrder = "newest"
	SortOldest     SortOrder = "oldest"
	SortAmountDesc SortOrder = "amount_desc"
	SortAmountAsc  SortOrder = "amount_asc"
)

const (
	PresetCurrentMonth = "current_month"
	PresetLast7Days    = "last_7_days"
	PresetLast30Days   = "last_30_days"
)

var (
	ErrInvalidRange  = errors.New("start date must not be after end date")
	ErrInvalidSort   = errors.New("invalid sort order")
	ErrInvalidPreset = errors.New("invalid date preset")
)

type (
	SortOrder string

	// DateRange is inclusive on both ends. It only restricts a query when
	// both bounds are set.
	DateRange struct {
		Start Date
		End   Date
	}

	Filter struct {
		Type     EntryType // empty means any
		Category string    // empty means any
		Range    DateRange
		Sort     SortOrder
	}
)

// ParseSortOrder maps a client supplied sort key, defaulting to newest first.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.TrimSpace(s)) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortAmountDesc:
		return SortAmountDesc, nil
	case SortAmountAsc:
		return SortAmountAsc, nil
	}
	return "", ErrInvalidSort
}

// IsAll reports whether a filter value means "no restriction".
func IsAll(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "all") || s == "全部"
}

// Active reports whether both bounds are set.
func (r DateRange) Active() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

func (r DateRange) Validate() error {
	if r.Active() && r.Start.After(r.End.Time) {
		return ErrInvalidRange
	}
	return nil
}

// Days returns the number of days between start and end.
func (r DateRange) Days() int {
	if !r.Active() {
		return 0
	}
	return int(r.End.Sub(r.Start.Time) / (24 * time.Hour))
}

func (r DateRange) String() string {
	if !r.Active() {
		return "all"
	}
	return r.Start.String() + ".." + r.End.String()
}

func (f Filter) Validate() error {
	if f.Type != "" && !f.Type.Valid() {
		return ErrInvalidType
	}
	if _, err := ParseSortOrder(string(f.Sort)); err != nil {
		return err
	}
	return f.Range.Validate()
}

// CurrentMonth spans the first to the last day of now's month.
func CurrentMonth(now time.Time) DateRange {
	first := NewDate(now.Year(), int(now.Month()), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return DateRange{Start: first, End: last}
}

// LastNDays spans n days ending today, today included.
func LastNDays(now time.Time, n int) DateRange {
	today := DateOf(now)
	return DateRange{Start: today.AddDays(-(n - 1)), End: today}
}

// ResolvePreset turns a preset name into a concrete range relative to now.
func ResolvePreset(name string, now time.Time) (DateRange, error) {
	switch strings.TrimSpace(name) {
	case PresetCurrentMonth:
		return CurrentMonth(now), nil
	case PresetLast7Days:
		return LastNDays(now, 7), nil
	case PresetLast30Days:
		return LastNDays(now, 30), nil
	}
	return DateRange{}, ErrInvalidPreset
}
