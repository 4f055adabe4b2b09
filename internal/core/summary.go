package core

import (
	"math"
	"strings"
)

const (
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// Granularity selects the bucket size of a trend series.
type Granularity string

// Summary totals income and expense over a range.
type Summary struct {
	Range   DateRange
	Income  Money
	Expense Money
	Count   int64
}

// Balance is income minus expense.
func (s Summary) Balance() Money {
	return Money{Cents: s.Income.Cents - s.Expense.Cents}
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Category string
	Amount   Money
	Percent  float64 // share of the total, 0-100
}

// TrendPoint is one bucket of the income/expense series.
type TrendPoint struct {
	Key     string // YYYY-MM-DD or YYYY-MM
	Income  Money
	Expense Money
}

// Label is the short axis label: the last segment of the key.
func (p TrendPoint) Label() string {
	if i := strings.LastIndexByte(p.Key, '-'); i >= 0 {
		return p.Key[i+1:]
	}
	return p.Key
}

// GranularityFor buckets by month when the range spans more than 30 days.
func GranularityFor(r DateRange) Granularity {
	if r.Days() > 30 {
		return ByMonth
	}
	return ByDay
}

// ApplyPercentages fills Percent for each row relative to the sum of all
// rows, rounded to two decimals.
func ApplyPercentages(rows []CategoryAmount) {
	var total int64
	for _, r := range rows {
		total += r.Amount.Cents
	}
	if total <= 0 {
		return
	}
	for i := range rows {
		share := float64(rows[i].Amount.Cents) / float64(total)
		rows[i].Percent = math.Round(share*10000) / 100
	}
}
