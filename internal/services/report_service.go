package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"smartaccounting/internal/cache"
	"smartaccounting/internal/core"
	"smartaccounting/internal/metrics"
)

const (
	reportCacheSize = 512
	reportCacheTTL  = 5 * time.Minute
)

// ReportStore provides the aggregate queries behind the charts.
type ReportStore interface {
	Summary(ctx context.Context, userID string, r core.DateRange) (core.Summary, error)
	ExpenseByCategory(ctx context.Context, userID string, r core.DateRange) ([]core.CategoryAmount, error)
	Trend(ctx context.Context, userID string, r core.DateRange, g core.Granularity) ([]core.TrendPoint, error)
}

// TrendReport is a chart series together with the bucket size used.
type TrendReport struct {
	Granularity core.Granularity
	Points      []core.TrendPoint
}

// Dashboard bundles every report for one range.
type Dashboard struct {
	Summary    core.Summary
	Categories []core.CategoryAmount
	Trend      TrendReport
}

// ReportService computes summaries and chart series, caching them per
// user and range until the user's ledger changes.
type ReportService struct {
	store ReportStore
	cache *cache.LRUCache[any]

	mu   sync.Mutex
	gens map[string]uint64 // bumped on every invalidation of a user
}

func NewReportService(store ReportStore) *ReportService {
	return &ReportService{
		store: store,
		cache: cache.NewLRUCache[any](reportCacheSize, reportCacheTTL),
		gens:  make(map[string]uint64),
	}
}

// Cache exposes the report cache so it can be registered for cleanup.
func (s *ReportService) Cache() *cache.LRUCache[any] {
	return s.cache
}

// Invalidate drops every cached report for userID.
func (s *ReportService) Invalidate(userID string) {
	s.mu.Lock()
	s.gens[userID]++
	s.mu.Unlock()
	if n := s.cache.DeletePrefix(userPrefix(userID)); n > 0 {
		slog.Debug("Report cache invalidated", "user_id", userID, "entries", n)
	}
}

func userPrefix(userID string) string {
	return userID + "|"
}

func cacheKey(userID, kind string, r core.DateRange) string {
	return userPrefix(userID) + kind + "|" + r.String()
}

func (s *ReportService) generation(userID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// cached returns the cached value for key or computes and stores it. A
// result is not stored if the user's ledger changed while computing it.
func cached[T any](s *ReportService, userID, kind string, r core.DateRange, compute func() (T, error)) (T, error) {
	key := cacheKey(userID, kind, r)
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			metrics.RecordReport(kind, true)
			return typed, nil
		}
	}
	metrics.RecordReport(kind, false)
	gen := s.generation(userID)
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	s.mu.Lock()
	if s.gens[userID] == gen {
		s.cache.Set(key, v)
	}
	s.mu.Unlock()
	return v, nil
}

// Summary returns income and expense totals over r.
func (s *ReportService) Summary(ctx context.Context, userID string, r core.DateRange) (core.Summary, error) {
	if err := r.Validate(); err != nil {
		return core.Summary{}, err
	}
	return cached(s, userID, "summary", r, func() (core.Summary, error) {
		sum, err := s.store.Summary(ctx, userID, r)
		if err != nil {
			return core.Summary{}, fmt.Errorf("summary: %w", err)
		}
		return sum, nil
	})
}

// CategoryBreakdown returns expense totals per category with their share.
func (s *ReportService) CategoryBreakdown(ctx context.Context, userID string, r core.DateRange) ([]core.CategoryAmount, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return cached(s, userID, "categories", r, func() ([]core.CategoryAmount, error) {
		rows, err := s.store.ExpenseByCategory(ctx, userID, r)
		if err != nil {
			return nil, fmt.Errorf("category breakdown: %w", err)
		}
		core.ApplyPercentages(rows)
		return rows, nil
	})
}

// Trend returns income and expense per day, or per month for ranges longer
// than 30 days.
func (s *ReportService) Trend(ctx context.Context, userID string, r core.DateRange) (TrendReport, error) {
	if err := r.Validate(); err != nil {
		return TrendReport{}, err
	}
	return cached(s, userID, "trend", r, func() (TrendReport, error) {
		g := core.GranularityFor(r)
		points, err := s.store.Trend(ctx, userID, r, g)
		if err != nil {
			return TrendReport{}, fmt.Errorf("trend: %w", err)
		}
		return TrendReport{Granularity: g, Points: points}, nil
	})
}

// Dashboard computes all reports for r concurrently.
func (s *ReportService) Dashboard(ctx context.Context, userID string, r core.DateRange) (Dashboard, error) {
	if err := r.Validate(); err != nil {
		return Dashboard{}, err
	}

	var d Dashboard
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Summary, err = s.Summary(ctx, userID, r)
		return err
	})
	g.Go(func() error {
		var err error
		d.Categories, err = s.CategoryBreakdown(ctx, userID, r)
		return err
	})
	g.Go(func() error {
		var err error
		d.Trend, err = s.Trend(ctx, userID, r)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
