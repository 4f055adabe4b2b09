package http

import (
	"net/http"

	"smartaccounting/internal/core"
)

// reportRange is the range a report covers: the query's, or the current
// month when the query names none.
func (s *Server) reportRange(r *http.Request) (core.DateRange, error) {
	return parseRange(r.URL.Query(), s.now(), core.PresetCurrentMonth)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	dr, err := s.reportRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	sum, err := s.reports.Summary(r.Context(), userFrom(r.Context()), dr)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.summary(sum))
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	dr, err := s.reportRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	rows, err := s.reports.CategoryBreakdown(r.Context(), userFrom(r.Context()), dr)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"range":      rangeJSON{Start: dr.Start.String(), End: dr.End.String()},
		"categories": s.present.categories(rows),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	dr, err := s.reportRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	trend, err := s.reports.Trend(r.Context(), userFrom(r.Context()), dr)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.trend(trend))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dr, err := s.reportRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := s.reports.Dashboard(r.Context(), userFrom(r.Context()), dr)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardJSON{
		Summary:    s.present.summary(d.Summary),
		Categories: s.present.categories(d.Categories),
		Trend:      s.present.trend(d.Trend),
	})
}
