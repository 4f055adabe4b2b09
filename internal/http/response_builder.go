// Package http exposes the ledger as a JSON API.
//
// This file holds the response shapes and the mapping from domain errors
// to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/text/language"

	"smartaccounting/internal/auth"
	"smartaccounting/internal/catalog"
	"smartaccounting/internal/core"
	applog "smartaccounting/internal/log"
	"smartaccounting/internal/services"
)

// errBadRequest marks a body or path that could not be decoded at all.
var errBadRequest = errors.New("malformed request")

type errorResponse struct {
	Error string `json:"error"`
}

type amountJSON struct {
	Value float64 `json:"value"`
	Cents int64   `json:"cents"`
	Text  string  `json:"text"`
}

type recordJSON struct {
	ID        int64      `json:"id"`
	Type      string     `json:"type"`
	Category  string     `json:"category"`
	Amount    amountJSON `json:"amount"`
	Date      string     `json:"date"`
	Note      string     `json:"note"`
	ImagePath string     `json:"image_path"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type rangeJSON struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type summaryJSON struct {
	Range   rangeJSON  `json:"range"`
	Income  amountJSON `json:"income"`
	Expense amountJSON `json:"expense"`
	Balance amountJSON `json:"balance"`
	Count   int64      `json:"count"`
}

type categoryJSON struct {
	Category string     `json:"category"`
	Amount   amountJSON `json:"amount"`
	Percent  float64    `json:"percent"`
}

type trendPointJSON struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Income  amountJSON `json:"income"`
	Expense amountJSON `json:"expense"`
}

type trendJSON struct {
	Granularity string           `json:"granularity"`
	Points      []trendPointJSON `json:"points"`
}

type dashboardJSON struct {
	Summary    summaryJSON    `json:"summary"`
	Categories []categoryJSON `json:"categories"`
	Trend      trendJSON      `json:"trend"`
}

// presenter renders domain values for one locale.
type presenter struct {
	locale language.Tag
}

func (p presenter) amount(m core.Money) amountJSON {
	return amountJSON{Value: m.Float(), Cents: m.Cents, Text: core.FormatMoney(m, p.locale)}
}

func (p presenter) record(r core.Record) recordJSON {
	return recordJSON{
		ID:        r.ID,
		Type:      r.Type.String(),
		Category:  r.Category,
		Amount:    p.amount(r.Amount),
		Date:      r.Date.String(),
		Note:      r.Note,
		ImagePath: r.ImagePath,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (p presenter) records(recs []core.Record) []recordJSON {
	out := make([]recordJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, p.record(r))
	}
	return out
}

func (p presenter) summary(s core.Summary) summaryJSON {
	return summaryJSON{
		Range:   rangeJSON{Start: s.Range.Start.String(), End: s.Range.End.String()},
		Income:  p.amount(s.Income),
		Expense: p.amount(s.Expense),
		Balance: p.amount(s.Balance()),
		Count:   s.Count,
	}
}

func (p presenter) categories(rows []core.CategoryAmount) []categoryJSON {
	out := make([]categoryJSON, 0, len(rows))
	for _, c := range rows {
		out = append(out, categoryJSON{Category: c.Category, Amount: p.amount(c.Amount), Percent: c.Percent})
	}
	return out
}

func (p presenter) trend(t services.TrendReport) trendJSON {
	points := make([]trendPointJSON, 0, len(t.Points))
	for _, pt := range t.Points {
		points = append(points, trendPointJSON{
			Key:     pt.Key,
			Label:   pt.Label(),
			Income:  p.amount(pt.Income),
			Expense: p.amount(pt.Expense),
		})
	}
	return trendJSON{Granularity: string(t.Granularity), Points: points}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errMissingToken), errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound), errors.Is(err, services.ErrBackupNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrCategoryTooLong),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrImagePathTooLong),
		errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, core.ErrInvalidSort),
		errors.Is(err, core.ErrInvalidPreset),
		errors.Is(err, catalog.ErrUnknownCategory),
		errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, auth.ErrUsernameTooLong),
		errors.Is(err, services.ErrNothingToExport),
		errors.Is(err, services.ErrEmptyBackup):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Internal errors are logged and their
// detail is kept from the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.FromContext(r.Context()).Error("Request failed",
			applog.FieldPath, r.URL.Path,
			applog.FieldError, err)
		msg = "internal server error"
	}
	writeError(w, status, msg)
}
