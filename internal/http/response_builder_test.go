package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"smartaccounting/internal/auth"
	"smartaccounting/internal/backup"
	"smartaccounting/internal/catalog"
	"smartaccounting/internal/core"
	"smartaccounting/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: eof", errBadRequest), http.StatusBadRequest},
		{errMissingToken, http.StatusUnauthorized},
		{auth.ErrInvalidToken, http.StatusUnauthorized},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("get record 7: %w", core.ErrNotFound), http.StatusNotFound},
		{backup.ErrBackupNotFound, http.StatusNotFound},
		{auth.ErrUserExists, http.StatusConflict},
		{core.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{core.ErrInvalidRange, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %q", catalog.ErrUnknownCategory, "x"), http.StatusUnprocessableEntity},
		{services.ErrNothingToExport, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: %w", services.ErrEmptyBackup, backup.ErrCorrupt), http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	fail(rr, httptest.NewRequest(http.MethodGet, "/api/records", nil), errors.New("database is locked"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	fail(rr, httptest.NewRequest(http.MethodGet, "/api/records", nil), core.ErrInvalidSort)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.JSONEq(t, `{"error":"invalid sort order"}`, rr.Body.String())
}

func TestPresenter(t *testing.T) {
	p := presenter{locale: language.English}

	rec := p.record(core.Record{
		ID: 3, Type: core.Expense, Category: "餐饮",
		Amount: core.Money{Cents: 1234}, Date: core.NewDate(2025, 3, 1),
	})
	assert.Equal(t, "expense", rec.Type)
	assert.Equal(t, "2025-03-01", rec.Date)
	assert.Equal(t, amountJSON{Value: 12.34, Cents: 1234, Text: "12.34"}, rec.Amount)

	sum := p.summary(core.Summary{Income: core.Money{Cents: 500}, Expense: core.Money{Cents: 800}, Count: 2})
	assert.Equal(t, int64(-300), sum.Balance.Cents)
	assert.Empty(t, sum.Range.Start)

	trend := p.trend(services.TrendReport{
		Granularity: core.ByMonth,
		Points:      []core.TrendPoint{{Key: "2025-02", Expense: core.Money{Cents: 100}}},
	})
	assert.Equal(t, "month", trend.Granularity)
	assert.Equal(t, "02", trend.Points[0].Label)

	assert.NotNil(t, p.records(nil))
	assert.NotNil(t, p.categories(nil))
}
