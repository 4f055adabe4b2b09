// This file implements parsing and validation of request bodies, path
// parameters and query strings.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"smartaccounting/internal/core"
)

const (
	maxBodyBytes   = 1 << 20
	maxBackupBytes = 16 << 20
)

// recordRequest is the body of record create and update calls. Amount may
// be a JSON number or a string such as "12,50".
type recordRequest struct {
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Amount    json.RawMessage `json:"amount"`
	Date      string          `json:"date"`
	Note      string          `json:"note"`
	ImagePath string          `json:"image_path"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// decodeJSON reads a single JSON object from the body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// readBackupBody returns the raw upload for backup import.
func readBackupBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBackupBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if len(data) > maxBackupBytes {
		return nil, fmt.Errorf("%w: backup larger than %d bytes", errBadRequest, maxBackupBytes)
	}
	return data, nil
}

func parseAmountJSON(raw json.RawMessage) (core.Money, error) {
	if len(raw) == 0 {
		return core.Money{}, core.ErrInvalidAmount
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return core.Money{}, core.ErrInvalidAmount
		}
		return core.ParseAmount(s)
	}
	return core.ParseAmount(string(raw))
}

// toRecord converts the body to a record. An empty date means today.
func (req recordRequest) toRecord(today core.Date) (core.Record, error) {
	typ, err := core.ParseEntryType(req.Type)
	if err != nil {
		return core.Record{}, err
	}
	amount, err := parseAmountJSON(req.Amount)
	if err != nil {
		return core.Record{}, err
	}
	date := today
	if strings.TrimSpace(req.Date) != "" {
		if date, err = core.ParseDate(req.Date); err != nil {
			return core.Record{}, err
		}
	}
	return core.Record{
		Type:      typ,
		Category:  req.Category,
		Amount:    amount,
		Date:      date,
		Note:      req.Note,
		ImagePath: req.ImagePath,
	}, nil
}

// parseID reads the {id} path parameter. Non numeric ids can never match
// a record and are reported as not found.
func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, core.ErrNotFound
	}
	return id, nil
}

// parseRange reads start/end or preset from the query. When none is given
// the result is defaultPreset, or no range at all when that is empty.
func parseRange(q url.Values, now time.Time, defaultPreset string) (core.DateRange, error) {
	start, end := strings.TrimSpace(q.Get("start")), strings.TrimSpace(q.Get("end"))
	preset := strings.TrimSpace(q.Get("preset"))

	if start != "" || end != "" {
		var dr core.DateRange
		var err error
		if start != "" {
			if dr.Start, err = core.ParseDate(start); err != nil {
				return core.DateRange{}, err
			}
		}
		if end != "" {
			if dr.End, err = core.ParseDate(end); err != nil {
				return core.DateRange{}, err
			}
		}
		return dr, dr.Validate()
	}

	if preset == "" {
		preset = defaultPreset
	}
	if preset == "" || core.IsAll(preset) {
		return core.DateRange{}, nil
	}
	return core.ResolvePreset(preset, now)
}

// parseFilter reads the listing filter: type, category, range and sort.
func parseFilter(q url.Values, now time.Time) (core.Filter, error) {
	var f core.Filter
	if t := q.Get("type"); !core.IsAll(t) {
		typ, err := core.ParseEntryType(t)
		if err != nil {
			return core.Filter{}, err
		}
		f.Type = typ
	}
	if c := q.Get("category"); !core.IsAll(c) {
		f.Category = strings.TrimSpace(c)
	}

	sort, err := core.ParseSortOrder(q.Get("sort"))
	if err != nil {
		return core.Filter{}, err
	}
	f.Sort = sort

	if f.Range, err = parseRange(q, now, ""); err != nil {
		return core.Filter{}, err
	}
	return f, f.Validate()
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errMissingToken
	}
	return strings.TrimSpace(token), nil
}

var errMissingToken = errors.New("missing bearer token")
