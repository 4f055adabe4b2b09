// Package backup reads and writes per-user JSON ledger backups.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"smartaccounting/internal/core"
)

const snippetLen = 50

var ErrCorrupt = errors.New("backup is corrupt or malformed")

// Entry is one record as it appears in a backup file. Field names match the
// files produced by the mobile client.
type Entry struct {
	ID        int64   `json:"id"`
	UserID    string  `json:"userId"`
	Type      string  `json:"type"`
	Category  string  `json:"category"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Note      string  `json:"note"`
	ImagePath string  `json:"imagePath"`
}

var typeLabels = map[core.EntryType]string{
	core.Income:  "收入",
	core.Expense: "支出",
}

// Encode renders records as an indented JSON array.
func Encode(recs []core.Record) ([]byte, error) {
	entries := make([]Entry, 0, len(recs))
	for _, r := range recs {
		entries = append(entries, Entry{
			ID:        r.ID,
			UserID:    r.UserID,
			Type:      typeLabels[r.Type],
			Category:  r.Category,
			Amount:    r.Amount.Float(),
			Date:      r.Date.String(),
			Note:      r.Note,
			ImagePath: r.ImagePath,
		})
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	return data, nil
}

// Decoded is the result of reading a backup.
type Decoded struct {
	Records []core.Record
	Skipped int
}

// Decode parses a backup. Entries that do not form a valid record are
// skipped and counted; malformed JSON yields ErrCorrupt.
func Decode(data []byte) (Decoded, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Error("Backup JSON could not be parsed",
			"error", err,
			"snippet", snippet(data))
		return Decoded{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var out Decoded
	for i, e := range entries {
		rec, err := e.toRecord()
		if err != nil {
			slog.Warn("Skipping backup entry", "index", i, "error", err)
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func (e Entry) toRecord() (core.Record, error) {
	t, err := core.ParseEntryType(e.Type)
	if err != nil {
		return core.Record{}, err
	}
	d, err := core.ParseDate(e.Date)
	if err != nil {
		return core.Record{}, err
	}
	amount, err := core.MoneyFromFloat(e.Amount)
	if err != nil {
		return core.Record{}, err
	}
	rec := core.Record{
		ID:        e.ID,
		UserID:    e.UserID,
		Type:      t,
		Category:  e.Category,
		Amount:    amount,
		Date:      d,
		Note:      e.Note,
		ImagePath: e.ImagePath,
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

func snippet(data []byte) string {
	if len(data) <= snippetLen {
		return string(data)
	}
	s := data[:snippetLen]
	for len(s) > 0 && !utf8.Valid(s) {
		s = s[:len(s)-1]
	}
	return string(s) + "..."
}
