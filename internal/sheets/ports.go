// Package sheets mirrors ledgers to spreadsheet tabs.
package sheets

import (
	"context"

	"smartaccounting/internal/core"
)

// RecordMirror keeps an external copy of each user's ledger.
type RecordMirror interface {
	// ReplaceUserRecords overwrites the user's mirrored rows with recs.
	ReplaceUserRecords(ctx context.Context, userID string, recs []core.Record) error
}

// Header is the first row of every mirrored tab.
var Header = []string{"ID", "Date", "Type", "Category", "Amount", "Note", "Image"}

// Row renders a record in Header column order.
func Row(r core.Record) []any {
	return []any{r.ID, r.Date.String(), string(r.Type), r.Category, r.Amount.Float(), r.Note, r.ImagePath}
}
