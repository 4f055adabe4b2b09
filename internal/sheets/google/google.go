// Package google mirrors ledgers to a Google Sheets spreadsheet, one tab
// per user.
package google

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"smartaccounting/internal/core"
	ports "smartaccounting/internal/sheets"

	gsheet "google.golang.org/api/sheets/v4"
)

const maxTitleLen = 100

var _ ports.RecordMirror = (*Client)(nil)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string

	mu    sync.Mutex
	known map[string]bool // tabs already confirmed to exist
}

// Credentials selects how the client authenticates: a service account
// key, or an OAuth client together with a saved user token.
type Credentials struct {
	ServiceAccountFile string
	OAuthClientFile    string
	OAuthTokenFile     string
}

// New creates a client for the spreadsheet. Service account credentials
// take precedence over OAuth.
func New(ctx context.Context, spreadsheetID string, creds Credentials, prefix string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}

	auth, err := clientOption(ctx, creds)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets mirror ready", "spreadsheet_id", spreadsheetID, "prefix", prefix)
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        prefix,
		known:         make(map[string]bool),
	}, nil
}

// ReplaceUserRecords clears the user's tab and writes the header plus one
// row per record.
func (c *Client) ReplaceUserRecords(ctx context.Context, userID string, recs []core.Record) error {
	title := sheetTitle(c.prefix, userID)
	if err := c.ensureTab(ctx, title); err != nil {
		return err
	}

	rng := quote(title) + "!A:G"
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tab %s: %w", title, err)
	}

	vr := &gsheet.ValueRange{Values: values(recs)}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, quote(title)+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write tab %s: %w", title, err)
	}

	slog.InfoContext(ctx, "Ledger mirrored to Google Sheets", "user_id", userID, "tab", title, "rows", len(recs))
	return nil
}

func (c *Client) ensureTab(ctx context.Context, title string) error {
	c.mu.Lock()
	ok := c.known[title]
	c.mu.Unlock()
	if ok {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	exists := false
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			exists = true
			break
		}
	}

	if !exists {
		req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}}}
		if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("add tab %s: %w", title, err)
		}
		slog.InfoContext(ctx, "Created mirror tab", "tab", title)
	}

	c.mu.Lock()
	c.known[title] = true
	c.mu.Unlock()
	return nil
}

func values(recs []core.Record) [][]interface{} {
	out := make([][]interface{}, 0, len(recs)+1)
	header := make([]interface{}, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	out = append(out, header)
	for _, r := range recs {
		out = append(out, ports.Row(r))
	}
	return out
}

// sheetTitle builds a valid tab title that is distinct for every user.
// The user part is percent-encoded: characters Sheets rejects, '%', '~',
// control characters and upper-case letters (Sheets compares titles
// case-insensitively). Titles over 100 characters are cut and end in a
// hash of the user id.
func sheetTitle(prefix, userID string) string {
	title := strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenTitleRunes, r) {
			return '_'
		}
		return r
	}, prefix) + escapeUser(userID)
	if utf8.RuneCountInString(title) <= maxTitleLen {
		return title
	}
	sum := sha256.Sum256([]byte(userID))
	suffix := "~" + hex.EncodeToString(sum[:8])
	return string([]rune(title)[:maxTitleLen-len(suffix)]) + suffix
}

const forbiddenTitleRunes = "[]*?:/\\'"

func escapeUser(userID string) string {
	var b strings.Builder
	for i := 0; i < len(userID); {
		r, size := utf8.DecodeRuneInString(userID[i:])
		keep := unicode.IsPrint(r) && !unicode.IsUpper(r) && !unicode.IsTitle(r) &&
			!(r == utf8.RuneError && size == 1) &&
			r != '%' && r != '~' && !strings.ContainsRune(forbiddenTitleRunes, r)
		if keep {
			b.WriteString(userID[i : i+size])
		} else {
			for j := i; j < i+size; j++ {
				fmt.Fprintf(&b, "%%%02X", userID[j])
			}
		}
		i += size
	}
	return b.String()
}

func quote(title string) string {
	return "'" + title + "'"
}
