// Package memory is an in-process RecordMirror for tests and local runs.
package memory

import (
	"context"
	"sync"

	"smartaccounting/internal/core"
	"smartaccounting/internal/sheets"
)

var _ sheets.RecordMirror = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	byUser map[string][]core.Record
	writes int
}

func New() *Store {
	return &Store{byUser: make(map[string][]core.Record)}
}

func (s *Store) ReplaceUserRecords(_ context.Context, userID string, recs []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = append([]core.Record(nil), recs...)
	s.writes++
	return nil
}

// Records returns a copy of the mirrored rows for userID.
func (s *Store) Records(userID string) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Record(nil), s.byUser[userID]...)
}

// Writes reports how many times any ledger was replaced.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
