// Package memory is an in-process ledger sink, used in tests and when no
// spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"dailybudget/internal/sheets"
)

type Sink struct {
	mu      sync.Mutex
	entries []sheets.LedgerEntry
}

func New() *Sink {
	return &Sink{}
}

// AppendAccrual stores the entry and returns a synthetic row reference.
func (s *Sink) AppendAccrual(_ context.Context, e sheets.LedgerEntry) (string, error) {
	if e.Day.IsZero() {
		return "", fmt.Errorf("ledger entry has no day")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("mem:%d", len(s.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Sink) Entries() []sheets.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sheets.LedgerEntry(nil), s.entries...)
}
