package memory

import (
	"context"
	"fmt"
	"sync"

	"fiftythirty/internal/core"
	"fiftythirty/internal/sheets"
)

// Store keeps exported tabs in memory. It backs the export endpoint when no
// spreadsheet is configured in tests and local runs.
type Store struct {
	mu   sync.Mutex
	base string
	tabs map[string][][]any
}

var _ sheets.MonthExporter = (*Store)(nil)

func New(base string) *Store {
	return &Store{base: base, tabs: map[string][][]any{}}
}

// ExportMonth replaces the month's tab and returns a synthetic reference.
func (s *Store) ExportMonth(_ context.Context, month core.Month, expenses []core.Expense) (string, error) {
	if month.IsZero() {
		return "", core.ErrInvalidMonth
	}
	name := sheets.SheetName(s.base, month)
	rows := sheets.MonthRows(month, expenses)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[name] = rows
	return fmt.Sprintf("mem:%s!A1:E%d", name, len(rows)), nil
}

// Tab returns a copy of the rows last written to name.
func (s *Store) Tab(name string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[name]
	if !ok {
		return nil, false
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out, true
}
