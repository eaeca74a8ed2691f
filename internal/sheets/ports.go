package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fiftythirty/internal/core"
)

// ErrNotConfigured is returned when no spreadsheet is set up.
var ErrNotConfigured = errors.New("sheets export not configured")

// MonthExporter writes one month of expenses to a spreadsheet tab, replacing
// what the tab held before, and returns a reference to the written range.
type MonthExporter interface {
	ExportMonth(ctx context.Context, month core.Month, expenses []core.Expense) (ref string, err error)
}

var Header = []any{"Date", "Amount", "Category", "Description", "Bucket"}

// SheetName is the tab name for month: the base name followed by the
// month key, e.g. "Expenses 2024-03".
func SheetName(base string, month core.Month) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "Expenses"
	}
	return fmt.Sprintf("%s %s", base, month.Key())
}

// MonthRows builds the header, one row per expense of month in insertion
// order and a closing total row. Amounts use the invariant format so the
// sheet parses them as numbers.
func MonthRows(month core.Month, expenses []core.Expense) [][]any {
	rows := [][]any{Header}
	var total core.Money
	for _, e := range expenses {
		if !month.Contains(e.Date) {
			continue
		}
		rows = append(rows, []any{
			e.Date.Format("2006-01-02"),
			e.Amount.String(),
			core.NormalizeCategory(e.Category),
			e.Description,
			e.Bucket.Label(),
		})
		total = total.Add(e.Amount)
	}
	return append(rows, []any{"Total", total.String(), "", "", ""})
}
