// Package state holds the persisted application snapshot: every expense,
// the income ledger and the bucket ratios, plus the stores that load and
// save it.
package state

import (
	"fiftythirty/internal/core"
)

// Snapshot is the unit that is loaded and saved as a whole.
type Snapshot struct {
	Expenses []core.Expense // insertion order
	Incomes  core.IncomeLedger
	Ratios   core.Ratios

	// Legacy single income, kept only so the upgrade step can fold it into
	// Incomes. Written back unchanged.
	LegacyIncome      core.Money
	LegacyIncomeMonth core.Date
}

// Default is the first-run snapshot: no expenses, no income, 50/30/20.
func Default() Snapshot {
	return Snapshot{
		Expenses: []core.Expense{},
		Ratios:   core.DefaultRatios(),
	}
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Expenses = make([]core.Expense, len(s.Expenses))
	copy(out.Expenses, s.Expenses)
	out.Incomes = s.Incomes.Clone()
	return out
}

// Upgrade folds the legacy income into the ledger. It is idempotent and
// reports whether anything changed.
func (s *Snapshot) Upgrade() bool {
	changed := s.Incomes.MigrateLegacy(s.LegacyIncome, s.LegacyIncomeMonth)
	if s.Expenses == nil {
		s.Expenses = []core.Expense{}
	}
	return changed
}
