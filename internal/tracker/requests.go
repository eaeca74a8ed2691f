// Package tracker turns user actions into typed requests against the
// application snapshot and recomputes the selected month after each one.
package tracker

import (
	"errors"

	"fiftythirty/internal/core"
)

var (
	ErrExpenseNotFound = errors.New("expense not found")
	ErrUnknownRequest  = errors.New("unknown request")
)

// Request is one user action. The set is closed.
type Request interface {
	request()
}

// AddExpense appends a new expense. An empty Bucket is taken from the
// category catalog; an unknown category then needs an explicit bucket.
type AddExpense struct {
	Date        core.Date
	Amount      core.Money
	Category    string
	Description string
	Bucket      core.Bucket
}

// EditExpense replaces the expense at Index. The stored bucket tag is kept;
// Bucket is only used when the stored tag is empty or unknown, and the
// catalog is consulted after that.
type EditExpense struct {
	Index       int
	Date        core.Date
	Amount      core.Money
	Category    string
	Description string
	Bucket      core.Bucket
}

type DeleteExpense struct {
	Index int
}

// SetIncome sets the income of one month. Amounts <= 0 are rejected.
type SetIncome struct {
	Month  core.Month
	Amount core.Money
}

// SetRatios replaces the three bucket ratios. Only negatives are rejected.
type SetRatios struct {
	Ratios core.Ratios
}

// Navigate selects Month (when set) and then moves Delta months from the
// selection. It never resets the notification flag.
type Navigate struct {
	Month core.Month
	Delta int
}

// ImportExpenses appends Expenses, or replaces every expense when Replace
// is set.
type ImportExpenses struct {
	Expenses []core.Expense
	Replace  bool
}

func (AddExpense) request()     {}
func (EditExpense) request()    {}
func (DeleteExpense) request()  {}
func (SetIncome) request()      {}
func (SetRatios) request()      {}
func (Navigate) request()       {}
func (ImportExpenses) request() {}

// Entry is an expense together with its position in the snapshot, which is
// how edit and delete address it.
type Entry struct {
	Index int
	core.Expense
}

// Result is what every request returns: the selected month after the
// request, its figures and expenses, and an overage event when one is due.
type Result struct {
	Month    core.Month
	Figures  core.MonthFigures
	Expenses []Entry
	Overage  *core.OverageEvent
	// Index of the added or edited expense; -1 otherwise.
	Index    int
	Imported int
	Revision uint64
}
