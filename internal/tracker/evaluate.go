package tracker

import (
	"fiftythirty/internal/core"
	"fiftythirty/internal/state"
)

// Session is the state that lives only as long as the process: the month
// being viewed and the overage notification flag.
type Session struct {
	Month  core.Month
	Notify core.NotificationState
}

// NewSession starts on month with nothing notified.
func NewSession(month core.Month, scope core.NotifyScope) Session {
	return Session{Month: month, Notify: core.NewNotificationState(scope)}
}

// Evaluate computes the figures of the session's month from snap and
// returns the session with the notification flag advanced. It has no side
// effects.
func Evaluate(session Session, snap state.Snapshot) (core.MonthFigures, Session, *core.OverageEvent) {
	figures := core.Allocate(core.AllocationInput{
		Income:   snap.Incomes.For(session.Month),
		Ratios:   snap.Ratios,
		Expenses: snap.Expenses,
		Month:    session.Month,
	})
	next := session
	var ev *core.OverageEvent
	next.Notify, ev = session.Notify.Observe(figures)
	return figures, next, ev
}

// monthEntries returns the expenses of month in insertion order.
func monthEntries(snap state.Snapshot, month core.Month) []Entry {
	out := []Entry{}
	for i, e := range snap.Expenses {
		if month.Contains(e.Date) {
			out = append(out, Entry{Index: i, Expense: e})
		}
	}
	return out
}
