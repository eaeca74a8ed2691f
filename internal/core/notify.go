package core

import (
	"fmt"
	"strings"
)

// NotifyScope selects what the "already warned about overage" flag covers.
type NotifyScope string

const (
	// ScopeSession keeps a single flag: once a warning fires, no other fires
	// until data is mutated, whatever month is being viewed.
	ScopeSession NotifyScope = "session"
	// ScopeMonth keeps one flag per month key. Navigation never resets a
	// flag; a mutation resets only the flags of the months it touched.
	ScopeMonth NotifyScope = "month"
)

func ParseNotifyScope(s string) (NotifyScope, error) {
	switch NotifyScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSession:
		return ScopeSession, nil
	case ScopeMonth:
		return ScopeMonth, nil
	default:
		return "", fmt.Errorf("unknown notify scope %q", s)
	}
}

// OverageEvent is emitted once when Needs/Wants overspending spills into Savings.
type OverageEvent struct {
	Month            Month
	TotalOver        Money
	SavingsRemaining Money
	SavingsNegative  bool
}

// NotificationState is the one-shot overage flag. It has value semantics:
// every method returns a new state and never modifies the receiver.
type NotificationState struct {
	scope  NotifyScope
	fired  bool
	months map[string]bool
}

// NewNotificationState returns a state in which nothing has fired yet.
func NewNotificationState(scope NotifyScope) NotificationState {
	if scope != ScopeMonth {
		scope = ScopeSession
	}
	return NotificationState{scope: scope}
}

func (s NotificationState) Scope() NotifyScope {
	if s.scope == "" {
		return ScopeSession
	}
	return s.scope
}

// Fired reports whether a warning for month has already been emitted
// within the current scope.
func (s NotificationState) Fired(month Month) bool {
	if s.Scope() == ScopeMonth {
		return s.months[month.Key()]
	}
	return s.fired
}

// Reset clears the flag after a data mutation. In month scope only the
// given months are cleared; with no months every flag is cleared.
func (s NotificationState) Reset(months ...Month) NotificationState {
	next := NotificationState{scope: s.Scope()}
	if next.scope == ScopeSession || len(months) == 0 || len(s.months) == 0 {
		return next
	}
	next.months = make(map[string]bool, len(s.months))
	for k, v := range s.months {
		next.months[k] = v
	}
	for _, m := range months {
		delete(next.months, m.Key())
	}
	return next
}

// Observe returns the overage event for f if one is due, together with the
// state that records it as fired. No event is produced without income.
func (s NotificationState) Observe(f MonthFigures) (NotificationState, *OverageEvent) {
	if !f.Overspent() || s.Fired(f.Month) {
		return s, nil
	}
	ev := &OverageEvent{
		Month:            f.Month,
		TotalOver:        f.TotalOver,
		SavingsRemaining: f.Savings.Remaining,
		SavingsNegative:  f.SavingsNegative(),
	}
	next := NotificationState{scope: s.Scope(), fired: s.fired}
	if next.scope == ScopeMonth {
		next.months = make(map[string]bool, len(s.months)+1)
		for k, v := range s.months {
			next.months[k] = v
		}
		next.months[f.Month.Key()] = true
	} else {
		next.fired = true
	}
	return next, ev
}
