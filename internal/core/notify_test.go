package core

import (
	"testing"
	"time"
)

func overFigures(m Month) MonthFigures {
	return Allocate(AllocationInput{
		Income:   Money{Cents: 100000},
		Ratios:   DefaultRatios(),
		Month:    m,
		Expenses: []Expense{exp(m.Year, m.Month, 1, 55000, Needs)},
	})
}

func TestNotificationSessionScope(t *testing.T) {
	march, april := Month{2024, time.March}, Month{2024, time.April}
	s := NewNotificationState(ScopeSession)

	s, ev := s.Observe(overFigures(march))
	if ev == nil || ev.TotalOver.Cents != 5000 || ev.Month != march || ev.SavingsNegative {
		t.Fatalf("first observe: %+v", ev)
	}
	if _, ev = s.Observe(overFigures(march)); ev != nil {
		t.Fatal("must fire only once")
	}
	// Navigating to another overspent month does not re-warn.
	if _, ev = s.Observe(overFigures(april)); ev != nil {
		t.Fatal("session flag covers every month")
	}
	s = s.Reset(march)
	if _, ev = s.Observe(overFigures(april)); ev == nil {
		t.Fatal("mutation resets the session flag")
	}
}

func TestNotificationMonthScope(t *testing.T) {
	march, april := Month{2024, time.March}, Month{2024, time.April}
	s := NewNotificationState(ScopeMonth)

	s, ev := s.Observe(overFigures(march))
	if ev == nil {
		t.Fatal("expected event for march")
	}
	s, ev = s.Observe(overFigures(april))
	if ev == nil {
		t.Fatal("april has its own flag")
	}
	s = s.Reset(april)
	if !s.Fired(march) || s.Fired(april) {
		t.Fatal("reset must only clear april")
	}
	if _, ev = s.Observe(overFigures(march)); ev != nil {
		t.Fatal("march already warned")
	}
	if s.Reset().Fired(march) {
		t.Fatal("reset without months clears everything")
	}
}

func TestNotificationStateIsValue(t *testing.T) {
	s := NewNotificationState(ScopeMonth)
	next, _ := s.Observe(overFigures(Month{2024, time.March}))
	if s.Fired(Month{2024, time.March}) || !next.Fired(Month{2024, time.March}) {
		t.Fatal("Observe must not modify its receiver")
	}
	var zero NotificationState
	if zero.Scope() != ScopeSession {
		t.Fatal("zero value defaults to session scope")
	}
}

func TestParseNotifyScope(t *testing.T) {
	for in, want := range map[string]NotifyScope{"": ScopeSession, "Session": ScopeSession, "month": ScopeMonth} {
		if got, err := ParseNotifyScope(in); err != nil || got != want {
			t.Fatalf("%q -> %q %v", in, got, err)
		}
	}
	if _, err := ParseNotifyScope("week"); err == nil {
		t.Fatal("expected error")
	}
}
