package core

import "sort"

// IncomeLedger maps month keys ("YYYY-MM") to the income of that month.
// The zero value is an empty, usable ledger.
type IncomeLedger struct {
	entries map[string]Money
}

// IncomeEntry is one month of income.
type IncomeEntry struct {
	Month  string
	Amount Money
}

// IncomeLedgerFromMap builds a ledger from persisted data. Keys that do not
// parse as months and non-positive amounts are dropped.
func IncomeLedgerFromMap(m map[string]Money) IncomeLedger {
	var l IncomeLedger
	for k, v := range m {
		month, err := ParseMonth(k)
		if err != nil || !v.IsPositive() {
			continue
		}
		l.put(month.Key(), v)
	}
	return l
}

func (l *IncomeLedger) put(key string, amount Money) {
	if l.entries == nil {
		l.entries = make(map[string]Money)
	}
	l.entries[key] = amount
}

// Set inserts or overwrites the income of month. Amounts <= 0 are rejected
// and leave the ledger untouched.
func (l *IncomeLedger) Set(month Month, amount Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.put(month.Key(), amount)
	return nil
}

// For returns the income of month, or zero when none was set.
func (l IncomeLedger) For(month Month) Money {
	return l.entries[month.Key()]
}

func (l IncomeLedger) Has(month Month) bool {
	_, ok := l.entries[month.Key()]
	return ok
}

// MigrateLegacy folds a legacy single income into the ledger when the amount
// is positive, the date is set and its month has no entry yet. It reports
// whether the ledger changed; a second call with the same input is a no-op.
func (l *IncomeLedger) MigrateLegacy(amount Money, month Date) bool {
	if !amount.IsPositive() || month.IsZero() {
		return false
	}
	m := MonthOf(month.Time)
	if l.Has(m) {
		return false
	}
	l.put(m.Key(), amount)
	return true
}

// Entries returns the ledger sorted by month.
func (l IncomeLedger) Entries() []IncomeEntry {
	out := make([]IncomeEntry, 0, len(l.entries))
	for k, v := range l.entries {
		out = append(out, IncomeEntry{Month: k, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Map returns a copy of the underlying map, for persistence.
func (l IncomeLedger) Map() map[string]Money {
	out := make(map[string]Money, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}

func (l IncomeLedger) Clone() IncomeLedger {
	if l.entries == nil {
		return IncomeLedger{}
	}
	return IncomeLedger{entries: l.Map()}
}

func (l IncomeLedger) Len() int { return len(l.entries) }
