package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"fiftythirty/internal/core"
)

// currentVersion is written into every saved document. Documents without a
// Version field predate the income ledger's versioning and are upgraded.
const currentVersion = 1

var ErrUnsupportedFormat = errors.New("unsupported snapshot format")

type document struct {
	Version        int                   `json:"Version,omitempty"`
	Expenses       []expenseJSON         `json:"Expenses"`
	MonthlyIncomes map[string]core.Money `json:"MonthlyIncomes"`
	MonthlyIncome  core.Money            `json:"MonthlyIncome"`
	IncomeMonth    core.Date             `json:"IncomeMonth"`
	Bucket50       *core.Ratio           `json:"Bucket50,omitempty"`
	Bucket30       *core.Ratio           `json:"Bucket30,omitempty"`
	Bucket20       *core.Ratio           `json:"Bucket20,omitempty"`
}

type expenseJSON struct {
	Date         core.Date  `json:"Date"`
	Amount       core.Money `json:"Amount"`
	Category     string     `json:"Category"`
	Description  string     `json:"Description"`
	BudgetBucket string     `json:"BudgetBucket"`
}

// upgrades[v] moves a version-v document to version v+1.
var upgrades = []func(*Snapshot){
	// 0 -> 1: fold the single MonthlyIncome/IncomeMonth pair into the ledger.
	func(s *Snapshot) { s.Upgrade() },
}

// Decode parses a snapshot document and runs any pending upgrade steps.
// Field names are matched case-insensitively. A missing ratio takes its
// 50/30/20 default.
func Decode(data []byte) (Snapshot, error) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), []byte("\xef\xbb\xbf"))
	if len(data) == 0 || data[0] != '{' {
		return Snapshot{}, ErrUnsupportedFormat
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if doc.Version > currentVersion {
		return Snapshot{}, fmt.Errorf("%w: version %d", ErrUnsupportedFormat, doc.Version)
	}

	defaults := core.DefaultRatios()
	snap := Snapshot{
		Expenses:          make([]core.Expense, 0, len(doc.Expenses)),
		Incomes:           core.IncomeLedgerFromMap(doc.MonthlyIncomes),
		Ratios:            defaults,
		LegacyIncome:      doc.MonthlyIncome,
		LegacyIncomeMonth: doc.IncomeMonth,
	}
	if doc.Bucket50 != nil {
		snap.Ratios.Needs = *doc.Bucket50
	}
	if doc.Bucket30 != nil {
		snap.Ratios.Wants = *doc.Bucket30
	}
	if doc.Bucket20 != nil {
		snap.Ratios.Savings = *doc.Bucket20
	}
	for _, e := range doc.Expenses {
		snap.Expenses = append(snap.Expenses, core.Expense{
			Date:        e.Date,
			Amount:      e.Amount,
			Category:    core.NormalizeNewlines(e.Category),
			Description: core.NormalizeNewlines(e.Description),
			Bucket:      core.Bucket(e.BudgetBucket),
		})
	}
	for v := doc.Version; v < currentVersion; v++ {
		upgrades[v](&snap)
	}
	return snap, nil
}

// Encode renders s as an indented document at the current version.
func Encode(s Snapshot) ([]byte, error) {
	n50, n30, n20 := s.Ratios.Needs, s.Ratios.Wants, s.Ratios.Savings
	doc := document{
		Version:        currentVersion,
		Expenses:       make([]expenseJSON, 0, len(s.Expenses)),
		MonthlyIncomes: s.Incomes.Map(),
		MonthlyIncome:  s.LegacyIncome,
		IncomeMonth:    s.LegacyIncomeMonth,
		Bucket50:       &n50,
		Bucket30:       &n30,
		Bucket20:       &n20,
	}
	for _, e := range s.Expenses {
		doc.Expenses = append(doc.Expenses, expenseJSON{
			Date:         e.Date,
			Amount:       e.Amount,
			Category:     e.Category,
			Description:  e.Description,
			BudgetBucket: string(e.Bucket),
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}
