package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fiftythirty/internal/amqp"
	"fiftythirty/internal/core"
	"fiftythirty/internal/sheets"
	"fiftythirty/internal/sheets/memory"
	"fiftythirty/internal/state"
)

var march = core.Month{Year: 2024, Month: time.March}

func savedStore(t *testing.T) *state.MemoryStore {
	t.Helper()
	snap := state.Default()
	snap.Expenses = []core.Expense{
		{Date: core.NewDate(2024, time.March, 1), Amount: core.Money{Cents: 30000}, Category: "Housing", Bucket: core.Needs},
		{Date: core.NewDate(2024, time.April, 1), Amount: core.Money{Cents: 100}, Category: "Food", Bucket: core.Needs},
		{Date: core.NewDate(2024, time.March, 9), Amount: core.Money{Cents: 25000}, Category: "Food", Bucket: core.Needs},
	}
	store := state.NewMemoryStore()
	if err := store.Save(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	return store
}

func overage(month core.Month) *amqp.OverageMessage {
	return amqp.NewOverageMessage(core.OverageEvent{
		Month:            month,
		TotalOver:        core.Money{Cents: 5000},
		SavingsRemaining: core.Money{Cents: 15000},
	})
}

func TestHandleOverageExportsMonth(t *testing.T) {
	exporter := memory.New("")
	w := NewOverageWorker(savedStore(t), exporter, nil)

	if err := w.HandleOverage(context.Background(), overage(march)); err != nil {
		t.Fatal(err)
	}
	rows, ok := exporter.Tab(sheets.SheetName("", march))
	if !ok {
		t.Fatal("month was not exported")
	}
	// header, two March expenses, total
	if len(rows) != 4 {
		t.Fatalf("got %d rows: %v", len(rows), rows)
	}
}

func TestHandleOverageWithoutExporter(t *testing.T) {
	w := NewOverageWorker(savedStore(t), nil, nil)
	if err := w.HandleOverage(context.Background(), overage(march)); err != nil {
		t.Fatal(err)
	}
	if err := w.SyncMonth(context.Background(), march); !errors.Is(err, sheets.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHandleOverageRejectsBadMonth(t *testing.T) {
	w := NewOverageWorker(state.NewMemoryStore(), memory.New(""), nil)
	msg := overage(march)
	msg.Month = "March"
	if err := w.HandleOverage(context.Background(), msg); err == nil {
		t.Fatal("expected error for malformed month")
	}
}

func TestSyncMonthWithNothingSaved(t *testing.T) {
	exporter := memory.New("Budget")
	w := NewOverageWorker(state.NewMemoryStore(), exporter, nil)
	if err := w.SyncMonth(context.Background(), march); err != nil {
		t.Fatal(err)
	}
	rows, ok := exporter.Tab(sheets.SheetName("Budget", march))
	if !ok || len(rows) != 2 {
		t.Fatalf("expected header and total only, got %v", rows)
	}
}
