// Package worker reacts to overage messages consumed from the broker.
package worker

import (
	"context"
	"fmt"

	"fiftythirty/internal/amqp"
	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
	"fiftythirty/internal/sheets"
	"fiftythirty/internal/state"
)

// OverageWorker logs every overage and, when an exporter is configured,
// re-exports the overspent month so the spreadsheet shows what caused it.
// The snapshot is read from the store the tracker saves to.
type OverageWorker struct {
	store    state.Store
	exporter sheets.MonthExporter
	logger   *log.Logger
}

// NewOverageWorker creates a worker. exporter may be nil.
func NewOverageWorker(store state.Store, exporter sheets.MonthExporter, logger *log.Logger) *OverageWorker {
	return &OverageWorker{
		store:    store,
		exporter: exporter,
		logger:   log.OrDiscard(logger).WithComponent(log.ComponentWorker),
	}
}

// HandleOverage processes one message. A returned error requeues it.
func (w *OverageWorker) HandleOverage(ctx context.Context, msg *amqp.OverageMessage) error {
	ev, err := msg.Event()
	if err != nil {
		return fmt.Errorf("decode overage %s: %w", msg.ID, err)
	}

	args := []any{
		log.FieldEventID, msg.ID,
		log.FieldMonth, msg.Month,
		"total_over", ev.TotalOver.String(),
		"savings_remaining", ev.SavingsRemaining.String(),
	}
	if ev.SavingsNegative {
		w.logger.WarnContext(ctx, "Savings went negative", args...)
	} else {
		w.logger.InfoContext(ctx, "Overage taken from Savings", args...)
	}

	if w.exporter == nil {
		return nil
	}
	return w.SyncMonth(ctx, ev.Month)
}

// SyncMonth exports month from the latest saved snapshot.
func (w *OverageWorker) SyncMonth(ctx context.Context, month core.Month) error {
	if w.exporter == nil {
		return sheets.ErrNotConfigured
	}
	snap := state.LoadOrDefault(ctx, w.store, w.logger)

	var expenses []core.Expense
	for _, e := range snap.Expenses {
		if month.Contains(e.Date) {
			expenses = append(expenses, e)
		}
	}

	ref, err := w.exporter.ExportMonth(ctx, month, expenses)
	if err != nil {
		return fmt.Errorf("export %s: %w", month.Key(), err)
	}
	w.logger.InfoContext(ctx, "Synced month to sheet",
		log.FieldOperation, log.OpExport,
		log.FieldMonth, month.Key(),
		log.FieldCount, len(expenses),
		"ref", ref)
	return nil
}
