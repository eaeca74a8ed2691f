package tracker

import (
	"context"

	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
)

// Notifier receives overage events. Failures are logged by the service and
// never fail the request that caused them.
type Notifier interface {
	NotifyOverage(ctx context.Context, ev core.OverageEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev core.OverageEvent) error

func (f NotifierFunc) NotifyOverage(ctx context.Context, ev core.OverageEvent) error {
	return f(ctx, ev)
}

// LogNotifier writes the warning to the log.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) NotifyOverage(ctx context.Context, ev core.OverageEvent) error {
	args := []any{
		log.FieldOperation, log.OpNotify,
		log.FieldMonth, ev.Month.Key(),
		"total_over", ev.TotalOver.String(),
		"savings_remaining", ev.SavingsRemaining.String(),
	}
	if ev.SavingsNegative {
		log.OrDiscard(n.Logger).WarnContext(ctx, "Needs/Wants overspent and Savings went negative", args...)
		return nil
	}
	log.OrDiscard(n.Logger).WarnContext(ctx, "Needs/Wants overspent, overage taken from Savings", args...)
	return nil
}
