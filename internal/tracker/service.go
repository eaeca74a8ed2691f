package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
	"fiftythirty/internal/state"
)

// Service is the single writer of the snapshot. Requests are handled one
// at a time; each mutation bumps the revision, resets the notification
// flag for the months it touched, recomputes the selected month and
// schedules a background save.
type Service struct {
	mu       sync.Mutex
	snap     state.Snapshot
	session  Session
	revision uint64

	logger    *log.Logger
	notifiers []Notifier
	saver     *saver
}

type Option func(*serviceConfig)

type serviceConfig struct {
	now         func() time.Time
	scope       core.NotifyScope
	logger      *log.Logger
	notifiers   []Notifier
	store       state.Store
	saveTimeout time.Duration
}

// WithStore enables background persistence after every mutation.
func WithStore(store state.Store, timeout time.Duration) Option {
	return func(c *serviceConfig) {
		c.store = store
		c.saveTimeout = timeout
	}
}

func WithNotifier(n Notifier) Option {
	return func(c *serviceConfig) { c.notifiers = append(c.notifiers, n) }
}

func WithClock(now func() time.Time) Option {
	return func(c *serviceConfig) { c.now = now }
}

func WithNotifyScope(scope core.NotifyScope) Option {
	return func(c *serviceConfig) { c.scope = scope }
}

func WithLogger(l *log.Logger) Option {
	return func(c *serviceConfig) { c.logger = l }
}

// New starts a service on snap with the current calendar month selected.
func New(snap state.Snapshot, opts ...Option) *Service {
	cfg := serviceConfig{now: time.Now, scope: core.ScopeSession}
	for _, o := range opts {
		o(&cfg)
	}
	cfg.logger = log.OrDiscard(cfg.logger)

	s := &Service{
		snap:      snap.Clone(),
		session:   NewSession(core.MonthOf(cfg.now()), cfg.scope),
		logger:    cfg.logger,
		notifiers: cfg.notifiers,
	}
	if cfg.store != nil {
		s.saver = newSaver(cfg.store, cfg.saveTimeout, cfg.logger.WithComponent(log.ComponentState))
	}
	return s
}

// Close flushes the pending save, if any.
func (s *Service) Close(ctx context.Context) error {
	if s.saver == nil {
		return nil
	}
	return s.saver.close(ctx)
}

// Handle applies req and returns the recomputed selected month.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	s.mu.Lock()
	res, err := s.handleLocked(ctx, req)
	s.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	if res.Overage != nil {
		// Consumers read the store, so the month must be on disk first.
		if s.saver != nil {
			if err := s.saver.wait(ctx, res.Revision); err != nil {
				s.logger.WarnContext(ctx, "Overage published before state was saved",
					log.FieldOperation, log.OpNotify, log.FieldMonth, res.Overage.Month.Key(), log.FieldError, err)
			}
		}
		s.notify(ctx, *res.Overage)
	}
	return res, nil
}

func (s *Service) handleLocked(ctx context.Context, req Request) (Result, error) {
	index := -1
	imported := 0
	var touched []core.Month
	mutated := true

	switch r := req.(type) {
	case AddExpense:
		e, err := newExpense(r.Date, r.Amount, r.Category, r.Description, r.Bucket)
		if err != nil {
			return Result{}, err
		}
		s.snap.Expenses = append(s.snap.Expenses, e)
		index = len(s.snap.Expenses) - 1
		touched = []core.Month{core.MonthOf(e.Date.Time)}
		s.logger.InfoContext(ctx, "Expense added", log.NewFields().
			WithOperation(log.OpCreate).
			WithExpense(core.MonthKey(e.Date), e.Amount.Cents, e.Category, string(e.Bucket)).ToSlice()...)

	case EditExpense:
		if r.Index < 0 || r.Index >= len(s.snap.Expenses) {
			return Result{}, fmt.Errorf("%w: index %d", ErrExpenseNotFound, r.Index)
		}
		old := s.snap.Expenses[r.Index]
		bucket := old.Bucket
		if !bucket.Valid() {
			bucket = r.Bucket
		}
		e, err := newExpense(r.Date, r.Amount, r.Category, r.Description, bucket)
		if err != nil {
			return Result{}, err
		}
		s.snap.Expenses[r.Index] = e
		index = r.Index
		touched = []core.Month{core.MonthOf(old.Date.Time), core.MonthOf(e.Date.Time)}
		s.logger.InfoContext(ctx, "Expense edited", log.NewFields().
			WithOperation(log.OpUpdate).
			WithExpense(core.MonthKey(e.Date), e.Amount.Cents, e.Category, string(e.Bucket)).ToSlice()...)

	case DeleteExpense:
		if r.Index < 0 || r.Index >= len(s.snap.Expenses) {
			return Result{}, fmt.Errorf("%w: index %d", ErrExpenseNotFound, r.Index)
		}
		old := s.snap.Expenses[r.Index]
		s.snap.Expenses = append(s.snap.Expenses[:r.Index:r.Index], s.snap.Expenses[r.Index+1:]...)
		touched = []core.Month{core.MonthOf(old.Date.Time)}
		s.logger.InfoContext(ctx, "Expense deleted", log.FieldOperation, log.OpDelete, log.FieldIndex, r.Index)

	case SetIncome:
		if r.Month.IsZero() {
			return Result{}, core.ErrInvalidMonth
		}
		if err := s.snap.Incomes.Set(r.Month, r.Amount); err != nil {
			return Result{}, err
		}
		touched = []core.Month{r.Month}
		s.logger.InfoContext(ctx, "Income set", log.FieldMonth, r.Month.Key(), log.FieldAmountCents, r.Amount.Cents)

	case SetRatios:
		if err := r.Ratios.Validate(); err != nil {
			return Result{}, err
		}
		s.snap.Ratios = r.Ratios
		s.logger.InfoContext(ctx, "Ratios set", "needs", r.Ratios.Needs.String(), "wants", r.Ratios.Wants.String(), "savings", r.Ratios.Savings.String())

	case ImportExpenses:
		if r.Replace {
			s.snap.Expenses = make([]core.Expense, 0, len(r.Expenses))
		} else {
			for _, e := range r.Expenses {
				touched = append(touched, core.MonthOf(e.Date.Time))
			}
		}
		s.snap.Expenses = append(s.snap.Expenses, r.Expenses...)
		imported = len(r.Expenses)
		s.logger.InfoContext(ctx, "Expenses imported", log.FieldOperation, log.OpImport, log.FieldCount, imported, "replace", r.Replace)
		if !r.Replace && imported == 0 {
			mutated = false
		}

	case Navigate:
		mutated = false
		month := s.session.Month
		if !r.Month.IsZero() {
			month = r.Month
		}
		s.session.Month = month.AddMonths(r.Delta)
		s.logger.DebugContext(ctx, "Month selected", log.FieldOperation, log.OpNavigate, log.FieldMonth, s.session.Month.Key())

	default:
		return Result{}, fmt.Errorf("%w: %T", ErrUnknownRequest, req)
	}

	if mutated {
		s.revision++
		// SetRatios and a replacing import touch every month.
		s.session.Notify = s.session.Notify.Reset(touched...)
		if s.saver != nil {
			s.saver.schedule(s.revision, s.snap.Clone())
		}
	}

	res := s.resultLocked()
	res.Index = index
	res.Imported = imported
	return res, nil
}

// resultLocked evaluates the selected month and advances the session.
func (s *Service) resultLocked() Result {
	figures, next, ev := Evaluate(s.session, s.snap)
	s.session = next
	return Result{
		Month:    s.session.Month,
		Figures:  figures,
		Expenses: monthEntries(s.snap, s.session.Month),
		Overage:  ev,
		Index:    -1,
		Revision: s.revision,
	}
}

func (s *Service) notify(ctx context.Context, ev core.OverageEvent) {
	for _, n := range s.notifiers {
		if err := n.NotifyOverage(ctx, ev); err != nil {
			s.logger.ErrorContext(ctx, "Failed to deliver overage notification",
				log.FieldOperation, log.OpNotify, log.FieldMonth, ev.Month.Key(), log.FieldError, err)
		}
	}
}

// Current recomputes the selected month without changing anything but the
// notification flag.
func (s *Service) Current(ctx context.Context) Result {
	res, _ := s.Handle(ctx, Navigate{})
	return res
}

// Snapshot returns a copy of the current snapshot and its revision.
func (s *Service) Snapshot() (state.Snapshot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), s.revision
}

// Revision counts mutations since start.
func (s *Service) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// SelectedMonth returns the month being viewed.
func (s *Service) SelectedMonth() core.Month {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Month
}

// Incomes returns the income ledger sorted by month.
func (s *Service) Incomes() []core.IncomeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Incomes.Entries()
}

// Ratios returns the current bucket ratios.
func (s *Service) Ratios() core.Ratios {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Ratios
}

// Report aggregates every expense.
func (s *Service) Report() core.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.BuildReport(s.snap.Expenses)
}

// Expenses returns the expenses of month with their snapshot indexes.
func (s *Service) Expenses(month core.Month) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return monthEntries(s.snap, month)
}

// newExpense normalises user input into a valid expense. An empty category
// becomes core.DefaultCategory; an empty or unknown bucket is looked up in
// the catalog.
func newExpense(date core.Date, amount core.Money, category, description string, bucket core.Bucket) (core.Expense, error) {
	category = core.NormalizeCategory(core.NormalizeNewlines(category))
	description = core.NormalizeNewlines(description)
	if !bucket.Valid() {
		if b, ok := core.BucketForCategory(category); ok {
			bucket = b
		}
	}
	e := core.Expense{
		Date:        date,
		Amount:      amount,
		Category:    category,
		Description: description,
		Bucket:      bucket,
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}
