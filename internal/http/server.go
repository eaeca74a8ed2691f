// Package http exposes the tracker as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fiftythirty/internal/cache"
	"fiftythirty/internal/core"
	"fiftythirty/internal/csv"
	"fiftythirty/internal/log"
	"fiftythirty/internal/middleware/ratelimit"
	"fiftythirty/internal/middleware/security"
	"fiftythirty/internal/sheets"
	"fiftythirty/internal/tracker"
)

const (
	maxJSONBody = 64 << 10
	maxCSVBody  = 10 << 20
)

var errRatiosSum = errors.New("ratios must sum to 1")

type Server struct {
	http.Server
	svc      *tracker.Service
	codec    *csv.Codec
	exporter sheets.MonthExporter
	limiter  *ratelimit.Limiter
	reports  *cache.LRU[uint64, reportDTO]
	validate *validator.Validate
	logger   *log.Logger
}

type Option func(*Server)

// WithExporter enables POST /api/export/sheets.
func WithExporter(e sheets.MonthExporter) Option {
	return func(s *Server) { s.exporter = e }
}

// WithLimiter rate limits state-changing requests per client IP.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithReportCache replaces the default report cache. Reports are keyed by
// data revision so a stale entry is never served.
func WithReportCache(c *cache.LRU[uint64, reportDTO]) Option {
	return func(s *Server) { s.reports = c }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewReportCache builds the cache used for GET /api/reports.
func NewReportCache(size int, ttl time.Duration) *cache.LRU[uint64, reportDTO] {
	return cache.NewLRU[uint64, reportDTO](size, ttl)
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *tracker.Service, codec *csv.Codec, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		codec:    codec,
		validate: newValidator(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = log.OrDiscard(s.logger).WithComponent(log.ComponentHTTP)
	if s.reports == nil {
		s.reports = NewReportCache(16, 10*time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/month", s.handleMonth)
	mux.HandleFunc("POST /api/expenses", s.handleAddExpense)
	mux.HandleFunc("PUT /api/expenses/{index}", s.handleEditExpense)
	mux.HandleFunc("DELETE /api/expenses/{index}", s.handleDeleteExpense)
	mux.HandleFunc("GET /api/income", s.handleListIncome)
	mux.HandleFunc("PUT /api/income", s.handleSetIncome)
	mux.HandleFunc("PUT /api/ratios", s.handleSetRatios)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/export", s.handleExport)
	mux.HandleFunc("POST /api/export/sheets", s.handleExportSheets)
	mux.HandleFunc("GET /api/reports", s.handleReports)

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(security.ClientIP, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		})(handler)
	}
	handler = security.Headers(security.DefaultHeadersConfig())(handler)
	handler = log.Middleware(s.logger, security.ClientIP)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Run serves until ctx is done, then shuts it down within
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP server listening", "addr", s.Addr)
		errCh <- s.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.InfoContext(shutdownCtx, "Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	return nil
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	entries := core.Catalog()
	out := make([]categoryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, categoryDTO{Name: e.Name, Bucket: e.Bucket, Label: e.Bucket.Label()})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMonth returns the selected month. ?month=YYYY-MM selects a month
// and ?delta=N moves from the selection.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var nav tracker.Navigate
	if v := strings.TrimSpace(q.Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, badRequest("month %q", v))
			return
		}
		nav.Month = m
	}
	if v := strings.TrimSpace(q.Get("delta")); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, r, badRequest("delta %q", v))
			return
		}
		nav.Delta = d
	}

	if nav.Month.IsZero() && nav.Delta == 0 {
		writeJSON(w, http.StatusOK, newMonthResponse(s.svc.Current(r.Context())))
		return
	}
	s.handle(w, r, http.StatusOK, nav)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, amount, bucket, err := req.parse()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.handle(w, r, http.StatusCreated, tracker.AddExpense{
		Date:        date,
		Amount:      amount,
		Category:    req.Category,
		Description: req.Description,
		Bucket:      bucket,
	})
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req expenseRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, amount, bucket, err := req.parse()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.handle(w, r, http.StatusOK, tracker.EditExpense{
		Index:       index,
		Date:        date,
		Amount:      amount,
		Category:    req.Category,
		Description: req.Description,
		Bucket:      bucket,
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.handle(w, r, http.StatusOK, tracker.DeleteExpense{Index: index})
}

func (s *Server) handleListIncome(w http.ResponseWriter, r *http.Request) {
	entries := s.svc.Incomes()
	out := make([]incomeDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, incomeDTO{Month: e.Month, Amount: e.Amount})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetIncome(w http.ResponseWriter, r *http.Request) {
	var req incomeRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	month, err := core.ParseMonth(req.Month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := req.Amount.Money()
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.handle(w, r, http.StatusOK, tracker.SetIncome{Month: month, Amount: amount})
}

// handleSetRatios accepts only splits that add up to exactly 1.
func (s *Server) handleSetRatios(w http.ResponseWriter, r *http.Request) {
	var req ratiosRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ratios, err := req.parse()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ratios.Sum().Equal(decimal.NewFromInt(1)) {
		writeError(w, r, fmt.Errorf("%w: got %s", errRatiosSum, ratios.Sum().String()))
		return
	}
	s.handle(w, r, http.StatusOK, tracker.SetRatios{Ratios: ratios})
}

// handleImport reads a CSV body. ?replace=true replaces every expense.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	replace := false
	if v := r.URL.Query().Get("replace"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, badRequest("replace %q", v))
			return
		}
		replace = b
	}

	body := http.MaxBytesReader(w, r.Body, maxCSVBody)
	imp, err := s.codec.Import(r.Context(), body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if !errors.As(err, &maxErr) {
			err = badRequest("%v", err)
		}
		writeError(w, r, err)
		return
	}

	res, err := s.svc.Handle(r.Context(), tracker.ImportExpenses{Expenses: imp.Expenses, Replace: replace})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		monthResponse: newMonthResponse(res),
		Imported:      res.Imported,
		Degraded:      imp.Degraded,
		Skipped:       imp.Skipped,
	})
}

// handleExport downloads every expense as CSV, or one month's with
// ?month=YYYY-MM.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := "expenses.csv"
	var expenses []core.Expense
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, badRequest("month %q", v))
			return
		}
		expenses = plainExpenses(s.svc.Expenses(m))
		filename = "expenses-" + m.Key() + ".csv"
	} else {
		snap, _ := s.svc.Snapshot()
		expenses = snap.Expenses
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := s.codec.Export(w, expenses); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export failed",
			log.FieldOperation, log.OpExport, log.FieldError, err)
	}
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, r, sheets.ErrNotConfigured)
		return
	}
	month := s.svc.SelectedMonth()
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		m, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, r, badRequest("month %q", v))
			return
		}
		month = m
	}

	expenses := plainExpenses(s.svc.Expenses(month))
	ref, err := s.exporter.ExportMonth(r.Context(), month, expenses)
	if err != nil {
		writeError(w, r, fmt.Errorf("export %s: %w", month.Key(), err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "ref": ref, "count": len(expenses)})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	snap, rev := s.svc.Snapshot()
	report, hit, err := s.reports.GetOrCompute(rev, func() (reportDTO, error) {
		return newReportDTO(core.BuildReport(snap.Expenses)), nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, report)
}

// handle runs req against the tracker and writes the recomputed month.
func (s *Server) handle(w http.ResponseWriter, r *http.Request, status int, req tracker.Request) {
	res, err := s.svc.Handle(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, newMonthResponse(res))
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return err
		}
		return badRequest("invalid JSON: %v", err)
	}
	return s.validate.StructCtx(r.Context(), dst)
}

func pathIndex(r *http.Request) (int, error) {
	v := r.PathValue("index")
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return 0, badRequest("expense index %q", v)
	}
	return i, nil
}

func plainExpenses(entries []tracker.Entry) []core.Expense {
	out := make([]core.Expense, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Expense)
	}
	return out
}
