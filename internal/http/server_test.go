package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fiftythirty/internal/core"
	"fiftythirty/internal/csv"
	"fiftythirty/internal/middleware/ratelimit"
	"fiftythirty/internal/sheets/memory"
	"fiftythirty/internal/state"
	"fiftythirty/internal/tracker"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	march := func() time.Time { return time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC) }
	svc := tracker.New(state.Default(), tracker.WithClock(march))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	codec := csv.NewCodec(csv.MustLocale("en-US"), csv.WithClock(march))
	return NewServer(":0", svc, codec, opts...)
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" && !strings.HasPrefix(path, "/api/import") {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeMonth(t *testing.T, rr *httptest.ResponseRecorder) monthResponse {
	t.Helper()
	var out monthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestHealthAndCategories(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request ID header")
	}
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}

	rr = do(t, srv, http.MethodGet, "/api/categories", "")
	var cats []categoryDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &cats); err != nil {
		t.Fatal(err)
	}
	if len(cats) != len(core.Catalog()) || cats[0].Name != "Housing" || cats[0].Bucket != core.Needs {
		t.Fatalf("categories %+v", cats)
	}
}

func TestOverageScenarioThroughAPI(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPut, "/api/income", `{"month":"2024-03","amount":"1000"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("income status=%d body=%s", rr.Code, rr.Body)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":300,"category":"Housing"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body)
	}
	if res := decodeMonth(t, rr); res.Overage != nil || res.Index == nil || *res.Index != 0 {
		t.Fatalf("first add %+v", res)
	}

	rr = do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-02","amount":"250,00","category":"Food"}`)
	res := decodeMonth(t, rr)
	if res.Overage == nil || res.Overage.TotalOver.Cents != 5000 {
		t.Fatalf("expected overage of 50.00, got %+v", res.Overage)
	}

	do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-03","amount":"250","category":"Travel"}`)
	rr = do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-04","amount":"50","category":"Savings"}`)
	res = decodeMonth(t, rr)

	f := res.Figures
	if !f.Available || f.Income == nil || f.Income.Cents != 100000 {
		t.Fatalf("income %+v", f)
	}
	if f.Needs.Spent.Cents != 55000 || f.Wants.Remaining == nil || f.Wants.Remaining.Cents != 5000 {
		t.Fatalf("needs/wants %+v %+v", f.Needs, f.Wants)
	}
	if f.Savings.EffectiveSpent.Cents != 10000 || f.Savings.Remaining.Cents != 10000 {
		t.Fatalf("savings %+v", f.Savings)
	}
	if len(res.Expenses) != 4 || res.Month.Key() != "2024-03" {
		t.Fatalf("month %s with %d expenses", res.Month, len(res.Expenses))
	}

	// Viewing again is not a mutation.
	if res := decodeMonth(t, do(t, srv, http.MethodGet, "/api/month", "")); res.Overage != nil {
		t.Fatal("view must not warn again")
	}
}

func TestMonthWithoutIncomeHasNullAllocations(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/month?month=2024-04", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	var raw struct {
		Month   string `json:"month"`
		Figures struct {
			Income    json.RawMessage `json:"income"`
			Available bool            `json:"available"`
			Needs     struct {
				Allocation json.RawMessage `json:"allocation"`
			} `json:"needs"`
		} `json:"figures"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw.Month != "2024-04" || raw.Figures.Available {
		t.Fatalf("month %+v", raw)
	}
	if string(raw.Figures.Income) != "null" || string(raw.Figures.Needs.Allocation) != "null" {
		t.Fatalf("expected nulls, got income=%s allocation=%s", raw.Figures.Income, raw.Figures.Needs.Allocation)
	}

	res := decodeMonth(t, do(t, srv, http.MethodGet, "/api/month?delta=-2", ""))
	if res.Month.Key() != "2024-02" {
		t.Fatalf("delta navigation landed on %s", res.Month)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		field  string
	}{
		{"malformed JSON", http.MethodPost, "/api/expenses", `{"date":`, http.StatusBadRequest, ""},
		{"unknown field", http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"1","colour":"red"}`, http.StatusBadRequest, ""},
		{"bad date", http.MethodPost, "/api/expenses", `{"date":"2024-13-01","amount":"1"}`, http.StatusUnprocessableEntity, "date"},
		{"missing amount", http.MethodPost, "/api/expenses", `{"date":"2024-03-01"}`, http.StatusUnprocessableEntity, "amount"},
		{"negative amount", http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"-5"}`, http.StatusUnprocessableEntity, "amount"},
		{"unknown bucket", http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"5","bucket":"Pets"}`, http.StatusUnprocessableEntity, "bucket"},
		{"missing expense", http.MethodPut, "/api/expenses/7", `{"date":"2024-03-01","amount":"5"}`, http.StatusNotFound, ""},
		{"bad index", http.MethodDelete, "/api/expenses/abc", "", http.StatusBadRequest, ""},
		{"bad month", http.MethodGet, "/api/month?month=March", "", http.StatusBadRequest, ""},
		{"bad income month", http.MethodPut, "/api/income", `{"month":"2024-3x","amount":"10"}`, http.StatusUnprocessableEntity, "month"},
		{"zero income", http.MethodPut, "/api/income", `{"month":"2024-03","amount":"0"}`, http.StatusUnprocessableEntity, ""},
		{"ratios not summing to one", http.MethodPut, "/api/ratios", `{"needs":0.5,"wants":0.3,"savings":0.3}`, http.StatusUnprocessableEntity, ""},
		{"ratio above one", http.MethodPut, "/api/ratios", `{"needs":"1.5","wants":"0","savings":"0"}`, http.StatusUnprocessableEntity, "needs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.status, rr.Body)
			}
			body := decodeError(t, rr)
			if body.Error == "" {
				t.Error("empty error message")
			}
			if tt.field != "" {
				if _, ok := body.Fields[tt.field]; !ok {
					t.Errorf("expected field %q in %v", tt.field, body.Fields)
				}
			}
		})
	}
}

func TestEditAndDeleteExpense(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"10","category":"Food"}`)

	rr := do(t, srv, http.MethodPut, "/api/expenses/0", `{"date":"2024-03-02","amount":"12.5","category":"Restaurants","description":"lunch"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeMonth(t, rr)
	if len(res.Expenses) != 1 {
		t.Fatalf("expenses %+v", res.Expenses)
	}
	e := res.Expenses[0]
	// The stored bucket survives a category change.
	if e.Amount.Cents != 1250 || e.Category != "Restaurants" || e.Bucket != core.Needs {
		t.Fatalf("edited %+v", e)
	}

	rr = do(t, srv, http.MethodDelete, "/api/expenses/0", "")
	if res := decodeMonth(t, rr); len(res.Expenses) != 0 {
		t.Fatalf("delete left %+v", res.Expenses)
	}
}

func TestIncomeAndRatios(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPut, "/api/income", `{"month":"2024-03","amount":"2 000,00"}`)
	do(t, srv, http.MethodPut, "/api/income", `{"month":"2024-01","amount":1500}`)

	rr := do(t, srv, http.MethodGet, "/api/income", "")
	var incomes []incomeDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &incomes); err != nil {
		t.Fatal(err)
	}
	if len(incomes) != 2 || incomes[0].Month != "2024-01" || incomes[1].Amount.Cents != 200000 {
		t.Fatalf("incomes %+v", incomes)
	}

	rr = do(t, srv, http.MethodPut, "/api/ratios", `{"needs":0.6,"wants":"0.2","savings":0.2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("ratios status=%d body=%s", rr.Code, rr.Body)
	}
	res := decodeMonth(t, rr)
	if res.Figures.Needs.Allocation == nil || res.Figures.Needs.Allocation.Cents != 120000 {
		t.Fatalf("needs allocation %+v", res.Figures.Needs.Allocation)
	}
}

func TestImportAndExport(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-02-01","amount":"1","category":"Food"}`)

	body := "Date;Amount;Category;Description;BudgetBucket\n" +
		"2024-03-01;12.50;Food;market;50\n" +
		"2024-03-02;not-a-number;Travel;;30\n"
	rr := do(t, srv, http.MethodPost, "/api/import?replace=true", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body)
	}
	var imp importResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &imp); err != nil {
		t.Fatal(err)
	}
	if imp.Imported != 2 || imp.Degraded != 1 || len(imp.Expenses) != 2 {
		t.Fatalf("import %+v", imp)
	}

	rr = do(t, srv, http.MethodGet, "/api/export", "")
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	out := rr.Body.String()
	if !strings.HasPrefix(out, "Date;Amount;Category;Description;BudgetBucket") {
		t.Fatalf("export header: %q", out)
	}
	if !strings.Contains(out, "2024-03-01;12.50;Food;market;50") {
		t.Fatalf("export rows: %q", out)
	}
	if strings.Contains(out, "2024-02-01") {
		t.Fatal("replacing import kept the old expense")
	}

	rr = do(t, srv, http.MethodGet, "/api/export?month=2024-04", "")
	if strings.Count(rr.Body.String(), "\n") != 1 {
		t.Fatalf("empty month export %q", rr.Body.String())
	}

	rr = do(t, srv, http.MethodPost, "/api/import?replace=maybe", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad replace flag status=%d", rr.Code)
	}
}

func TestReportsAreCachedByRevision(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"10","category":"Food"}`)

	first := do(t, srv, http.MethodGet, "/api/reports", "")
	if first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first X-Cache=%q", first.Header().Get("X-Cache"))
	}
	second := do(t, srv, http.MethodGet, "/api/reports", "")
	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second X-Cache=%q", second.Header().Get("X-Cache"))
	}

	do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-04-01","amount":"5","category":"Travel"}`)
	third := do(t, srv, http.MethodGet, "/api/reports", "")
	if third.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("report after a mutation was served from cache")
	}
	var report reportDTO
	if err := json.Unmarshal(third.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Count != 2 || report.Total.Cents != 1500 || len(report.ByMonth) != 2 {
		t.Fatalf("report %+v", report)
	}
	if report.ByCategory[0].Category != "Food" {
		t.Fatalf("categories should be sorted by amount: %+v", report.ByCategory)
	}
}

func TestExportSheets(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		srv := newTestServer(t)
		rr := do(t, srv, http.MethodPost, "/api/export/sheets", "")
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("memory exporter", func(t *testing.T) {
		store := memory.New("")
		srv := newTestServer(t, WithExporter(store))
		do(t, srv, http.MethodPost, "/api/expenses", `{"date":"2024-03-01","amount":"10","category":"Food"}`)

		rr := do(t, srv, http.MethodPost, "/api/export/sheets?month=2024-03", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
		}
		var out struct {
			Ref   string `json:"ref"`
			Count int    `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatal(err)
		}
		if out.Count != 1 || !strings.HasPrefix(out.Ref, "mem:Expenses 2024-03") {
			t.Fatalf("export %+v", out)
		}
		if _, ok := store.Tab("Expenses 2024-03"); !ok {
			t.Fatal("tab not written")
		}
	})
}

func TestRateLimitOnlyAppliesToWrites(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1})
	srv := newTestServer(t, WithLimiter(limiter))

	if rr := do(t, srv, http.MethodPut, "/api/income", `{"month":"2024-03","amount":"10"}`); rr.Code != http.StatusOK {
		t.Fatalf("first write status=%d", rr.Code)
	}
	rr := do(t, srv, http.MethodPut, "/api/income", `{"month":"2024-03","amount":"10"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second write status=%d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" || decodeError(t, rr).Error != "rate limit exceeded" {
		t.Fatalf("rejection %v %s", rr.Header(), rr.Body)
	}
	for i := 0; i < 3; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/month", ""); rr.Code != http.StatusOK {
			t.Fatalf("read %d status=%d", i, rr.Code)
		}
	}
}
