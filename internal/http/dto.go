package http

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"fiftythirty/internal/core"
	"fiftythirty/internal/tracker"
)

// amountInput accepts a JSON number or a string such as "1 234,56".
type amountInput string

func (a *amountInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = amountInput(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	*a = amountInput(data)
	return nil
}

func (a amountInput) Money() (core.Money, error) {
	return core.ParseAmount(string(a))
}

type expenseRequest struct {
	Date        string      `json:"date" validate:"required,expense_date"`
	Amount      amountInput `json:"amount" validate:"required,amount"`
	Category    string      `json:"category" validate:"max=100"`
	Description string      `json:"description" validate:"max=500"`
	Bucket      string      `json:"bucket" validate:"omitempty,bucket"`
}

// parse converts the validated request; errors here are domain errors.
func (r expenseRequest) parse() (core.Date, core.Money, core.Bucket, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Date{}, core.Money{}, "", err
	}
	amount, err := r.Amount.Money()
	if err != nil {
		return core.Date{}, core.Money{}, "", err
	}
	var bucket core.Bucket
	if strings.TrimSpace(r.Bucket) != "" {
		if bucket, err = core.ParseBucket(r.Bucket); err != nil {
			return core.Date{}, core.Money{}, "", err
		}
	}
	return date, amount, bucket, nil
}

type incomeRequest struct {
	Month  string      `json:"month" validate:"required,month_key"`
	Amount amountInput `json:"amount" validate:"required,amount"`
}

type ratiosRequest struct {
	Needs   string `json:"needs" validate:"required,ratio"`
	Wants   string `json:"wants" validate:"required,ratio"`
	Savings string `json:"savings" validate:"required,ratio"`
}

func (r ratiosRequest) parse() (core.Ratios, error) {
	var out core.Ratios
	for _, p := range []struct {
		dst *core.Ratio
		src string
	}{{&out.Needs, r.Needs}, {&out.Wants, r.Wants}, {&out.Savings, r.Savings}} {
		v, err := core.NewRatio(p.src)
		if err != nil {
			return core.Ratios{}, err
		}
		*p.dst = v
	}
	return out, nil
}

// UnmarshalJSON lets ratios arrive as JSON numbers too.
func (r *ratiosRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Needs, Wants, Savings json.RawMessage
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Needs, r.Wants, r.Savings = rawNumber(raw.Needs), rawNumber(raw.Wants), rawNumber(raw.Savings)
	return nil
}

func rawNumber(m json.RawMessage) string {
	s := strings.TrimSpace(string(m))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("expense_date", func(fl validator.FieldLevel) bool {
		d, err := core.ParseDate(fl.Field().String())
		return err == nil && d.Validate() == nil
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := core.ParseAmount(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("month_key", func(fl validator.FieldLevel) bool {
		_, err := core.ParseMonth(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("bucket", func(fl validator.FieldLevel) bool {
		_, err := core.ParseBucket(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("ratio", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && !d.IsNegative() && d.LessThanOrEqual(decimal.NewFromInt(1))
	})
	return v
}

// Responses.

type bucketDTO struct {
	Bucket         core.Bucket `json:"bucket"`
	Label          string      `json:"label"`
	Allocation     *core.Money `json:"allocation"`
	Spent          core.Money  `json:"spent"`
	EffectiveSpent core.Money  `json:"effective_spent"`
	Overage        core.Money  `json:"overage"`
	Remaining      *core.Money `json:"remaining"`
	PercentUsed    *float64    `json:"percent_used"`
}

type figuresDTO struct {
	Income    *core.Money `json:"income"`
	Available bool        `json:"available"`
	Needs     bucketDTO   `json:"needs"`
	Wants     bucketDTO   `json:"wants"`
	Savings   bucketDTO   `json:"savings"`
	TotalOver core.Money  `json:"total_over"`
	Count     int         `json:"count"`
}

type expenseDTO struct {
	Index       int         `json:"index"`
	Date        core.Date   `json:"date"`
	Amount      core.Money  `json:"amount"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Bucket      core.Bucket `json:"bucket"`
}

type overageDTO struct {
	Month            core.Month `json:"month"`
	TotalOver        core.Money `json:"total_over"`
	SavingsRemaining core.Money `json:"savings_remaining"`
	SavingsNegative  bool       `json:"savings_negative"`
}

type monthResponse struct {
	Month    core.Month   `json:"month"`
	Revision uint64       `json:"revision"`
	Figures  figuresDTO   `json:"figures"`
	Expenses []expenseDTO `json:"expenses"`
	Overage  *overageDTO  `json:"overage,omitempty"`
	Index    *int         `json:"index,omitempty"`
}

type importResponse struct {
	monthResponse
	Imported int `json:"imported"`
	Degraded int `json:"degraded"`
	Skipped  int `json:"skipped"`
}

type incomeDTO struct {
	Month  string     `json:"month"`
	Amount core.Money `json:"amount"`
}

type categoryDTO struct {
	Name   string      `json:"name"`
	Bucket core.Bucket `json:"bucket"`
	Label  string      `json:"label"`
}

type reportDTO struct {
	Count      int                 `json:"count"`
	Total      core.Money          `json:"total"`
	ByCategory []categoryAmountDTO `json:"by_category"`
	ByMonth    []monthAmountDTO    `json:"by_month"`
}

type categoryAmountDTO struct {
	Category string     `json:"category"`
	Amount   core.Money `json:"amount"`
}

type monthAmountDTO struct {
	Month  core.Month `json:"month"`
	Amount core.Money `json:"amount"`
}

func newBucketDTO(f core.BucketFigures, available bool) bucketDTO {
	dto := bucketDTO{
		Bucket:         f.Bucket,
		Label:          f.Bucket.Label(),
		Spent:          f.Spent,
		EffectiveSpent: f.EffectiveSpent,
		Overage:        f.Overage,
	}
	if available {
		alloc, rem, pct := f.Allocation, f.Remaining, f.PercentUsed
		dto.Allocation, dto.Remaining, dto.PercentUsed = &alloc, &rem, &pct
	}
	return dto
}

func newFiguresDTO(f core.MonthFigures) figuresDTO {
	dto := figuresDTO{
		Available: f.Available,
		Needs:     newBucketDTO(f.Needs, f.Available),
		Wants:     newBucketDTO(f.Wants, f.Available),
		Savings:   newBucketDTO(f.Savings, f.Available),
		TotalOver: f.TotalOver,
		Count:     f.Count,
	}
	if f.Available {
		income := f.Income
		dto.Income = &income
	}
	return dto
}

func newMonthResponse(res tracker.Result) monthResponse {
	out := monthResponse{
		Month:    res.Month,
		Revision: res.Revision,
		Figures:  newFiguresDTO(res.Figures),
		Expenses: newExpenseDTOs(res.Expenses),
	}
	if res.Overage != nil {
		out.Overage = &overageDTO{
			Month:            res.Overage.Month,
			TotalOver:        res.Overage.TotalOver,
			SavingsRemaining: res.Overage.SavingsRemaining,
			SavingsNegative:  res.Overage.SavingsNegative,
		}
	}
	if res.Index >= 0 {
		idx := res.Index
		out.Index = &idx
	}
	return out
}

func newExpenseDTOs(entries []tracker.Entry) []expenseDTO {
	out := make([]expenseDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, expenseDTO{
			Index:       e.Index,
			Date:        e.Date,
			Amount:      e.Amount,
			Category:    e.Category,
			Description: e.Description,
			Bucket:      e.Bucket,
		})
	}
	return out
}

func newReportDTO(r core.Report) reportDTO {
	dto := reportDTO{
		Count:      r.Count,
		Total:      r.Total,
		ByCategory: make([]categoryAmountDTO, 0, len(r.ByCategory)),
		ByMonth:    make([]monthAmountDTO, 0, len(r.ByMonth)),
	}
	for _, c := range r.ByCategory {
		dto.ByCategory = append(dto.ByCategory, categoryAmountDTO{Category: c.Name, Amount: c.Amount})
	}
	for _, m := range r.ByMonth {
		dto.ByMonth = append(dto.ByMonth, monthAmountDTO{Month: m.Month, Amount: m.Amount})
	}
	return dto
}
