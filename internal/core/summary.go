package core

import (
	"sort"
	"strings"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// MonthAmount represents an amount aggregated by calendar month.
type MonthAmount struct {
	Month  Month
	Amount Money
}

// Report summarises a set of expenses across all months.
type Report struct {
	Count      int
	Total      Money
	ByCategory []CategoryAmount // descending by amount, then by name
	ByMonth    []MonthAmount    // ascending by month
}

// BuildReport aggregates expenses by category and by month. A blank
// category is reported as DefaultCategory.
func BuildReport(expenses []Expense) Report {
	r := Report{Count: len(expenses)}
	byCat := make(map[string]Money)
	byMonth := make(map[Month]Money)
	for _, e := range expenses {
		r.Total = r.Total.Add(e.Amount)
		name := strings.TrimSpace(e.Category)
		if name == "" {
			name = DefaultCategory
		}
		byCat[name] = byCat[name].Add(e.Amount)
		m := MonthOf(e.Date.Time)
		byMonth[m] = byMonth[m].Add(e.Amount)
	}

	r.ByCategory = make([]CategoryAmount, 0, len(byCat))
	for name, amt := range byCat {
		r.ByCategory = append(r.ByCategory, CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(r.ByCategory, func(i, j int) bool {
		a, b := r.ByCategory[i], r.ByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})

	r.ByMonth = make([]MonthAmount, 0, len(byMonth))
	for m, amt := range byMonth {
		r.ByMonth = append(r.ByMonth, MonthAmount{Month: m, Amount: amt})
	}
	sort.Slice(r.ByMonth, func(i, j int) bool { return r.ByMonth[i].Month.Before(r.ByMonth[j].Month) })
	return r
}
