package core

import (
	"math/rand"
	"testing"
	"time"
)

func exp(y int, m time.Month, d int, cents int64, b Bucket) Expense {
	return Expense{Date: NewDate(y, m, d), Amount: Money{Cents: cents}, Category: "x", Bucket: b}
}

func TestAllocateScenario(t *testing.T) {
	march := Month{2024, time.March}
	f := Allocate(AllocationInput{
		Income: Money{Cents: 100000},
		Ratios: DefaultRatios(),
		Month:  march,
		Expenses: []Expense{
			exp(2024, time.March, 1, 30000, Needs),
			exp(2024, time.March, 20, 25000, Needs),
			exp(2024, time.March, 5, 25000, Wants),
			exp(2024, time.March, 31, 5000, Savings),
			exp(2024, time.April, 1, 99900, Needs),
			exp(2023, time.March, 1, 99900, Wants),
			exp(2024, time.March, 2, 77700, "40"),
		},
	})
	if !f.Available {
		t.Fatal("expected figures to be available")
	}
	checks := []struct {
		name      string
		got, want int64
	}{
		{"alloc50", f.Needs.Allocation.Cents, 50000},
		{"alloc30", f.Wants.Allocation.Cents, 30000},
		{"alloc20", f.Savings.Allocation.Cents, 20000},
		{"spent50", f.Needs.Spent.Cents, 55000},
		{"over50", f.Needs.Overage.Cents, 5000},
		{"remaining50", f.Needs.Remaining.Cents, -5000},
		{"spent30", f.Wants.Spent.Cents, 25000},
		{"remaining30", f.Wants.Remaining.Cents, 5000},
		{"over30", f.Wants.Overage.Cents, 0},
		{"spent20", f.Savings.Spent.Cents, 5000},
		{"effective20", f.Savings.EffectiveSpent.Cents, 10000},
		{"remaining20", f.Savings.Remaining.Cents, 10000},
		{"totalOver", f.TotalOver.Cents, 5000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
	if f.Count != 4 {
		t.Errorf("count = %d, want 4", f.Count)
	}
	if f.Needs.PercentUsed != 100 || f.Wants.PercentUsed != 83.33 || f.Savings.PercentUsed != 50 {
		t.Errorf("percent used %v %v %v", f.Needs.PercentUsed, f.Wants.PercentUsed, f.Savings.PercentUsed)
	}
	if !f.Overspent() || f.SavingsNegative() {
		t.Error("expected overspent with savings still positive")
	}
}

func TestAllocateNoIncome(t *testing.T) {
	f := Allocate(AllocationInput{
		Ratios:   DefaultRatios(),
		Month:    Month{2024, time.March},
		Expenses: []Expense{exp(2024, time.March, 1, 123456, Needs)},
	})
	if f.Available {
		t.Fatal("zero income must be unavailable")
	}
	if f.Needs.Spent.Cents != 123456 {
		t.Fatalf("spent still reported, got %d", f.Needs.Spent.Cents)
	}
	if f.Overspent() || !f.TotalOver.IsZero() || f.Needs.PercentUsed != 0 {
		t.Fatal("no overage without income")
	}
	if _, ev := NewNotificationState(ScopeSession).Observe(f); ev != nil {
		t.Fatal("no event without income")
	}
}

func TestAllocateOverageIntoSavings(t *testing.T) {
	// Everything in Wants, over by exactly 123.45.
	f := Allocate(AllocationInput{
		Income:   Money{Cents: 200000},
		Ratios:   DefaultRatios(),
		Month:    Month{2024, time.June},
		Expenses: []Expense{exp(2024, time.June, 3, 60000+12345, Wants), exp(2024, time.June, 4, 1000, Savings)},
	})
	if f.TotalOver.Cents != 12345 {
		t.Fatalf("totalOver = %d", f.TotalOver.Cents)
	}
	if f.Savings.EffectiveSpent.Sub(f.Savings.Spent) != f.TotalOver {
		t.Fatal("effective savings spend must grow by exactly totalOver")
	}
}

func TestAllocateSavingsNegative(t *testing.T) {
	f := Allocate(AllocationInput{
		Income:   Money{Cents: 100000},
		Ratios:   DefaultRatios(),
		Month:    Month{2024, time.June},
		Expenses: []Expense{exp(2024, time.June, 3, 80000, Needs)},
	})
	if f.Savings.Remaining.Cents != -10000 || !f.SavingsNegative() {
		t.Fatalf("savings remaining %d", f.Savings.Remaining.Cents)
	}
	if f.Savings.PercentUsed != 100 {
		t.Fatalf("percent must clamp at 100, got %v", f.Savings.PercentUsed)
	}
}

func TestAllocatePercentBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		in := AllocationInput{
			Income: Money{Cents: rng.Int63n(1_000_000)},
			Ratios: Ratios{Needs: MustRatio("0.7"), Wants: MustRatio("0"), Savings: MustRatio("0.3")},
			Month:  Month{2024, time.May},
		}
		for j := 0; j < 5; j++ {
			in.Expenses = append(in.Expenses, exp(2024, time.May, 1+j, rng.Int63n(2_000_000), Buckets()[rng.Intn(3)]))
		}
		f := Allocate(in)
		for _, b := range Buckets() {
			p := f.Bucket(b).PercentUsed
			if p < 0 || p > 100 {
				t.Fatalf("percent %v out of range for %s", p, b)
			}
		}
		if !f.Wants.Allocation.IsZero() || f.Wants.PercentUsed != 0 {
			t.Fatal("zero allocation must report 0 percent")
		}
	}
}

// With ratios summing to 1 each rounded part is off by at most half a cent,
// and the parts sum to a whole number of cents, so the total differs from
// the income by at most one cent.
func TestAllocationSumWithinOneCent(t *testing.T) {
	ratioSets := []Ratios{
		DefaultRatios(),
		{Needs: MustRatio("0.333"), Wants: MustRatio("0.333"), Savings: MustRatio("0.334")},
		{Needs: MustRatio("0.125"), Wants: MustRatio("0.375"), Savings: MustRatio("0.5")},
		{Needs: MustRatio("0.55"), Wants: MustRatio("0.25"), Savings: MustRatio("0.2")},
		{Needs: MustRatio("0.015"), Wants: MustRatio("0.005"), Savings: MustRatio("0.98")},
	}
	rng := rand.New(rand.NewSource(42))
	for _, r := range ratioSets {
		for i := 0; i < 2000; i++ {
			income := Money{Cents: rng.Int63n(10_000_000)}
			f := Allocate(AllocationInput{Income: income, Ratios: r, Month: Month{2024, time.January}})
			sum := f.Needs.Allocation.Add(f.Wants.Allocation).Add(f.Savings.Allocation)
			diff := sum.Sub(income).Cents
			if diff < -1 || diff > 1 {
				t.Fatalf("income %d ratios %v: allocations sum to %d", income.Cents, r, sum.Cents)
			}
		}
	}
}
