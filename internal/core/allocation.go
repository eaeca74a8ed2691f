package core

import "github.com/shopspring/decimal"

// BucketFigures holds the computed figures of one bucket for one month.
//
// Spent is the raw sum of the bucket's expenses. EffectiveSpent equals Spent
// for Needs and Wants; for Savings it also includes the overage of the other
// two buckets. Remaining may be negative.
type BucketFigures struct {
	Bucket         Bucket
	Allocation     Money
	Spent          Money
	EffectiveSpent Money
	Overage        Money
	Remaining      Money
	PercentUsed    float64
}

// MonthFigures is the result of Allocate. When Available is false no income
// was set for the month: only the Spent fields carry meaning and every
// allocation, remaining and percentage is to be reported as unavailable.
type MonthFigures struct {
	Month     Month
	Income    Money
	Available bool
	Needs     BucketFigures
	Wants     BucketFigures
	Savings   BucketFigures
	TotalOver Money
	Count     int
}

// AllocationInput is everything the engine looks at.
type AllocationInput struct {
	Income   Money
	Ratios   Ratios
	Expenses []Expense
	Month    Month
}

// Bucket returns the figures of b.
func (f MonthFigures) Bucket(b Bucket) BucketFigures {
	switch b {
	case Wants:
		return f.Wants
	case Savings:
		return f.Savings
	default:
		return f.Needs
	}
}

// Overspent reports whether Needs or Wants went over their allocation.
func (f MonthFigures) Overspent() bool {
	return f.Available && f.TotalOver.IsPositive()
}

// SavingsNegative reports whether the overage pushed Savings below zero.
func (f MonthFigures) SavingsNegative() bool {
	return f.Available && f.Savings.Remaining.IsNegative()
}

var hundred = decimal.NewFromInt(100)

// Allocate computes the 50/30/20 figures of in.Month. It is a pure function.
//
// Expenses outside the month, and expenses with a bucket tag other than
// "50", "30" or "20", are ignored. Each allocation is income*ratio rounded
// to the cent with banker's rounding, so with ratios summing to 1 the three
// allocations add up to the income within one cent.
func Allocate(in AllocationInput) MonthFigures {
	f := MonthFigures{
		Month:   in.Month,
		Income:  in.Income,
		Needs:   BucketFigures{Bucket: Needs},
		Wants:   BucketFigures{Bucket: Wants},
		Savings: BucketFigures{Bucket: Savings},
	}

	for _, e := range in.Expenses {
		if !in.Month.Contains(e.Date) {
			continue
		}
		var bf *BucketFigures
		switch e.Bucket {
		case Needs:
			bf = &f.Needs
		case Wants:
			bf = &f.Wants
		case Savings:
			bf = &f.Savings
		default:
			continue
		}
		bf.Spent = bf.Spent.Add(e.Amount)
		f.Count++
	}
	for _, bf := range []*BucketFigures{&f.Needs, &f.Wants, &f.Savings} {
		bf.EffectiveSpent = bf.Spent
	}

	if !in.Income.IsPositive() {
		return f
	}
	f.Available = true

	for _, bf := range []*BucketFigures{&f.Needs, &f.Wants} {
		bf.Allocation = in.Income.MulRatio(in.Ratios.For(bf.Bucket))
		bf.Overage = MaxMoney(Money{}, bf.Spent.Sub(bf.Allocation))
		bf.Remaining = bf.Allocation.Sub(bf.Spent)
		bf.PercentUsed = percentUsed(bf.Spent, bf.Allocation)
		f.TotalOver = f.TotalOver.Add(bf.Overage)
	}

	s := &f.Savings
	s.Allocation = in.Income.MulRatio(in.Ratios.Savings)
	s.EffectiveSpent = s.Spent.Add(f.TotalOver)
	s.Remaining = s.Allocation.Sub(s.EffectiveSpent)
	s.PercentUsed = percentUsed(s.EffectiveSpent, s.Allocation)

	return f
}

// percentUsed is spent/allocation*100 clamped to [0,100], and 0 when the
// allocation is zero.
func percentUsed(spent, allocation Money) float64 {
	if allocation.IsZero() {
		return 0
	}
	p := spent.Decimal().Div(allocation.Decimal()).Mul(hundred)
	switch {
	case p.GreaterThan(hundred):
		return 100
	case p.IsNegative():
		return 0
	}
	return p.Round(2).InexactFloat64()
}
