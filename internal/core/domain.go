package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Needs   Bucket = "50"
	Wants   Bucket = "30"
	Savings Bucket = "20"
)

type (
	// Bucket is the budget bucket tag stored on an expense.
	Bucket string

	// Date is a calendar date; the time-of-day is always midnight UTC.
	Date struct {
		time.Time
	}

	// Ratio is a non-negative fraction of income assigned to a bucket.
	Ratio struct {
		d decimal.Decimal
	}

	Ratios struct {
		Needs   Ratio
		Wants   Ratio
		Savings Ratio
	}

	Expense struct {
		Date        Date
		Amount      Money
		Category    string
		Description string
		Bucket      Bucket
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidRatio    = errors.New("invalid ratio")
	ErrEmptyCategory   = errors.New("empty category")
	ErrUnknownBucket   = errors.New("unknown budget bucket")
	ErrDescriptionSize = errors.New("description too long (max 500 characters)")
)

// Buckets lists the three buckets in display order.
func Buckets() []Bucket {
	return []Bucket{Needs, Wants, Savings}
}

// Valid reports whether b is one of the three known tags.
func (b Bucket) Valid() bool {
	switch b {
	case Needs, Wants, Savings:
		return true
	default:
		return false
	}
}

// Label returns the human name of the bucket.
func (b Bucket) Label() string {
	switch b {
	case Needs:
		return "Needs"
	case Wants:
		return "Wants"
	case Savings:
		return "Savings"
	default:
		return ""
	}
}

// ParseBucket accepts a tag ("50") or a label ("needs"), case-insensitively.
func ParseBucket(s string) (Bucket, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "50", "needs":
		return Needs, nil
	case "30", "wants":
		return Wants, nil
	case "20", "savings":
		return Savings, nil
	default:
		return "", ErrUnknownBucket
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day and location of t, keeping its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// dateLayouts are accepted when decoding dates; the first one is written.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02",
}

// MarshalJSON writes the date as a zone-less ISO-8601 timestamp.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayouts[0]) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDate parses an ISO-8601 date or timestamp and keeps the calendar date.
// The zero time (0001-01-01) yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() <= 1 && t.Month() == time.January && t.Day() == 1 {
				return Date{}, nil
			}
			return DateOf(t), nil
		}
	}
	return Date{}, ErrInvalidDate
}

// NewRatio parses a decimal fraction such as "0.5".
func NewRatio(s string) (Ratio, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.IsNegative() {
		return Ratio{}, ErrInvalidRatio
	}
	return Ratio{d: d}, nil
}

// MustRatio is NewRatio for constants.
func MustRatio(s string) Ratio {
	r, err := NewRatio(s)
	if err != nil {
		panic(err)
	}
	return r
}

func RatioFromDecimal(d decimal.Decimal) Ratio { return Ratio{d: d} }

func (r Ratio) Decimal() decimal.Decimal { return r.d }

func (r Ratio) String() string { return r.d.String() }

// MarshalJSON writes the ratio as an unquoted JSON number.
func (r Ratio) MarshalJSON() ([]byte, error) {
	return []byte(r.d.String()), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidRatio
	}
	r.d = d
	return nil
}

// DefaultRatios is the 50/30/20 split.
func DefaultRatios() Ratios {
	return Ratios{
		Needs:   MustRatio("0.50"),
		Wants:   MustRatio("0.30"),
		Savings: MustRatio("0.20"),
	}
}

// For returns the ratio of bucket b; unknown buckets get zero.
func (r Ratios) For(b Bucket) Ratio {
	switch b {
	case Needs:
		return r.Needs
	case Wants:
		return r.Wants
	case Savings:
		return r.Savings
	default:
		return Ratio{}
	}
}

// Sum returns r50 + r30 + r20. Nothing in the engine requires it to be 1.
func (r Ratios) Sum() decimal.Decimal {
	return r.Needs.d.Add(r.Wants.d).Add(r.Savings.d)
}

// Validate only checks that no ratio is negative.
func (r Ratios) Validate() error {
	for _, b := range Buckets() {
		if r.For(b).d.IsNegative() {
			return ErrInvalidRatio
		}
	}
	return nil
}

// IsZero reports whether all three ratios are zero, as in a snapshot that
// never stored them.
func (r Ratios) IsZero() bool {
	return r.Needs.d.IsZero() && r.Wants.d.IsZero() && r.Savings.d.IsZero()
}

// Validate checks an expense built from user input.
func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if len(e.Description) > 500 {
		return ErrDescriptionSize
	}
	if !e.Bucket.Valid() {
		return ErrUnknownBucket
	}
	return nil
}
