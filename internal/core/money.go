// Package core provides money parsing and handling utilities.
//
// This file contains the Money type, arithmetic on cents, ratio application
// and parsing of user-entered amounts in either decimal convention.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. All arithmetic stays in int64 cents; ratio
// multiplication goes through decimal so no binary floating point is involved.
type Money struct {
	Cents int64
}

// NumberFormat describes how an amount is written for a locale.
// Group == 0 disables digit grouping.
type NumberFormat struct {
	Decimal rune
	Group   rune
}

// InvariantFormat writes amounts as 1234.56.
var InvariantFormat = NumberFormat{Decimal: '.'}

// MaxCents bounds every amount read from input or storage:
// 999 999 999.99 in either direction.
const MaxCents = 99_999_999_999

var maxAmount = decimal.New(MaxCents, -2)

// NewMoney converts a decimal amount to cents, rounding half away from zero.
// Amounts beyond MaxCents after rounding are ErrInvalidAmount.
func NewMoney(d decimal.Decimal) (Money, error) {
	r := d.Round(2)
	if r.Abs().GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: r.Shift(2).IntPart()}, nil
}

// Decimal returns the amount as a decimal with two fraction digits.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

// Cmp returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	switch {
	case m.Cents < o.Cents:
		return -1
	case m.Cents > o.Cents:
		return 1
	default:
		return 0
	}
}

func (m Money) IsZero() bool     { return m.Cents == 0 }
func (m Money) IsNegative() bool { return m.Cents < 0 }
func (m Money) IsPositive() bool { return m.Cents > 0 }

// MulRatio applies a ratio and rounds the result to the cent using banker's
// rounding, the same mode used for every allocation total.
func (m Money) MulRatio(r Ratio) Money {
	product := m.Decimal().Mul(r.Decimal()).RoundBank(2)
	return Money{Cents: product.Shift(2).IntPart()}
}

// MaxMoney returns the larger of a and b.
func MaxMoney(a, b Money) Money {
	if a.Cents >= b.Cents {
		return a
	}
	return b
}

// String renders the amount with a dot and two fraction digits, e.g. "-12.05".
func (m Money) String() string {
	return m.Format(InvariantFormat)
}

// Format renders the amount with two fraction digits using the given separators.
func (m Money) Format(f NumberFormat) string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	intPart := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if f.Group != 0 && len(intPart) > 3 {
		lead := len(intPart) % 3
		if lead > 0 {
			b.WriteString(intPart[:lead])
		}
		for i := lead; i < len(intPart); i += 3 {
			if i > 0 {
				b.WriteRune(f.Group)
			}
			b.WriteString(intPart[i : i+3])
		}
	} else {
		b.WriteString(intPart)
	}
	dec := f.Decimal
	if dec == 0 {
		dec = '.'
	}
	b.WriteRune(dec)
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	return b.String()
}

// MarshalJSON writes the amount as a plain JSON number with two fraction digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number (or a quoted number) and rounds it to
// the cent. Values beyond MaxCents are rejected.
func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		m.Cents = 0
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	v, err := NewMoney(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseAmount converts user input to Money with half-up rounding on the third
// fraction digit.
//
// Both decimal conventions are accepted. Spaces (including no-break spaces)
// are ignored. When both ',' and '.' occur, the last one is the decimal
// separator and the others are grouping; a separator that occurs more than
// once on its own is grouping. Signs are rejected. Zero is a valid amount.
// At most nine integer digits are accepted (see MaxCents).
//
// Examples:
//
//	ParseAmount("12,50")    -> 1250
//	ParseAmount("1 234,56") -> 123456
//	ParseAmount("1,234.56") -> 123456
//	ParseAmount("12.345")   -> 1235 (half-up)
func ParseAmount(s string) (Money, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return Money{}, ErrInvalidAmount
	}
	s, ok := normalizeSeparators(s)
	if !ok {
		return Money{}, ErrInvalidAmount
	}

	// Split into integer and fractional part
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Money{}, ErrInvalidAmount
		}
	}
	intPart = strings.TrimLeft(intPart, "0")
	if len(intPart) > 9 {
		return Money{}, ErrInvalidAmount
	}
	var iv int64
	if intPart != "" {
		v, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return Money{}, ErrInvalidAmount
		}
		iv = v
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents > MaxCents {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents}, nil
}

// normalizeSeparators rewrites s so that '.' is the only (optional) decimal
// separator and grouping characters are gone. Grouping must come in
// blocks of three digits; otherwise ok is false.
func normalizeSeparators(s string) (out string, ok bool) {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return ungroup(s[:lastComma], '.', s[lastComma+1:])
		}
		return ungroup(s[:lastDot], ',', s[lastDot+1:])
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return ungroup(s, ',', "")
		}
		return strings.Replace(s, ",", ".", 1), true
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return ungroup(s, '.', "")
		}
	}
	return s, true
}

// ungroup removes the group separator from intPart and appends frac, if any,
// after a '.'.
func ungroup(intPart string, group byte, frac string) (string, bool) {
	blocks := strings.Split(intPart, string(group))
	if len(blocks[0]) == 0 || len(blocks[0]) > 3 && len(blocks) > 1 {
		return "", false
	}
	for _, b := range blocks[1:] {
		if len(b) != 3 {
			return "", false
		}
	}
	out := strings.Join(blocks, "")
	if frac != "" {
		out += "." + frac
	}
	return out, true
}
