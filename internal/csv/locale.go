package csv

import (
	"fmt"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"fiftythirty/internal/core"
)

// Locale controls how amounts are written to and read from CSV.
type Locale struct {
	Tag    language.Tag
	Format core.NumberFormat
}

const nbsp = '\u00a0'

// fallbackFormat is used when CLDR yields no usable separators.
var fallbackFormat = core.NumberFormat{Decimal: '.', Group: ','}

// DefaultLocale is lt-LT: "1 234,56" with a no-break space.
var DefaultLocale = MustLocale("lt-LT")

// ParseLocale resolves a BCP-47 tag such as "lt-LT" or "en-US". The decimal
// and group separators come from the CLDR data in golang.org/x/text.
func ParseLocale(s string) (Locale, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return Locale{}, fmt.Errorf("parse locale %q: %w", s, err)
	}
	return Locale{Tag: tag, Format: numberFormat(tag)}, nil
}

// numberFormat renders 1234567.5 for tag and reads the separators back.
// Digits (in any script) and invisible format marks are skipped; the last
// remaining rune is the decimal separator and the first the group.
func numberFormat(tag language.Tag) core.NumberFormat {
	p := message.NewPrinter(tag)
	s := p.Sprint(number.Decimal(1234567.5, number.MinFractionDigits(1), number.MaxFractionDigits(1)))

	var seps []rune
	for _, r := range s {
		if unicode.IsDigit(r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		seps = append(seps, r)
	}
	if len(seps) == 0 {
		return fallbackFormat
	}
	f := core.NumberFormat{Decimal: seps[len(seps)-1]}
	if len(seps) > 1 && seps[0] != f.Decimal {
		f.Group = seps[0]
	}
	return f
}

func MustLocale(s string) Locale {
	l, err := ParseLocale(s)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Locale) String() string { return l.Tag.String() }
