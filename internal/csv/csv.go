// Package csv reads and writes the semicolon-separated expense exchange
// format: Date;Amount;Category;Description;BudgetBucket.
package csv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fiftythirty/internal/core"
	"fiftythirty/internal/log"
)

const (
	delimiter  = ';'
	dateLayout = "2006-01-02"
)

// Header is the column order written on export and assumed for headerless
// input.
var Header = []string{"Date", "Amount", "Category", "Description", "BudgetBucket"}

var (
	ErrOpenFile  = errors.New("cannot open CSV file")
	ErrWriteFile = errors.New("cannot write CSV file")
)

// extra layouts tried after dateLayout before the row falls back to now.
var fallbackDateLayouts = []string{"2006.01.02", "2006/01/02", "02.01.2006", "2006-01-02 15:04:05"}

// Codec converts expenses to and from CSV for one locale.
type Codec struct {
	locale Locale
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Codec)

// WithClock sets the clock used for rows whose date cannot be parsed.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

func NewCodec(locale Locale, opts ...Option) *Codec {
	c := &Codec{locale: locale, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	c.logger = log.OrDiscard(c.logger)
	return c
}

func (c *Codec) Locale() Locale { return c.locale }

// ImportResult is what Import recovered from a file.
type ImportResult struct {
	Expenses []core.Expense
	// Degraded counts rows where a date or amount was replaced by its default.
	Degraded int
	// Skipped counts rows the CSV reader could not split at all.
	Skipped int
}

// Export writes the header and one row per expense.
func (c *Codec) Export(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, e := range expenses {
		row := []string{
			e.Date.Format(dateLayout),
			e.Amount.Format(c.locale.Format),
			e.Category,
			e.Description,
			string(e.Bucket),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFile writes expenses to path. Any failure wraps ErrWriteFile.
func (c *Codec) ExportFile(path string, expenses []core.Expense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFile, path, err)
	}
	bw := bufio.NewWriter(f)
	if err := c.Export(bw, expenses); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrWriteFile, path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %s: %v", ErrWriteFile, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFile, path, err)
	}
	c.logger.Info("Expenses exported", log.FieldFile, path, log.FieldCount, len(expenses))
	return nil
}

// ImportFile reads expenses from path. Failing to open or read the file
// wraps ErrOpenFile; bad rows never fail the import.
func (c *Codec) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %s: %v", ErrOpenFile, path, err)
	}
	defer f.Close()
	res, err := c.Import(ctx, f)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %s: %v", ErrOpenFile, path, err)
	}
	return res, nil
}

// Import parses CSV from r. The first line is a header only if one of its
// fields names a known column; otherwise every line is data in the fixed
// column order. A bad date becomes today and a bad amount becomes zero.
func (c *Codec) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte("\xef\xbb\xbf")) {
		_, _ = br.Discard(3)
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	idx := defaultColumns()
	res := ImportResult{Expenses: []core.Expense{}}
	first := true
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return ImportResult{}, err
		}
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			c.logger.WarnContext(ctx, "Skipping unreadable CSV row", "line", perr.Line, log.FieldError, err)
			res.Skipped++
			first = false
			continue
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("read csv: %w", err)
		}
		if first {
			first = false
			if h, ok := headerColumns(record); ok {
				idx = h
				continue
			}
		}
		if isBlank(record) {
			continue
		}
		e, degraded := c.parseRow(record, idx)
		if degraded {
			res.Degraded++
			c.logger.WarnContext(ctx, "CSV row had unparseable fields, defaults used", "row", line)
		}
		res.Expenses = append(res.Expenses, e)
	}
	c.logger.InfoContext(ctx, "Expenses imported", log.FieldCount, len(res.Expenses), "degraded", res.Degraded, "skipped", res.Skipped)
	return res, nil
}

type columns struct {
	date, amount, category, description, bucket int
}

func defaultColumns() columns {
	return columns{0, 1, 2, 3, 4}
}

// minHeaderNames is how many known column names a first row needs to be
// taken as a header.
const minHeaderNames = 3

// headerColumns maps known header names to positions. Columns the header
// does not name are read as empty. A row holding a date is always data.
func headerColumns(record []string) (columns, bool) {
	idx := columns{-1, -1, -1, -1, -1}
	found := 0
	for i, f := range record {
		if _, ok := parseDate(f); ok {
			return columns{}, false
		}
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "date":
			idx.date = i
		case "amount":
			idx.amount = i
		case "category":
			idx.category = i
		case "description":
			idx.description = i
		case "budgetbucket", "bucket":
			idx.bucket = i
		default:
			continue
		}
		found++
	}
	return idx, found >= minHeaderNames
}

func (c *Codec) parseRow(record []string, idx columns) (core.Expense, bool) {
	degraded := false

	date, ok := parseDate(field(record, idx.date))
	if !ok {
		date = core.DateOf(c.now())
		degraded = true
	}
	amount, ok := c.parseAmount(field(record, idx.amount))
	if !ok {
		degraded = true
	}

	bucket := core.Bucket(strings.TrimSpace(field(record, idx.bucket)))
	if !bucket.Valid() {
		if b, err := core.ParseBucket(string(bucket)); err == nil {
			bucket = b
		}
	}
	return core.Expense{
		Date:        date,
		Amount:      amount,
		Category:    core.NormalizeNewlines(field(record, idx.category)),
		Description: core.NormalizeNewlines(field(record, idx.description)),
		Bucket:      bucket,
	}, degraded
}

func parseDate(s string) (core.Date, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return core.DateOf(t), true
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), true
		}
	}
	if d, err := core.ParseDate(s); err == nil && !d.IsZero() {
		return d, true
	}
	return core.Date{}, false
}

// parseAmount reads an amount in the codec's locale, falling back to the
// lenient input parser. Unparseable amounts are zero.
func (c *Codec) parseAmount(s string) (core.Money, bool) {
	f := c.locale.Format
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == f.Group, r == ' ', r == nbsp, r == '\u202f', r == '\t':
			return -1
		case r == f.Decimal:
			return '.'
		}
		return r
	}, strings.TrimSpace(s))
	if cleaned != "" {
		if d, err := decimal.NewFromString(cleaned); err == nil {
			m, err := core.NewMoney(d)
			return m, err == nil
		}
	}
	if m, err := core.ParseAmount(s); err == nil {
		return m, true
	}
	return core.Money{}, false
}

func field(record []string, i int) string {
	if i >= 0 && i < len(record) {
		return record[i]
	}
	return ""
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
