package csv

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"fiftythirty/internal/core"
)

var fixedNow = time.Date(2024, time.July, 9, 15, 0, 0, 0, time.UTC)

func newTestCodec(locale string) *Codec {
	return NewCodec(MustLocale(locale), WithClock(func() time.Time { return fixedNow }))
}

// createTempCSV creates a temporary CSV file with the given content.
func createTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expenses.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test CSV file: %v", err)
	}
	return path
}

func sampleExpenses() []core.Expense {
	return []core.Expense{
		{Date: core.NewDate(2024, time.March, 1), Amount: core.Money{Cents: 123456}, Category: "Housing", Description: "rent; March", Bucket: core.Needs},
		{Date: core.NewDate(2024, time.March, 2), Amount: core.Money{Cents: 5}, Category: "Restaurants", Description: `said "hi"`, Bucket: core.Wants},
		{Date: core.NewDate(2023, time.December, 31), Amount: core.Money{Cents: 0}, Category: "Emergency fund", Description: "line1\nline2", Bucket: core.Savings},
		{Date: core.NewDate(2024, time.January, 15), Amount: core.Money{Cents: 99999999}, Category: "Custom", Description: "", Bucket: ""},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, locale := range []string{"lt-LT", "en-US", "de-DE", "de-CH"} {
		c := newTestCodec(locale)
		var buf bytes.Buffer
		if err := c.Export(&buf, sampleExpenses()); err != nil {
			t.Fatalf("%s export: %v", locale, err)
		}
		res, err := c.Import(context.Background(), &buf)
		if err != nil {
			t.Fatalf("%s import: %v", locale, err)
		}
		if !reflect.DeepEqual(res.Expenses, sampleExpenses()) {
			t.Fatalf("%s round trip mismatch:\n got %v\nwant %v", locale, res.Expenses, sampleExpenses())
		}
		if res.Degraded != 0 || res.Skipped != 0 {
			t.Fatalf("%s: degraded=%d skipped=%d", locale, res.Degraded, res.Skipped)
		}
	}
}

func TestExportFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := newTestCodec("lt-LT").Export(&buf, sampleExpenses()[:2]); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(buf.String(), "\n")
	if lines[0] != "Date;Amount;Category;Description;BudgetBucket" {
		t.Fatalf("header %q", lines[0])
	}
	if lines[1] != "2024-03-01;1\u00a0234,56;Housing;\"rent; March\";50" {
		t.Fatalf("row 1 %q", lines[1])
	}
	if lines[2] != `2024-03-02;0,05;Restaurants;"said ""hi""";30` {
		t.Fatalf("row 2 %q", lines[2])
	}
	if strings.HasPrefix(buf.String(), "\xef\xbb\xbf") {
		t.Fatal("export must not write a BOM")
	}
}

func TestImportHeaderless(t *testing.T) {
	in := "2024-02-10;12,50;Food;groceries;50\n2024-02-11;3;Travel;;30\n"
	res, err := newTestCodec("lt-LT").Import(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expenses) != 2 {
		t.Fatalf("headerless file must keep its first row, got %d rows", len(res.Expenses))
	}
	if res.Expenses[0].Amount.Cents != 1250 || res.Expenses[1].Category != "Travel" || res.Expenses[1].Bucket != core.Wants {
		t.Fatalf("rows %v", res.Expenses)
	}
}

func TestImportHeaderlessWithColumnNameInRow(t *testing.T) {
	in := "2024-03-01;10,00;Food;amount;50\n2024-03-02;5,00;Food;x;50\n"
	res, err := newTestCodec("lt-LT").Import(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expenses) != 2 || res.Degraded != 0 {
		t.Fatalf("got %d rows, %d degraded", len(res.Expenses), res.Degraded)
	}
	first := res.Expenses[0]
	if first.Date != core.NewDate(2024, time.March, 1) || first.Amount.Cents != 1000 || first.Description != "amount" {
		t.Fatalf("first row %v", first)
	}
}

func TestHeaderDetection(t *testing.T) {
	cases := []struct {
		row    []string
		header bool
	}{
		{[]string{"Date", "Amount", "Category", "Description", "BudgetBucket"}, true},
		{[]string{"amount", "category", "bucket"}, true},
		{[]string{"Date", "Amount"}, false},
		{[]string{"notes", "amount", "x", "description"}, false},
		{[]string{"2024-03-01", "amount", "category", "description"}, false},
	}
	for _, tc := range cases {
		if _, ok := headerColumns(tc.row); ok != tc.header {
			t.Errorf("%q: header=%v, want %v", tc.row, ok, tc.header)
		}
	}
}

func TestRoundTripNormalizesLineBreaks(t *testing.T) {
	c := newTestCodec("lt-LT")
	in := []core.Expense{
		{Date: core.NewDate(2024, time.March, 1), Amount: core.Money{Cents: 100}, Category: "Food", Description: "a\r\nb", Bucket: core.Needs},
		{Date: core.NewDate(2024, time.March, 2), Amount: core.Money{Cents: 200}, Category: "Food", Description: "x\ry", Bucket: core.Needs},
	}
	var buf bytes.Buffer
	if err := c.Export(&buf, in); err != nil {
		t.Fatal(err)
	}
	first, err := c.Import(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Expenses) != 2 || first.Expenses[0].Description != "a\nb" || first.Expenses[1].Description != "x\ry" {
		t.Fatalf("descriptions %q", []string{first.Expenses[0].Description, first.Expenses[1].Description})
	}

	buf.Reset()
	if err := c.Export(&buf, first.Expenses); err != nil {
		t.Fatal(err)
	}
	second, err := c.Import(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(second.Expenses, first.Expenses) {
		t.Fatalf("normalized expenses changed on second round trip:\n got %v\nwant %v", second.Expenses, first.Expenses)
	}
}

func TestImportRejectsHugeAmounts(t *testing.T) {
	in := "2024-03-01;1e30;Food;x;50\n2024-03-02;99999999999999999999999;Food;y;50\n"
	res, err := newTestCodec("en-US").Import(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expenses) != 2 || res.Degraded != 2 {
		t.Fatalf("got %d rows, %d degraded", len(res.Expenses), res.Degraded)
	}
	for _, e := range res.Expenses {
		if !e.Amount.IsZero() {
			t.Fatalf("out-of-range amount kept: %v", e.Amount)
		}
	}
}

func TestImportReorderedHeaderAndBOM(t *testing.T) {
	in := "\xef\xbb\xbfCategory;AMOUNT;date;BudgetBucket\nFood;1 000,10;2024-05-06;needs\n"
	res, err := newTestCodec("lt-LT").Import(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := core.Expense{Date: core.NewDate(2024, time.May, 6), Amount: core.Money{Cents: 100010}, Category: "Food", Bucket: core.Needs}
	if len(res.Expenses) != 1 || res.Expenses[0] != want {
		t.Fatalf("got %v", res.Expenses)
	}
}

func TestImportBadRowsDegrade(t *testing.T) {
	in := "Date;Amount;Category;Description;BudgetBucket\n" +
		"not-a-date;12,00;Food;x;50\n" +
		"2024-01-01;lots;Food;y;50\n" +
		"\n" +
		"2024-01-02\n"
	res, err := newTestCodec("lt-LT").Import(context.Background(), strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Expenses) != 3 || res.Degraded != 3 {
		t.Fatalf("expected 3 rows, 3 degraded; got %d rows, %d degraded", len(res.Expenses), res.Degraded)
	}
	if res.Expenses[0].Date != core.DateOf(fixedNow) || res.Expenses[0].Amount.Cents != 1200 {
		t.Fatalf("bad date row %v", res.Expenses[0])
	}
	if !res.Expenses[1].Amount.IsZero() || res.Expenses[1].Description != "y" {
		t.Fatalf("bad amount row %v", res.Expenses[1])
	}
	short := res.Expenses[2]
	if short.Date != core.NewDate(2024, time.January, 2) || short.Category != "" || short.Bucket != "" {
		t.Fatalf("short row %v", short)
	}
}

func TestImportFileErrors(t *testing.T) {
	c := newTestCodec("lt-LT")
	_, err := c.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, ErrOpenFile) {
		t.Fatalf("expected ErrOpenFile, got %v", err)
	}
	err = c.ExportFile(filepath.Join(t.TempDir(), "no", "such", "dir", "out.csv"), sampleExpenses())
	if !errors.Is(err, ErrWriteFile) {
		t.Fatalf("expected ErrWriteFile, got %v", err)
	}
}

func TestFileRoundTrip(t *testing.T) {
	c := newTestCodec("lt-LT")
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := c.ExportFile(path, sampleExpenses()); err != nil {
		t.Fatal(err)
	}
	res, err := c.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Expenses, sampleExpenses()) {
		t.Fatalf("got %v", res.Expenses)
	}

	res, err = c.ImportFile(context.Background(), createTempCSV(t, ""))
	if err != nil || len(res.Expenses) != 0 {
		t.Fatalf("empty file: %v %v", res, err)
	}
}

func TestParseLocale(t *testing.T) {
	cases := []struct {
		tag    string
		dec    rune
		groups []rune
	}{
		{"lt-LT", ',', []rune{'\u00a0'}},
		{"en-US", '.', []rune{','}},
		{"de-DE", ',', []rune{'.'}},
		{"de-CH", '.', []rune{'\u2019', '\''}},
		{"fr-FR", ',', []rune{'\u202f', '\u00a0'}},
		{"ja", '.', []rune{','}},
	}
	for _, tc := range cases {
		l, err := ParseLocale(tc.tag)
		if err != nil {
			t.Errorf("%s: %v", tc.tag, err)
			continue
		}
		if l.Format.Decimal != tc.dec || !slices.Contains(tc.groups, l.Format.Group) {
			t.Errorf("%s: got decimal %q group %q", tc.tag, l.Format.Decimal, l.Format.Group)
		}
	}
	if _, err := ParseLocale("not a tag!"); err == nil {
		t.Fatal("expected error for invalid tag")
	}
}

func TestRoundTripCLDRLocales(t *testing.T) {
	for _, locale := range []string{"fr-FR", "es-ES", "pt-BR", "sv-SE", "en-IN", "ar-EG"} {
		c := newTestCodec(locale)
		var buf bytes.Buffer
		if err := c.Export(&buf, sampleExpenses()); err != nil {
			t.Fatalf("%s export: %v", locale, err)
		}
		res, err := c.Import(context.Background(), &buf)
		if err != nil {
			t.Fatalf("%s import: %v", locale, err)
		}
		if !reflect.DeepEqual(res.Expenses, sampleExpenses()) {
			t.Fatalf("%s round trip mismatch:\n got %v\nwant %v", locale, res.Expenses, sampleExpenses())
		}
	}
}
