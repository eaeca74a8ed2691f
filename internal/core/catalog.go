package core

import "strings"

// DefaultCategory replaces an empty category on input and in reports.
const DefaultCategory = "Other"

// CategoryEntry is one row of the fixed category catalog.
type CategoryEntry struct {
	Name   string
	Bucket Bucket
}

var catalog = []CategoryEntry{
	{"Housing", Needs},
	{"Food", Needs},
	{"Transport", Needs},
	{"Health", Needs},
	{"Education", Needs},
	{"Essential clothing", Needs},
	{"Taxes", Needs},

	{"Entertainment", Wants},
	{"Subscriptions", Wants},
	{"Travel", Wants},
	{"Clothing", Wants},
	{"Restaurants", Wants},
	{"Beauty", Wants},
	{"Gifts", Wants},
	{"Technology", Wants},

	{"Savings", Savings},
	{"Investments", Savings},
	{"Debt repayment", Savings},
	{"Emergency fund", Savings},
}

// Catalog returns a copy of the category catalog in display order.
func Catalog() []CategoryEntry {
	out := make([]CategoryEntry, len(catalog))
	copy(out, catalog)
	return out
}

// BucketForCategory looks up the predefined bucket of a category name,
// ignoring case and surrounding spaces.
func BucketForCategory(name string) (Bucket, bool) {
	name = strings.TrimSpace(name)
	for _, e := range catalog {
		if strings.EqualFold(e.Name, name) {
			return e.Bucket, true
		}
	}
	return "", false
}

// NormalizeCategory trims the name, maps catalog entries to their canonical
// spelling and turns an empty name into DefaultCategory.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultCategory
	}
	for _, e := range catalog {
		if strings.EqualFold(e.Name, name) {
			return e.Name
		}
	}
	return name
}

// NormalizeNewlines turns CRLF line breaks into LF. The CSV reader does the
// same inside quoted fields, so stored text survives an export and import.
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
