package parser

import (
	"strings"

	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
)

// Kind discriminates what a record persists as
type Kind string

const (
	KindPlan    Kind = "plan"
	KindExpense Kind = "expense"
	KindUnknown Kind = "unknown"
)

// Layouts a file can be read in
const (
	LayoutRows  = "rows"
	LayoutTree  = "tree"
	LayoutPivot = "pivot"
)

// Record is one normalized ingestion record. Fields holds raw cell values keyed
// by the source column name; the alias resolver maps them onto canonical fields.
type Record struct {
	Line    int // 1-based source line, or entry index for JSON
	Kind    Kind
	RawType string
	Fields  map[string]any
	// Problem is set when the source entry could not be read as a record at all
	Problem string
}

// Result is everything a parser read from one upload
type Result struct {
	Format      string // csv, json, xlsx, xls
	Layout      string
	Headers     []string
	Fingerprint string
	Records     []Record
}

// KindOf maps the type discriminator onto a Kind. Blank means plan.
func KindOf(raw string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "plan", "planned", "planlanan":
		return KindPlan, true
	case "expense", "harcama", "gider":
		return KindExpense, true
	default:
		return KindUnknown, false
	}
}

func newRecord(aliases *alias.Resolver, line int, fields map[string]any) Record {
	rec := Record{Line: line, Fields: fields}
	rec.RawType = aliases.String(fields, alias.FieldType)
	rec.Kind, _ = KindOf(rec.RawType)
	return rec
}

// rowsToRecords turns a header plus data rows into records. Rows whose cells
// are all blank produce nothing. firstLine is the source line of rows[0].
func rowsToRecords(aliases *alias.Resolver, headers []string, rows [][]string, firstLine int, convert func(field, value string) any) []Record {
	var records []Record
	for i, row := range rows {
		fields := make(map[string]any, len(headers))
		blank := true
		for j, h := range headers {
			if h == "" || j >= len(row) {
				continue
			}
			value := strings.TrimSpace(row[j])
			if value != "" {
				blank = false
			}
			if existing, ok := fields[h]; ok && !alias.IsEmpty(existing) {
				continue
			}
			if convert != nil {
				fields[h] = convert(h, value)
			} else {
				fields[h] = value
			}
		}
		if blank {
			continue
		}
		records = append(records, newRecord(aliases, firstLine+i, fields))
	}
	return records
}

func trimHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.TrimSpace(h)
	}
	return out
}
