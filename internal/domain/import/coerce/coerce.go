// Package coerce turns raw cell values into typed import fields. Every failure
// is a *budget.ValidationError naming the field, so callers can skip the record
// without inspecting the cause.
package coerce

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
)

// currencyMarks are stripped from numeric strings before parsing
var currencyMarks = []string{"₺", "TL", "TRY", "$", "€", "EUR", "USD", " ", "\u00a0"}

// Decimal parses a typed number or a locale-formatted numeric string.
//
// When a string carries both '.' and ',', the separator appearing last is the
// decimal point and the other groups thousands, so "1.234,56" and "1,234.56"
// are both 1234.56. A single ',' is the decimal point. A separator repeated
// more than once with no other separator present groups thousands.
func Decimal(field string, raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, budget.NewValidationError(field, "is required")
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int32:
		return decimal.NewFromInt(int64(v)), nil
	case json.Number:
		return parseDecimalString(field, v.String())
	case string:
		return parseDecimalString(field, v)
	case bool:
		return decimal.Zero, budget.NewValidationError(field, "expected a number, got a boolean")
	default:
		return parseDecimalString(field, fmt.Sprint(v))
	}
}

func parseDecimalString(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, budget.NewValidationError(field, "is required")
	}
	for _, mark := range currencyMarks {
		s = strings.ReplaceAll(s, mark, "")
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		s = strings.Replace(s, ",", ".", 1)
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, budget.NewValidationError(field, "%q is not a number", s)
	}
	return d, nil
}

// NonNegative is Decimal that rejects values below zero
func NonNegative(field string, raw any) (decimal.Decimal, error) {
	d, err := Decimal(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, budget.NewValidationError(field, "must not be negative, got %s", d.String())
	}
	return d, nil
}

// OptionalNonNegative returns fallback when raw is absent or blank
func OptionalNonNegative(field string, raw any, fallback decimal.Decimal) (decimal.Decimal, error) {
	if isBlank(raw) {
		return fallback, nil
	}
	return NonNegative(field, raw)
}

// Int parses a whole number within [min, max]
func Int(field string, raw any, min, max int) (int, error) {
	d, err := Decimal(field, raw)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, budget.NewValidationError(field, "%s is not a whole number", d.String())
	}
	if d.LessThan(decimal.NewFromInt(int64(min))) || d.GreaterThan(decimal.NewFromInt(int64(max))) {
		return 0, budget.NewValidationError(field, "%s is out of range %d-%d", d.String(), min, max)
	}
	return int(d.IntPart()), nil
}

// Year parses a calendar year
func Year(raw any) (int, error) {
	return Int("year", raw, 1900, 9999)
}

// Month parses a month number 1-12
func Month(raw any) (int, error) {
	return Int("month", raw, 1, 12)
}

var dateLayouts = []string{"2006-01-02", "02.01.2006"}

// Date parses native times, ISO dates (a trailing time-of-day is ignored)
// and DD.MM.YYYY. Anything else fails.
func Date(field string, raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, budget.NewValidationError(field, "is required")
	case time.Time:
		return truncateDay(v), nil
	case *time.Time:
		if v == nil {
			return time.Time{}, budget.NewValidationError(field, "is required")
		}
		return truncateDay(*v), nil
	}

	s := strings.TrimSpace(fmt.Sprint(raw))
	if s == "" {
		return time.Time{}, budget.NewValidationError(field, "is required")
	}
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, budget.NewValidationError(field, "%q is not YYYY-MM-DD or DD.MM.YYYY", s)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bool is true only for a boolean true or the string "true" in any case
func Bool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	default:
		return false
	}
}

func isBlank(raw any) bool {
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
