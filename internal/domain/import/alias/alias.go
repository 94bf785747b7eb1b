// Package alias maps free-form column names from uploaded files onto the
// canonical import fields. Matching ignores case and every non-alphanumeric
// rune, so "Budget-Code", "budget code" and "BUDGETCODE" are the same key.
package alias

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Canonical import fields
const (
	FieldType         = "type"
	FieldBudgetCode   = "budget_code"
	FieldBudgetName   = "budget_name"
	FieldScenario     = "scenario"
	FieldYear         = "year"
	FieldMonth        = "month"
	FieldAmount       = "amount"
	FieldDate         = "date"
	FieldQuantity     = "quantity"
	FieldUnitPrice    = "unit_price"
	FieldVendor       = "vendor"
	FieldDescription  = "description"
	FieldOutOfBudget  = "out_of_budget"
	FieldMapAttribute = "map_attribute"
	FieldCostType     = "capex_opex"
	FieldAssetType    = "asset_type"
	FieldDepartment   = "department"
	FieldStatus       = "status"
)

// defaultTable lists the accepted spellings per canonical field. The canonical
// name is always implied and need not be repeated.
var defaultTable = map[string][]string{
	FieldType:         {"tip", "tür", "tur", "kayıt tipi", "record type", "entry type"},
	FieldBudgetCode:   {"code", "kod", "budget code", "bütçe kodu", "kalem kodu", "item code"},
	FieldBudgetName:   {"name", "budget name", "bütçe adı", "kalem", "kalem adı", "item name", "item"},
	FieldScenario:     {"senaryo", "scenario name"},
	FieldYear:         {"yıl", "yil"},
	FieldMonth:        {"ay"},
	FieldAmount:       {"tutar", "miktar tutar", "value", "toplam tutar"},
	FieldDate:         {"tarih", "expense date", "harcama tarihi"},
	FieldQuantity:     {"qty", "adet", "miktar"},
	FieldUnitPrice:    {"unit price", "birim fiyat", "birim fiyatı"},
	FieldVendor:       {"tedarikçi", "tedarikci", "supplier", "firma"},
	FieldDescription:  {"açıklama", "aciklama", "note", "notes"},
	FieldOutOfBudget:  {"bütçe dışı", "butce disi", "out of budget"},
	FieldMapAttribute: {"map nitelik", "map attribute", "map"},
	FieldCostType:     {"capex/opex", "capex opex", "cost type", "maliyet tipi"},
	FieldAssetType:    {"varlık tipi", "varlik tipi", "asset type"},
	FieldDepartment:   {"departman", "dept", "birim"},
	FieldStatus:       {"durum", "state"},
}

// Normalize lower-cases key and drops every rune that is not a letter or digit
func Normalize(key string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, key)
}

// Resolver holds the normalized alias table
type Resolver struct {
	aliases map[string][]string
}

// New builds a resolver from the built-in table merged with extra aliases,
// typically loaded from configuration. Unknown canonical fields in extra are
// added as new fields.
func New(extra map[string][]string) *Resolver {
	r := &Resolver{aliases: make(map[string][]string, len(defaultTable))}
	for field, names := range defaultTable {
		r.add(field, names)
	}
	for field, names := range extra {
		r.add(field, names)
	}
	return r
}

// Default returns a new resolver holding only the built-in table
func Default() *Resolver {
	return New(nil)
}

func (r *Resolver) add(field string, names []string) {
	seen := make(map[string]bool)
	for _, existing := range r.aliases[field] {
		seen[existing] = true
	}
	candidates := append([]string{field}, names...)
	for _, name := range candidates {
		n := Normalize(name)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		r.aliases[field] = append(r.aliases[field], n)
	}
}

// Aliases returns the normalized spellings accepted for field
func (r *Resolver) Aliases(field string) []string {
	if names, ok := r.aliases[field]; ok {
		return names
	}
	return []string{Normalize(field)}
}

// Field reports which canonical field a raw header maps to
func (r *Resolver) Field(header string) (string, bool) {
	n := Normalize(header)
	if n == "" {
		return "", false
	}
	fields := make([]string, 0, len(r.aliases))
	for field := range r.aliases {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		for _, a := range r.aliases[field] {
			if a == n {
				return field, true
			}
		}
	}
	return "", false
}

// Lookup returns the first non-empty value in row whose key matches one of
// field's aliases. Aliases are tried in table order and keys in sorted order.
func (r *Resolver) Lookup(row map[string]any, field string) (any, bool) {
	if len(row) == 0 {
		return nil, false
	}
	keys := make([]string, 0, len(row))
	normalized := make(map[string]string, len(row))
	for k := range row {
		keys = append(keys, k)
		normalized[k] = Normalize(k)
	}
	sort.Strings(keys)

	for _, a := range r.Aliases(field) {
		for _, k := range keys {
			if normalized[k] != a {
				continue
			}
			if v := row[k]; !IsEmpty(v) {
				return v, true
			}
		}
	}
	return nil, false
}

// String is Lookup rendered as trimmed text
func (r *Resolver) String(row map[string]any, field string) string {
	v, ok := r.Lookup(row, field)
	if !ok {
		return ""
	}
	return ToString(v)
}

// Lookup resolves field against the built-in table
func Lookup(row map[string]any, field string) (any, bool) {
	return Default().Lookup(row, field)
}

// IsEmpty reports whether a cell value carries no data
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// ToString renders a cell value as trimmed text
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case time.Time:
		return t.Format("2006-01-02")
	case interface{ String() string }:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
