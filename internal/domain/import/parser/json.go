package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/import/alias"
)

// itemAttributes are copied from a tree item onto each of its month records
var itemAttributes = []string{
	alias.FieldMapAttribute, alias.FieldCostType, alias.FieldAssetType, alias.FieldDepartment,
}

// ParseJSON accepts {"plans": [...]}, a bare list of row objects, or the tree
// {"year": Y, "scenario": S, "items": {code: {"name": ..., "plan": {month: amount}}}}.
// Numbers are kept as json.Number so amounts are never routed through float64.
func (p *Parser) ParseJSON(r io.Reader) (*Result, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &budget.ParseError{Format: "json", Message: "invalid JSON file", Err: err}
	}

	switch v := payload.(type) {
	case []any:
		return p.jsonList(v), nil
	case map[string]any:
		if plans, ok := v["plans"]; ok {
			list, ok := plans.([]any)
			if !ok {
				return nil, &budget.ParseError{Format: "json", Message: `"plans" must be a list`}
			}
			return p.jsonList(list), nil
		}
		_, hasYear := v["year"]
		items, hasItems := v["items"]
		if hasYear && hasItems {
			tree, ok := items.(map[string]any)
			if !ok {
				return nil, &budget.ParseError{Format: "json", Message: `"items" must be an object`}
			}
			return p.jsonTree(v, tree), nil
		}
	}
	return nil, &budget.ParseError{Format: "json", Message: "unsupported JSON schema"}
}

func (p *Parser) jsonList(entries []any) *Result {
	result := &Result{Format: "json", Layout: LayoutRows}
	for i, entry := range entries {
		fields, ok := entry.(map[string]any)
		if !ok {
			result.Records = append(result.Records, Record{Line: i + 1, Kind: KindUnknown, Problem: "entry is not an object"})
			continue
		}
		result.Records = append(result.Records, newRecord(p.aliases, i+1, fields))
	}
	return result
}

func (p *Parser) jsonTree(doc map[string]any, items map[string]any) *Result {
	result := &Result{Format: "json", Layout: LayoutTree}

	codes := make([]string, 0, len(items))
	for code := range items {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	line := 0
	for _, code := range codes {
		item, ok := items[code].(map[string]any)
		if !ok {
			line++
			result.Records = append(result.Records, Record{Line: line, Kind: KindUnknown, Problem: fmt.Sprintf("item %q is not an object", code)})
			continue
		}
		plan, _ := item["plan"].(map[string]any)

		for _, month := range sortedMonthKeys(plan) {
			line++
			fields := map[string]any{
				alias.FieldType:       string(KindPlan),
				alias.FieldBudgetCode: code,
				alias.FieldBudgetName: item["name"],
				alias.FieldScenario:   doc["scenario"],
				alias.FieldYear:       doc["year"],
				alias.FieldMonth:      month,
				alias.FieldAmount:     plan[month],
			}
			for _, attr := range itemAttributes {
				if v, ok := item[attr]; ok {
					fields[attr] = v
				}
			}
			result.Records = append(result.Records, Record{Line: line, Kind: KindPlan, RawType: string(KindPlan), Fields: fields})
		}
	}
	return result
}

// sortedMonthKeys orders numeric keys numerically, then anything else lexically
func sortedMonthKeys(plan map[string]any) []string {
	keys := make([]string, 0, len(plan))
	for k := range plan {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}
