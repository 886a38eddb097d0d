package engine

import (
	"fmt"
	"sort"
	"strings"

	"dockit/internal/docstore"
	"dockit/internal/schema"
)

// ListRequest is the body shape of the list action.
type ListRequest struct {
	Query       map[string]any `json:"query"`
	Options     map[string]any `json:"options"`
	IsCountOnly bool           `json:"isCountOnly"`
}

// CountRequest is the body shape of the count action.
type CountRequest struct {
	Where map[string]any `json:"where"`
	Query map[string]any `json:"query"`
}

// BulkUpdateRequest is the body shape of the bulk update action.
type BulkUpdateRequest struct {
	Filter map[string]any `json:"filter"`
	Data   map[string]any `json:"data"`
}

// IDListRequest is the body shape of bulk delete and bulk soft-delete.
type IDListRequest struct {
	IDs []string `json:"ids"`
}

var filterOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true,
	"lt": true, "lte": true, "in": true, "nin": true, "exists": true,
}

// NormalizeFilter interprets a raw filter object field by field: a literal
// value means equality, an array means "one of", and a nested object is a
// set of store-native comparisons. The input map is never mutated. Fields
// are processed in sorted order so generated queries are deterministic.
func NormalizeFilter(e *schema.Entity, raw map[string]any) ([]docstore.Where, *AppError) {
	if len(raw) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(raw))
	for k := range raw {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	var where []docstore.Where
	for _, field := range fields {
		value := raw[field]

		switch v := value.(type) {
		case []any:
			where = append(where, docstore.Where{Field: field, Op: "in", Value: v})
		case map[string]any:
			clauses, appErr := normalizeComparison(field, v)
			if appErr != nil {
				return nil, appErr
			}
			where = append(where, clauses...)
		default:
			if appErr := checkIDLiteral(field, value); appErr != nil {
				return nil, appErr
			}
			where = append(where, docstore.Where{Field: field, Op: "eq", Value: value})
		}
	}
	return where, nil
}

// normalizeComparison expands a nested {"$op": value} object into clauses.
// Operator semantics stay with the store; only the shape is checked here.
func normalizeComparison(field string, obj map[string]any) ([]docstore.Where, *AppError) {
	ops := make([]string, 0, len(obj))
	for k := range obj {
		ops = append(ops, k)
	}
	sort.Strings(ops)

	var where []docstore.Where
	for _, key := range ops {
		op := strings.TrimPrefix(key, "$")
		if !filterOps[op] {
			return nil, ValidationError([]ErrorDetail{{
				Field:   field,
				Rule:    "operator",
				Message: fmt.Sprintf("unsupported filter operator %s for %s", key, field),
			}})
		}
		where = append(where, docstore.Where{Field: field, Op: op, Value: obj[key]})
	}
	return where, nil
}

// checkIDLiteral enforces the 24-hex identifier pattern on plain-string
// id filters before anything reaches the store.
func checkIDLiteral(field string, value any) *AppError {
	if field != "id" && field != "_id" {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if !schema.IsID(s) {
		return InvalidIDError(s)
	}
	return nil
}

// ParseOptions reads pagination and selection controls from the raw
// options object, applying defaults and the page-size cap.
func ParseOptions(raw map[string]any) docstore.Query {
	q := docstore.Query{
		Page:     1,
		PerPage:  25,
		Paginate: true,
	}

	if v, ok := toInt(raw["page"]); ok && v > 0 {
		q.Page = v
	}
	if v, ok := toInt(raw["limit"]); ok && v > 0 {
		q.PerPage = v
		if q.PerPage > 100 {
			q.PerPage = 100
		}
	}
	if v, ok := raw["pagination"].(bool); ok {
		q.Paginate = v
	}

	q.Select = toStringSlice(raw["select"])
	q.Populate = toStringSlice(raw["populate"])
	q.Sort = parseSort(raw["sort"])

	return q
}

// parseSort reads a {"field": 1|-1} sort object, sorted by field name
// for determinism.
func parseSort(v any) []docstore.Order {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}

	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	orders := make([]docstore.Order, 0, len(fields))
	for _, field := range fields {
		dir, _ := toInt(obj[field])
		orders = append(orders, docstore.Order{Field: field, Desc: dir < 0})
	}
	return orders
}

// toInt accepts only whole numbers; fractional values are not silently
// truncated.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// toStringSlice accepts a JSON array of strings or a space-separated string.
func toStringSlice(v any) []string {
	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		if val == "" {
			return nil
		}
		return strings.Fields(val)
	default:
		return nil
	}
}
