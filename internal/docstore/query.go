package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Query is the store-facing description of a read or targeted write:
// filter clauses plus pagination and selection options.
type Query struct {
	Where    []Where
	Page     int
	PerPage  int
	Paginate bool
	Select   []string
	Populate []string
	Sort     []Order
}

// Where is a single filter clause against a system column or document attribute.
type Where struct {
	Field string
	Op    string // eq, ne, gt, gte, lt, lte, in, nin, exists
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// ByID returns a query targeting a single document by identifier.
func ByID(id string) []Where {
	return []Where{{Field: "id", Op: "eq", Value: id}}
}

// systemColumns maps record-level field names to their table columns.
// Everything else lives inside the doc JSON.
var systemColumns = map[string]string{
	"id":        "id",
	"_id":       "id",
	"addedBy":   "added_by",
	"updatedBy": "updated_by",
	"isActive":  "is_active",
	"isDeleted": "is_deleted",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// fieldExpr resolves a filter field to its SQL expression. value drives
// dialect casts for document attributes; pass nil for untyped contexts.
func fieldExpr(d Dialect, field string, value any) (string, error) {
	if col, ok := systemColumns[field]; ok {
		return col, nil
	}
	if !identPattern.MatchString(field) {
		return "", fmt.Errorf("invalid field name: %s", field)
	}
	return d.DocField(field, value), nil
}

// BuildWhere renders the filter clauses as an AND-joined SQL fragment.
func BuildWhere(d Dialect, pb *paramBuilder, where []Where) (string, error) {
	var clauses []string
	for _, w := range where {
		clause, err := buildClause(d, pb, w)
		if err != nil {
			return "", err
		}
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	return strings.Join(clauses, " AND "), nil
}

func buildClause(d Dialect, pb *paramBuilder, w Where) (string, error) {
	switch w.Op {
	case "eq", "":
		expr, err := fieldExpr(d, w.Field, w.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", expr, pb.Add(w.Value)), nil
	case "ne":
		expr, err := fieldExpr(d, w.Field, w.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s != %s", expr, pb.Add(w.Value)), nil
	case "gt", "gte", "lt", "lte":
		expr, err := fieldExpr(d, w.Field, w.Value)
		if err != nil {
			return "", err
		}
		ops := map[string]string{"gt": ">", "gte": ">=", "lt": "<", "lte": "<="}
		return fmt.Sprintf("%s %s %s", expr, ops[w.Op], pb.Add(w.Value)), nil
	case "in", "nin":
		values, ok := w.Value.([]any)
		if !ok {
			return "", fmt.Errorf("%s filter for %s requires an array", w.Op, w.Field)
		}
		if len(values) == 0 {
			if w.Op == "in" {
				return "1 = 0", nil // empty set matches nothing
			}
			return "", nil
		}
		expr, err := fieldExpr(d, w.Field, values[0])
		if err != nil {
			return "", err
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = pb.Add(v)
		}
		op := "IN"
		if w.Op == "nin" {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", expr, op, strings.Join(placeholders, ", ")), nil
	case "exists":
		wanted := true
		if b, ok := w.Value.(bool); ok {
			wanted = b
		}
		var expr string
		if col, ok := systemColumns[w.Field]; ok {
			expr = col + " IS NOT NULL"
		} else {
			if !identPattern.MatchString(w.Field) {
				return "", fmt.Errorf("invalid field name: %s", w.Field)
			}
			expr = d.DocExistsExpr(w.Field)
		}
		if !wanted {
			expr = "NOT (" + expr + ")"
		}
		return expr, nil
	default:
		return "", fmt.Errorf("unsupported filter operator: %s", w.Op)
	}
}

func buildOrderBy(d Dialect, sorts []Order) (string, error) {
	if len(sorts) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(sorts))
	for _, s := range sorts {
		expr, err := fieldExpr(d, s.Field, nil)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
