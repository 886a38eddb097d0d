package schema

import (
	"fmt"
	"regexp"
	"time"

	"github.com/expr-lang/expr"
)

// Violation describes a single failed check for a payload field.
type Violation struct {
	Field   string
	Rule    string
	Message string
}

var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsID reports whether s is a well-formed 24-hex document identifier.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// Validate checks a payload against the entity schema variant selected by kind.
// Fields present in the payload but not declared in the schema are passed
// through untouched; the schema is permissive. An empty payload is valid.
func Validate(e *Entity, payload map[string]any, kind Kind) []Violation {
	var errs []Violation

	if kind == KindCreate {
		for _, f := range e.Fields {
			if !f.Required {
				continue
			}
			if v, ok := payload[f.Name]; !ok || v == nil {
				errs = append(errs, Violation{
					Field:   f.Name,
					Rule:    "required",
					Message: fmt.Sprintf("%s is required", f.Name),
				})
			}
		}
	}

	for _, f := range e.Fields {
		val, ok := payload[f.Name]
		if !ok {
			continue
		}

		if val == nil {
			if !f.Nullable {
				errs = append(errs, Violation{
					Field:   f.Name,
					Rule:    "nullable",
					Message: fmt.Sprintf("%s may not be null", f.Name),
				})
			}
			continue
		}

		if kind == KindFilter {
			switch fv := val.(type) {
			case []any:
				// "one of" filter: every member must conform
				for _, member := range fv {
					if member == nil {
						continue
					}
					if detail := checkType(f, member); detail != nil {
						errs = append(errs, *detail)
						break
					}
				}
				continue
			case map[string]any:
				// store-native comparison expression, structural pass-through
				continue
			}
		}

		if detail := checkType(f, val); detail != nil {
			errs = append(errs, *detail)
			continue
		}

		if f.Rule != "" && kind != KindFilter {
			if detail := checkRule(f, val, payload); detail != nil {
				errs = append(errs, *detail)
			}
		}
	}

	return errs
}

func checkType(f Field, val any) *Violation {
	ok := true
	switch f.Type {
	case "string":
		_, ok = val.(string)
	case "int":
		ok = isInteger(val)
	case "number":
		_, ok = toFloat64(val)
	case "boolean":
		_, ok = val.(bool)
	case "date":
		ok = isDate(val)
	case "id":
		s, isStr := val.(string)
		ok = isStr && IsID(s)
	case "json", "":
		// opaque, anything goes
	default:
		// unrecognized declared type: treat as opaque
	}

	if !ok {
		return &Violation{
			Field:   f.Name,
			Rule:    "type",
			Message: fmt.Sprintf("%s must be a valid %s", f.Name, f.Type),
		}
	}
	return nil
}

func checkRule(f Field, val any, record map[string]any) *Violation {
	env := map[string]any{
		"value":  val,
		"record": record,
	}
	program, err := expr.Compile(f.Rule, expr.AsBool())
	if err != nil {
		return &Violation{Field: f.Name, Rule: "rule", Message: fmt.Sprintf("invalid rule for %s: %v", f.Name, err)}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return &Violation{Field: f.Name, Rule: "rule", Message: fmt.Sprintf("rule for %s failed: %v", f.Name, err)}
	}
	if pass, _ := out.(bool); !pass {
		msg := f.RuleMessage
		if msg == "" {
			msg = fmt.Sprintf("%s failed validation rule", f.Name)
		}
		return &Violation{Field: f.Name, Rule: "rule", Message: msg}
	}
	return nil
}

func isInteger(val any) bool {
	switch v := val.(type) {
	case int, int32, int64:
		return true
	case float64:
		return v == float64(int64(v))
	case float32:
		return v == float32(int32(v))
	default:
		return false
	}
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func isDate(val any) bool {
	switch v := val.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, v); err == nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}
