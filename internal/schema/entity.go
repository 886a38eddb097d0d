package schema

// Kind selects which variant of an entity schema a payload is checked against.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindFilter Kind = "filter"
)

type Entity struct {
	Name       string  `json:"name"`
	Collection string  `json:"collection"`
	Fields     []Field `json:"fields"`
}

type Field struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, int, number, boolean, date, id, json
	Required    bool   `json:"required,omitempty"` // enforced on create only
	Nullable    bool   `json:"nullable,omitempty"`
	Ref         string `json:"ref,omitempty"`  // target entity for id fields, enables populate
	Rule        string `json:"rule,omitempty"` // expr constraint, env: {value, record}
	RuleMessage string `json:"rule_message,omitempty"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// RefFields returns fields that reference another entity (populate targets).
func (e *Entity) RefFields() []Field {
	var fields []Field
	for _, f := range e.Fields {
		if f.Ref != "" {
			fields = append(fields, f)
		}
	}
	return fields
}
