package docstore

import "fmt"

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// DocField returns the SQL expression reading a document attribute,
	// cast according to the type of the comparison value.
	DocField(field string, value any) string

	// DocExistsExpr returns the SQL expression testing attribute presence.
	DocExistsExpr(field string) string

	// MergeDocExpr returns the SQL expression merging a JSON patch
	// (bound at the given placeholder) into the doc column.
	MergeDocExpr(placeholder string) string

	// CollectionDDL returns the CREATE TABLE statement for a collection.
	CollectionDDL(table string) string

	// AuthTablesDDL returns the DDL statements for the auth system tables.
	AuthTablesDDL() []string

	// MapError maps a driver error to a well-known sentinel error.
	MapError(err error) error
}

// NewDialect returns the dialect for the given driver name.
func NewDialect(driver string) Dialect {
	if driver == "sqlite" {
		return sqliteDialect{}
	}
	return postgresDialect{}
}

type paramBuilder struct {
	dialect Dialect
	params  []any
	n       int
}

func (p *paramBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return p.dialect.Placeholder(p.n)
}

func newParamBuilder(d Dialect) *paramBuilder {
	return &paramBuilder{dialect: d}
}

// MapError maps a database error to a well-known sentinel error using the dialect.
func MapError(dialect Dialect, err error) error {
	if err == nil {
		return nil
	}
	return dialect.MapError(err)
}

func quoteJSONKey(field string) string {
	// field names are checked against identifier syntax before reaching
	// SQL generation, so no escaping is needed here
	return fmt.Sprintf("'%s'", field)
}
