package docstore

import (
	"fmt"
	"strings"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) Placeholder(index int) string {
	return "?"
}

func (sqliteDialect) DocField(field string, value any) string {
	// json_extract yields typed values, no cast needed
	return fmt.Sprintf("json_extract(doc, '$.%s')", field)
}

func (sqliteDialect) DocExistsExpr(field string) string {
	return fmt.Sprintf("json_extract(doc, '$.%s') IS NOT NULL", field)
}

func (sqliteDialect) MergeDocExpr(placeholder string) string {
	return fmt.Sprintf("json_patch(doc, %s)", placeholder)
}

func (sqliteDialect) CollectionDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL DEFAULT '{}',
		added_by TEXT,
		updated_by TEXT,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, table)
}

func (sqliteDialect) AuthTablesDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS _users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			roles TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS _refresh_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			expires_at TIMESTAMP NOT NULL
		)`,
	}
}

func (sqliteDialect) MapError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return err
}
