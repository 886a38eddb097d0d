package docstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (postgresDialect) DocField(field string, value any) string {
	base := fmt.Sprintf("doc->>%s", quoteJSONKey(field))
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("(%s)::numeric", base)
	case bool:
		return fmt.Sprintf("(%s)::boolean", base)
	default:
		return base
	}
}

func (postgresDialect) DocExistsExpr(field string) string {
	return fmt.Sprintf("doc ? %s", quoteJSONKey(field))
}

func (postgresDialect) MergeDocExpr(placeholder string) string {
	return fmt.Sprintf("doc || %s::jsonb", placeholder)
}

func (postgresDialect) CollectionDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id CHAR(24) PRIMARY KEY,
		doc JSONB NOT NULL DEFAULT '{}'::jsonb,
		added_by CHAR(24),
		updated_by CHAR(24),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table)
}

func (postgresDialect) AuthTablesDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS _users (
			id CHAR(24) PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			roles JSONB NOT NULL DEFAULT '[]'::jsonb,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS _refresh_tokens (
			token TEXT PRIMARY KEY,
			user_id CHAR(24) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}
}

func (postgresDialect) MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
	}
	return err
}
