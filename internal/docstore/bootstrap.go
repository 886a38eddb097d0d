package docstore

import (
	"context"
	"fmt"
	"log"

	"dockit/internal/schema"
)

// EnsureCollections creates one document table per registered entity,
// plus the auth system tables. Idempotent; runs at startup.
func (s *Store) EnsureCollections(ctx context.Context, reg *schema.Registry) error {
	for _, e := range reg.AllEntities() {
		if !identPattern.MatchString(e.Collection) {
			return fmt.Errorf("invalid collection name for entity %s: %s", e.Name, e.Collection)
		}
		if _, err := s.DB.ExecContext(ctx, s.Dialect.CollectionDDL(e.Collection)); err != nil {
			return fmt.Errorf("create collection %s: %w", e.Collection, err)
		}
	}

	for _, ddl := range s.Dialect.AuthTablesDDL() {
		if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create auth tables: %w", err)
		}
	}

	log.Printf("Ensured %d collections", len(reg.AllEntities()))
	return nil
}
