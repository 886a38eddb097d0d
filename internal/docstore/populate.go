package docstore

import (
	"context"
	"fmt"
	"strings"

	"dockit/internal/schema"
)

// Populate embeds referenced documents for the requested ref fields.
// For each field carrying a ref, the referenced ids are collected across
// all records and fetched with one query per field.
func (s *Store) Populate(ctx context.Context, reg *schema.Registry, e *schema.Entity, records []map[string]any, fields []string) error {
	if len(records) == 0 || len(fields) == 0 {
		return nil
	}

	for _, name := range fields {
		field := e.GetField(name)
		if field == nil || field.Ref == "" {
			continue
		}
		target := reg.GetEntity(field.Ref)
		if target == nil {
			return fmt.Errorf("populate %s: unknown entity %s", name, field.Ref)
		}
		if err := s.populateField(ctx, target, records, name); err != nil {
			return fmt.Errorf("populate %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) populateField(ctx context.Context, target *schema.Entity, records []map[string]any, field string) error {
	seen := make(map[string]bool)
	var ids []string
	for _, record := range records {
		id, ok := record[field].(string)
		if !ok || !schema.IsID(id) || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	pb := newParamBuilder(s.Dialect)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = pb.Add(id)
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s)", docColumns, target.Collection, strings.Join(placeholders, ", "))
	rows, err := QueryRows(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return err
	}

	byID := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		ref, err := recordFromRow(row)
		if err != nil {
			return err
		}
		if id, ok := ref["id"].(string); ok {
			byID[id] = ref
		}
	}

	for _, record := range records {
		if id, ok := record[field].(string); ok {
			if ref, found := byID[id]; found {
				record[field] = ref
			}
		}
	}
	return nil
}
