package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"dockit/internal/schema"
)

const docColumns = "id, doc, added_by, updated_by, is_active, is_deleted, created_at, updated_at"

// Insert creates a single document and returns the stored record.
func (s *Store) Insert(ctx context.Context, e *schema.Entity, record map[string]any) (map[string]any, error) {
	id := NewID()
	if err := s.insertRow(ctx, e, id, record, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.FindByID(ctx, e, id)
}

// InsertMany creates documents in bulk and returns the created count.
// Callers are expected to reject empty input before invoking.
func (s *Store) InsertMany(ctx context.Context, e *schema.Entity, records []map[string]any) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	pb := newParamBuilder(s.Dialect)
	now := time.Now().UTC()
	rows := make([]string, 0, len(records))
	for _, record := range records {
		values, err := insertValues(pb, record, now)
		if err != nil {
			return 0, err
		}
		rows = append(rows, "("+strings.Join(values, ", ")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", e.Collection, docColumns, strings.Join(rows, ", "))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.params...); err != nil {
		return 0, MapError(s.Dialect, err)
	}
	return int64(len(records)), nil
}

// FindByID returns the document with the given identifier, or ErrNotFound.
// Soft-deleted documents remain visible here; isDeleted is not a read filter.
func (s *Store) FindByID(ctx context.Context, e *schema.Entity, id string) (map[string]any, error) {
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", docColumns, e.Collection, s.Dialect.Placeholder(1))
	row, err := QueryRow(ctx, s.DB, sqlStr, id)
	if err != nil {
		return nil, err
	}
	return recordFromRow(row)
}

// Find returns the matching page of documents and the total match count.
func (s *Store) Find(ctx context.Context, e *schema.Entity, q Query) ([]map[string]any, int64, error) {
	total, err := s.Count(ctx, e, q.Where)
	if err != nil {
		return nil, 0, err
	}

	pb := newParamBuilder(s.Dialect)
	whereSQL, err := BuildWhere(s.Dialect, pb, q.Where)
	if err != nil {
		return nil, 0, err
	}

	sqlStr := fmt.Sprintf("SELECT %s FROM %s", docColumns, e.Collection)
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}

	orderSQL, err := buildOrderBy(s.Dialect, q.Sort)
	if err != nil {
		return nil, 0, err
	}
	sqlStr += orderSQL

	if q.Paginate {
		sqlStr += fmt.Sprintf(" LIMIT %s OFFSET %s", pb.Add(q.PerPage), pb.Add((q.Page-1)*q.PerPage))
	}

	rows, err := QueryRows(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return nil, 0, err
	}

	records := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record, err := recordFromRow(row)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}

	applySelect(records, q.Select)
	return records, total, nil
}

// Count returns the number of documents matching the filter.
func (s *Store) Count(ctx context.Context, e *schema.Entity, where []Where) (int64, error) {
	pb := newParamBuilder(s.Dialect)
	whereSQL, err := BuildWhere(s.Dialect, pb, where)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", e.Collection)
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}

	row, err := QueryRow(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return 0, err
	}
	return toInt64(row["count"]), nil
}

// UpdateOne merges fields into the first document matching the filter and
// returns the updated record, or ErrNotFound when nothing matches.
func (s *Store) UpdateOne(ctx context.Context, e *schema.Entity, where []Where, fields map[string]any) (map[string]any, error) {
	id, err := s.resolveOne(ctx, e, where)
	if err != nil {
		return nil, err
	}

	pb := newParamBuilder(s.Dialect)
	setSQL, err := buildSetClause(s.Dialect, pb, fields)
	if err != nil {
		return nil, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", e.Collection, setSQL, pb.Add(id))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.params...); err != nil {
		return nil, MapError(s.Dialect, err)
	}
	return s.FindByID(ctx, e, id)
}

// UpdateMany merges fields into every document matching the filter as a
// single batched statement and returns the affected count.
func (s *Store) UpdateMany(ctx context.Context, e *schema.Entity, where []Where, fields map[string]any) (int64, error) {
	pb := newParamBuilder(s.Dialect)
	setSQL, err := buildSetClause(s.Dialect, pb, fields)
	if err != nil {
		return 0, err
	}

	whereSQL, err := BuildWhere(s.Dialect, pb, where)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s", e.Collection, setSQL)
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}

	affected, err := Exec(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return 0, MapError(s.Dialect, err)
	}
	return affected, nil
}

// DeleteOne physically removes the first document matching the filter and
// returns it, or ErrNotFound when nothing matches.
func (s *Store) DeleteOne(ctx context.Context, e *schema.Entity, where []Where) (map[string]any, error) {
	id, err := s.resolveOne(ctx, e, where)
	if err != nil {
		return nil, err
	}

	record, err := s.FindByID(ctx, e, id)
	if err != nil {
		return nil, err
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE id = %s", e.Collection, s.Dialect.Placeholder(1))
	if _, err := Exec(ctx, s.DB, sqlStr, id); err != nil {
		return nil, MapError(s.Dialect, err)
	}
	return record, nil
}

// DeleteMany physically removes the documents with the given identifiers
// and returns the deleted count. Callers reject empty input beforehand.
func (s *Store) DeleteMany(ctx context.Context, e *schema.Entity, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	pb := newParamBuilder(s.Dialect)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = pb.Add(id)
	}

	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", e.Collection, strings.Join(placeholders, ", "))
	affected, err := Exec(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return 0, MapError(s.Dialect, err)
	}
	return affected, nil
}

// --- helpers ---

func (s *Store) insertRow(ctx context.Context, e *schema.Entity, id string, record map[string]any, now time.Time) error {
	pb := newParamBuilder(s.Dialect)
	record = withID(record, id)
	values, err := insertValues(pb, record, now)
	if err != nil {
		return err
	}

	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Collection, docColumns, strings.Join(values, ", "))
	if _, err := Exec(ctx, s.DB, sqlStr, pb.params...); err != nil {
		return MapError(s.Dialect, err)
	}
	return nil
}

func withID(record map[string]any, id string) map[string]any {
	out := make(map[string]any, len(record)+1)
	for k, v := range record {
		out[k] = v
	}
	out["id"] = id
	return out
}

// insertValues appends the column values for one document row to pb.
// A missing id is generated; system fields fall back to their defaults.
func insertValues(pb *paramBuilder, record map[string]any, now time.Time) ([]string, error) {
	attrs, sys := splitSystemFields(record)

	id, _ := sys["id"].(string)
	if id == "" {
		id = NewID()
	}

	docJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}

	isActive := true
	if v, ok := sys["isActive"].(bool); ok {
		isActive = v
	}
	isDeleted := false
	if v, ok := sys["isDeleted"].(bool); ok {
		isDeleted = v
	}

	return []string{
		pb.Add(id),
		pb.Add(string(docJSON)),
		pb.Add(sys["addedBy"]),
		pb.Add(sys["updatedBy"]),
		pb.Add(isActive),
		pb.Add(isDeleted),
		pb.Add(now),
		pb.Add(now),
	}, nil
}

// splitSystemFields separates column-backed fields from document attributes.
func splitSystemFields(record map[string]any) (attrs map[string]any, sys map[string]any) {
	attrs = make(map[string]any, len(record))
	sys = make(map[string]any)
	for k, v := range record {
		if _, ok := systemColumns[k]; ok {
			if k == "_id" {
				k = "id"
			}
			sys[k] = v
			continue
		}
		attrs[k] = v
	}
	return attrs, sys
}

// buildSetClause renders the SET fragment for a partial update: document
// attributes are merged into doc, system fields update their columns, and
// updated_at is always refreshed.
func buildSetClause(d Dialect, pb *paramBuilder, fields map[string]any) (string, error) {
	attrs, sys := splitSystemFields(fields)

	var parts []string
	if len(attrs) > 0 {
		patch, err := json.Marshal(attrs)
		if err != nil {
			return "", fmt.Errorf("marshal patch: %w", err)
		}
		parts = append(parts, "doc = "+d.MergeDocExpr(pb.Add(string(patch))))
	}
	for _, name := range []string{"addedBy", "updatedBy", "isActive", "isDeleted"} {
		if v, ok := sys[name]; ok {
			parts = append(parts, fmt.Sprintf("%s = %s", systemColumns[name], pb.Add(v)))
		}
	}
	parts = append(parts, "updated_at = "+pb.Add(time.Now().UTC()))
	return strings.Join(parts, ", "), nil
}

// resolveOne returns the id of the first document matching the filter.
func (s *Store) resolveOne(ctx context.Context, e *schema.Entity, where []Where) (string, error) {
	pb := newParamBuilder(s.Dialect)
	whereSQL, err := BuildWhere(s.Dialect, pb, where)
	if err != nil {
		return "", err
	}

	sqlStr := fmt.Sprintf("SELECT id FROM %s", e.Collection)
	if whereSQL != "" {
		sqlStr += " WHERE " + whereSQL
	}
	sqlStr += " LIMIT 1"

	row, err := QueryRow(ctx, s.DB, sqlStr, pb.params...)
	if err != nil {
		return "", err
	}
	id, _ := row["id"].(string)
	return strings.TrimSpace(id), nil
}

// recordFromRow converts a table row into the API record shape: document
// attributes at the top level plus the system fields in camelCase.
func recordFromRow(row map[string]any) (map[string]any, error) {
	record := make(map[string]any)

	switch doc := row["doc"].(type) {
	case string:
		if doc != "" {
			if err := json.Unmarshal([]byte(doc), &record); err != nil {
				return nil, fmt.Errorf("unmarshal document: %w", err)
			}
		}
	case []byte:
		if len(doc) > 0 {
			if err := json.Unmarshal(doc, &record); err != nil {
				return nil, fmt.Errorf("unmarshal document: %w", err)
			}
		}
	}

	if id, ok := row["id"].(string); ok {
		record["id"] = strings.TrimSpace(id)
	}
	record["addedBy"] = trimmedOrNil(row["added_by"])
	record["updatedBy"] = trimmedOrNil(row["updated_by"])
	record["isActive"] = toBool(row["is_active"])
	record["isDeleted"] = toBool(row["is_deleted"])
	record["createdAt"] = row["created_at"]
	record["updatedAt"] = row["updated_at"]
	return record, nil
}

// applySelect prunes records to the requested fields. System identifiers
// stay so callers can always address the record.
func applySelect(records []map[string]any, selectFields []string) {
	if len(selectFields) == 0 {
		return
	}
	keep := map[string]bool{"id": true}
	for _, f := range selectFields {
		keep[f] = true
	}
	for _, record := range records {
		for k := range record {
			if !keep[k] {
				delete(record, k)
			}
		}
	}
}

func trimmedOrNil(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return v
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		var n int64
		fmt.Sscanf(val, "%d", &n)
		return n
	default:
		return 0
	}
}
