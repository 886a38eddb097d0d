package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"dockit/internal/docstore"
	"dockit/internal/schema"
)

const (
	actorA  = "64b1f0c2a1b2c3d4e5f60001"
	knownID = "64b1f0c2a1b2c3d4e5f60718"
)

// fakeStore implements DocStore and records every call, so tests can assert
// both what reached the store and that nothing reached it on early rejects.
type fakeStore struct {
	calls []string

	insertRecord  map[string]any
	insertedMany  []map[string]any
	updateWhere   []docstore.Where
	updateFields  map[string]any
	deleteManyIDs []string

	records []map[string]any
	total   int64
	count   int64
	err     error
}

func (f *fakeStore) note(call string) { f.calls = append(f.calls, call) }

func (f *fakeStore) Insert(_ context.Context, _ *schema.Entity, record map[string]any) (map[string]any, error) {
	f.note("Insert")
	f.insertRecord = record
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]any{"id": knownID, "isDeleted": false}
	for k, v := range record {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) InsertMany(_ context.Context, _ *schema.Entity, records []map[string]any) (int64, error) {
	f.note("InsertMany")
	f.insertedMany = records
	return int64(len(records)), f.err
}

func (f *fakeStore) FindByID(_ context.Context, _ *schema.Entity, id string) (map[string]any, error) {
	f.note("FindByID")
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.records {
		if r["id"] == id {
			return r, nil
		}
	}
	return nil, docstore.ErrNotFound
}

func (f *fakeStore) Find(_ context.Context, _ *schema.Entity, q docstore.Query) ([]map[string]any, int64, error) {
	f.note("Find")
	f.updateWhere = q.Where
	return f.records, f.total, f.err
}

func (f *fakeStore) Count(_ context.Context, _ *schema.Entity, where []docstore.Where) (int64, error) {
	f.note("Count")
	f.updateWhere = where
	return f.count, f.err
}

func (f *fakeStore) UpdateOne(_ context.Context, _ *schema.Entity, where []docstore.Where, fields map[string]any) (map[string]any, error) {
	f.note("UpdateOne")
	f.updateWhere = where
	f.updateFields = fields
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]any{}
	if len(f.records) > 0 {
		for k, v := range f.records[0] {
			out[k] = v
		}
	}
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) UpdateMany(_ context.Context, _ *schema.Entity, where []docstore.Where, fields map[string]any) (int64, error) {
	f.note("UpdateMany")
	f.updateWhere = where
	f.updateFields = fields
	return f.count, f.err
}

func (f *fakeStore) DeleteOne(_ context.Context, _ *schema.Entity, where []docstore.Where) (map[string]any, error) {
	f.note("DeleteOne")
	f.updateWhere = where
	if f.err != nil {
		return nil, f.err
	}
	if len(f.records) == 0 {
		return nil, docstore.ErrNotFound
	}
	return f.records[0], nil
}

func (f *fakeStore) DeleteMany(_ context.Context, _ *schema.Entity, ids []string) (int64, error) {
	f.note("DeleteMany")
	f.deleteManyIDs = ids
	return int64(len(ids)), f.err
}

func (f *fakeStore) Populate(_ context.Context, _ *schema.Registry, _ *schema.Entity, _ []map[string]any, _ []string) error {
	f.note("Populate")
	return f.err
}

func newTestApp(store *fakeStore) *fiber.App {
	reg := schema.NewRegistry()
	reg.Load([]*schema.Entity{
		{
			Name:       "task",
			Collection: "task",
			Fields: []schema.Field{
				{Name: "title", Type: "string", Required: true},
				{Name: "status", Type: "int"},
			},
		},
	})

	h := NewHandler(store, reg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
			}
			return c.Status(500).JSON(ErrorResponse{Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"}})
		},
	})

	// test middleware standing in for auth: fixed actor
	RegisterEntityRoutes(app, h, func(c *fiber.Ctx) error {
		c.Locals("user", &UserContext{ID: actorA})
		return c.Next()
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	var parsed map[string]any
	_ = json.Unmarshal(data, &parsed)
	return resp, parsed
}

func TestAdd_AttachesActor(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/task/create", map[string]any{"title": "x"})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if store.insertRecord["addedBy"] != actorA {
		t.Fatalf("addedBy not attached: %+v", store.insertRecord)
	}
	if _, present := store.insertRecord["isDeleted"]; present {
		t.Fatalf("isDeleted must not be set on create, got %+v", store.insertRecord)
	}
	data := body["data"].(map[string]any)
	if data["isDeleted"] != false {
		t.Fatalf("created record should report isDeleted=false, got %v", data["isDeleted"])
	}
}

func TestAdd_UnknownFieldsPassThrough(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "POST", "/api/task/create", map[string]any{"title": "x", "someNewField": 42})
	if resp.StatusCode != 201 {
		t.Fatalf("permissive schema must allow unknown fields, got %d", resp.StatusCode)
	}
	if store.insertRecord["someNewField"] != float64(42) {
		t.Fatalf("unknown field not passed through: %+v", store.insertRecord)
	}
}

func TestAdd_ValidationErrorSkipsStore(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/task/create", map[string]any{"title": 5})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called on validation failure, got %v", store.calls)
	}
}

func TestUpdate_StripsAddedBy(t *testing.T) {
	store := &fakeStore{records: []map[string]any{{"id": knownID, "title": "old"}}}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "PUT", "/api/task/update/"+knownID, map[string]any{
		"title":   "new",
		"addedBy": "64b1f0c2a1b2c3d4e5f6beef",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if _, present := store.updateFields["addedBy"]; present {
		t.Fatalf("addedBy must be stripped from update payloads: %+v", store.updateFields)
	}
	if store.updateFields["updatedBy"] != actorA {
		t.Fatalf("updatedBy not refreshed: %+v", store.updateFields)
	}
}

func TestUpdate_MalformedIDSkipsStore(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "PUT", "/api/task/update/not-24-hex", map[string]any{"title": "y"})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called for malformed id, got %v", store.calls)
	}
}

func TestFindAll_ArrayFilterBecomesIn(t *testing.T) {
	store := &fakeStore{
		records: []map[string]any{{"id": knownID, "title": "a", "status": float64(1)}},
		total:   1,
	}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/task/list", map[string]any{
		"query": map[string]any{"status": []any{1, 2}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if len(store.updateWhere) != 1 || store.updateWhere[0].Op != "in" || store.updateWhere[0].Field != "status" {
		t.Fatalf("array filter should normalize to in clause, got %+v", store.updateWhere)
	}
	meta := body["meta"].(map[string]any)
	if meta["total"] != float64(1) || meta["page"] != float64(1) {
		t.Fatalf("unexpected meta: %v", meta)
	}
}

func TestFindAll_EmptyResultIsNotFound(t *testing.T) {
	store := &fakeStore{records: nil, total: 0}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "POST", "/api/task/list", map[string]any{"query": map[string]any{"status": 99}})
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for empty result, got %d", resp.StatusCode)
	}
}

func TestFindAll_CountOnlyShortCircuits(t *testing.T) {
	store := &fakeStore{count: 7}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/task/list", map[string]any{
		"query":       map[string]any{},
		"isCountOnly": true,
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["totalRecords"] != float64(7) {
		t.Fatalf("expected totalRecords 7, got %v", data)
	}
	for _, call := range store.calls {
		if call == "Find" {
			t.Fatal("count-only request must not run the find path")
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "GET", "/api/task/"+knownID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGet_MalformedID(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "GET", "/api/task/short", nil)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
}

func TestSoftDelete_SetsFlagAndIsIdempotent(t *testing.T) {
	store := &fakeStore{records: []map[string]any{{"id": knownID, "title": "a"}}}
	app := newTestApp(store)

	for i := 0; i < 2; i++ {
		resp, body := doJSON(t, app, "PUT", "/api/task/softDelete/"+knownID, nil)
		if resp.StatusCode != 200 {
			t.Fatalf("call %d: expected 200, got %d: %v", i+1, resp.StatusCode, body)
		}
		data := body["data"].(map[string]any)
		if data["isDeleted"] != true {
			t.Fatalf("call %d: isDeleted not set: %v", i+1, data)
		}
	}
	if store.updateFields["isDeleted"] != true || store.updateFields["updatedBy"] != actorA {
		t.Fatalf("soft delete fields wrong: %+v", store.updateFields)
	}
	for _, call := range store.calls {
		if call == "DeleteOne" || call == "DeleteMany" {
			t.Fatal("soft delete must never physically remove records")
		}
	}
}

func TestDeleteMany_EmptyIDsIsBadRequest(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "POST", "/api/task/deleteMany", map[string]any{"ids": []string{}})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
}

func TestDeleteMany_MalformedIDRejected(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "POST", "/api/task/deleteMany", map[string]any{"ids": []string{knownID, "bad"}})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
}

func TestBulkInsert_EmptyDataIsBadRequest(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, _ := doJSON(t, app, "POST", "/api/task/addBulk", map[string]any{"data": []any{}})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called, got %v", store.calls)
	}
}

func TestBulkInsert_AttachesActorToEachDraft(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/task/addBulk", map[string]any{
		"data": []any{
			map[string]any{"title": "a"},
			map[string]any{"title": "b"},
		},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d: %v", resp.StatusCode, body)
	}
	if len(store.insertedMany) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(store.insertedMany))
	}
	for i, record := range store.insertedMany {
		if record["addedBy"] != actorA {
			t.Fatalf("draft %d missing addedBy: %+v", i, record)
		}
	}
}

func TestSoftDeleteMany_UpdatesByIDSet(t *testing.T) {
	store := &fakeStore{count: 2}
	app := newTestApp(store)

	other := "64b1f0c2a1b2c3d4e5f60719"
	resp, body := doJSON(t, app, "PUT", "/api/task/softDeleteMany", map[string]any{"ids": []string{knownID, other}})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if len(store.updateWhere) != 1 || store.updateWhere[0].Op != "in" {
		t.Fatalf("expected single in clause, got %+v", store.updateWhere)
	}
	if store.updateFields["isDeleted"] != true {
		t.Fatalf("isDeleted not set: %+v", store.updateFields)
	}
}

func TestBulkUpdate_StripsAddedBy(t *testing.T) {
	store := &fakeStore{count: 3}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "PUT", "/api/task/updateBulk", map[string]any{
		"filter": map[string]any{"status": 1},
		"data":   map[string]any{"status": 2, "addedBy": "64b1f0c2a1b2c3d4e5f6beef"},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if _, present := store.updateFields["addedBy"]; present {
		t.Fatalf("addedBy must be stripped: %+v", store.updateFields)
	}
	data := body["data"].(map[string]any)
	if data["count"] != float64(3) {
		t.Fatalf("expected count 3, got %v", data)
	}
}

func TestUnknownEntityReturns404(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "POST", "/api/nonexistent/list", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	errObj := body["error"].(map[string]any)
	if errObj["code"] != "UNKNOWN_ENTITY" {
		t.Fatalf("expected UNKNOWN_ENTITY, got %v", errObj)
	}
}

func TestDelete_ReturnsRemovedRecord(t *testing.T) {
	store := &fakeStore{records: []map[string]any{{"id": knownID, "title": "gone"}}}
	app := newTestApp(store)

	resp, body := doJSON(t, app, "DELETE", "/api/task/delete/"+knownID, nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["title"] != "gone" {
		t.Fatalf("expected deleted record in response, got %v", data)
	}
}

func TestUpdate_MissingIDIsBadRequest(t *testing.T) {
	store := &fakeStore{}
	app := newTestApp(store)

	for _, route := range []struct{ method, path string }{
		{"PUT", "/api/task/update"},
		{"PATCH", "/api/task/partial-update"},
	} {
		resp, body := doJSON(t, app, route.method, route.path, map[string]any{"title": "x"})
		if resp.StatusCode != 400 {
			t.Fatalf("%s %s: expected 400, got %d: %v", route.method, route.path, resp.StatusCode, body)
		}
		errObj := body["error"].(map[string]any)
		if errObj["code"] != "BAD_REQUEST" {
			t.Fatalf("%s %s: expected BAD_REQUEST, got %v", route.method, route.path, errObj)
		}
	}
	if len(store.calls) != 0 {
		t.Fatalf("store must not be called without an id, got %v", store.calls)
	}
}
