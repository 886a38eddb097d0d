package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"dockit/internal/docstore"
	"dockit/internal/schema"
)

// DocStore is the document-store surface the controllers depend on.
// *docstore.Store implements it; tests substitute fakes.
type DocStore interface {
	Insert(ctx context.Context, e *schema.Entity, record map[string]any) (map[string]any, error)
	InsertMany(ctx context.Context, e *schema.Entity, records []map[string]any) (int64, error)
	FindByID(ctx context.Context, e *schema.Entity, id string) (map[string]any, error)
	Find(ctx context.Context, e *schema.Entity, q docstore.Query) ([]map[string]any, int64, error)
	Count(ctx context.Context, e *schema.Entity, where []docstore.Where) (int64, error)
	UpdateOne(ctx context.Context, e *schema.Entity, where []docstore.Where, fields map[string]any) (map[string]any, error)
	UpdateMany(ctx context.Context, e *schema.Entity, where []docstore.Where, fields map[string]any) (int64, error)
	DeleteOne(ctx context.Context, e *schema.Entity, where []docstore.Where) (map[string]any, error)
	DeleteMany(ctx context.Context, e *schema.Entity, ids []string) (int64, error)
	Populate(ctx context.Context, reg *schema.Registry, e *schema.Entity, records []map[string]any, fields []string) error
}

type Handler struct {
	store    DocStore
	registry *schema.Registry
}

func NewHandler(s DocStore, reg *schema.Registry) *Handler {
	return &Handler{store: s, registry: reg}
}

// Add handles POST /api/:entity/create
func (h *Handler) Add(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}

	if details := toDetails(schema.Validate(entity, body, schema.KindCreate)); len(details) > 0 {
		return ValidationError(details)
	}

	record := creationPayload(body, actorID(c))
	created, err := h.store.Insert(c.Context(), entity, record)
	if err != nil {
		return writeError(entity, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": created})
}

// BulkInsert handles POST /api/:entity/addBulk
func (h *Handler) BulkInsert(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body struct {
		Data []map[string]any `json:"data"`
	}
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}
	if len(body.Data) == 0 {
		return BadRequestError("data must be a non-empty array")
	}

	actor := actorID(c)
	records := make([]map[string]any, len(body.Data))
	for i, draft := range body.Data {
		if details := toDetails(schema.Validate(entity, draft, schema.KindCreate)); len(details) > 0 {
			for j := range details {
				details[j].Field = fmt.Sprintf("data[%d].%s", i, details[j].Field)
			}
			return ValidationError(details)
		}
		records[i] = creationPayload(draft, actor)
	}

	count, err := h.store.InsertMany(c.Context(), entity, records)
	if err != nil {
		return writeError(entity, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// FindAll handles POST /api/:entity/list
func (h *Handler) FindAll(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body ListRequest
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}

	if details := toDetails(schema.Validate(entity, body.Query, schema.KindFilter)); len(details) > 0 {
		return ValidationError(details)
	}

	where, appErr := NormalizeFilter(entity, body.Query)
	if appErr != nil {
		return appErr
	}

	if body.IsCountOnly || isCountOnly(body.Options) {
		total, err := h.store.Count(c.Context(), entity, where)
		if err != nil {
			return fmt.Errorf("count %s: %w", entity.Name, err)
		}
		return c.JSON(fiber.Map{"data": fiber.Map{"totalRecords": total}})
	}

	q := ParseOptions(body.Options)
	q.Where = where

	records, total, err := h.store.Find(c.Context(), entity, q)
	if err != nil {
		return fmt.Errorf("list %s: %w", entity.Name, err)
	}
	if len(records) == 0 {
		return NoRecordsError(entity.Name)
	}

	if len(q.Populate) > 0 {
		if err := h.store.Populate(c.Context(), h.registry, entity, records, q.Populate); err != nil {
			return fmt.Errorf("populate %s: %w", entity.Name, err)
		}
	}

	return c.JSON(fiber.Map{
		"data": records,
		"meta": fiber.Map{
			"page":     q.Page,
			"per_page": q.PerPage,
			"total":    total,
		},
	})
}

// Get handles GET /api/:entity/:id
func (h *Handler) Get(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if !schema.IsID(id) {
		return InvalidIDError(id)
	}

	record, err := h.store.FindByID(c.Context(), entity, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return NotFoundError(entity.Name, id)
		}
		return fmt.Errorf("get %s/%s: %w", entity.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// GetCount handles POST /api/:entity/count
func (h *Handler) GetCount(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body CountRequest
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}
	filter := body.Where
	if filter == nil {
		filter = body.Query
	}

	if details := toDetails(schema.Validate(entity, filter, schema.KindFilter)); len(details) > 0 {
		return ValidationError(details)
	}

	where, appErr := NormalizeFilter(entity, filter)
	if appErr != nil {
		return appErr
	}

	total, err := h.store.Count(c.Context(), entity, where)
	if err != nil {
		return fmt.Errorf("count %s: %w", entity.Name, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"totalRecords": total}})
}

// Update handles PUT /api/:entity/update/:id
func (h *Handler) Update(c *fiber.Ctx) error {
	return h.update(c, false)
}

// PartialUpdate handles PATCH /api/:entity/partial-update/:id.
// A missing identifier is an early bad-request return; processing never
// continues past it.
func (h *Handler) PartialUpdate(c *fiber.Ctx) error {
	return h.update(c, true)
}

func (h *Handler) update(c *fiber.Ctx, partial bool) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if id == "" {
		return BadRequestError("id is required")
	}
	if !schema.IsID(id) {
		return InvalidIDError(id)
	}

	var body map[string]any
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}
	if len(body) == 0 && partial {
		return BadRequestError("no fields to update")
	}

	if details := toDetails(schema.Validate(entity, body, schema.KindUpdate)); len(details) > 0 {
		return ValidationError(details)
	}

	fields := updatePayload(body, actorID(c))
	record, err := h.store.UpdateOne(c.Context(), entity, docstore.ByID(id), fields)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return NotFoundError(entity.Name, id)
		}
		return writeError(entity, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// BulkUpdate handles PUT /api/:entity/updateBulk
func (h *Handler) BulkUpdate(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	var body BulkUpdateRequest
	if appErr := decodeBody(c, &body); appErr != nil {
		return appErr
	}
	if len(body.Data) == 0 {
		return BadRequestError("data is required")
	}

	if details := toDetails(schema.Validate(entity, body.Filter, schema.KindFilter)); len(details) > 0 {
		return ValidationError(details)
	}
	if details := toDetails(schema.Validate(entity, body.Data, schema.KindUpdate)); len(details) > 0 {
		return ValidationError(details)
	}

	where, appErr := NormalizeFilter(entity, body.Filter)
	if appErr != nil {
		return appErr
	}

	fields := updatePayload(body.Data, actorID(c))
	count, err := h.store.UpdateMany(c.Context(), entity, where, fields)
	if err != nil {
		return writeError(entity, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// SoftDelete handles PUT /api/:entity/softDelete/:id.
// Soft delete is an update policy: flip isDeleted and refresh the actor.
// Repeating the call on an already-deleted record still succeeds.
func (h *Handler) SoftDelete(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if !schema.IsID(id) {
		return InvalidIDError(id)
	}

	fields := softDeleteFields(actorID(c))
	record, err := h.store.UpdateOne(c.Context(), entity, docstore.ByID(id), fields)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return NotFoundError(entity.Name, id)
		}
		return writeError(entity, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// SoftDeleteMany handles PUT /api/:entity/softDeleteMany
func (h *Handler) SoftDeleteMany(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	ids, appErr := decodeIDList(c)
	if appErr != nil {
		return appErr
	}

	where := []docstore.Where{{Field: "id", Op: "in", Value: toAnySlice(ids)}}
	count, err := h.store.UpdateMany(c.Context(), entity, where, softDeleteFields(actorID(c)))
	if err != nil {
		return writeError(entity, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// Delete handles DELETE /api/:entity/delete/:id (physical removal)
func (h *Handler) Delete(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	id := c.Params("id")
	if !schema.IsID(id) {
		return InvalidIDError(id)
	}

	record, err := h.store.DeleteOne(c.Context(), entity, docstore.ByID(id))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return NotFoundError(entity.Name, id)
		}
		return fmt.Errorf("delete %s/%s: %w", entity.Name, id, err)
	}
	return c.JSON(fiber.Map{"data": record})
}

// DeleteMany handles POST /api/:entity/deleteMany
func (h *Handler) DeleteMany(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}

	ids, appErr := decodeIDList(c)
	if appErr != nil {
		return appErr
	}

	count, err := h.store.DeleteMany(c.Context(), entity, ids)
	if err != nil {
		return fmt.Errorf("delete many %s: %w", entity.Name, err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"count": count}})
}

// --- helpers ---

func (h *Handler) resolveEntity(c *fiber.Ctx) (*schema.Entity, error) {
	name := c.Params("entity")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownEntityError(name)
	}
	return entity, nil
}

// decodeBody parses a JSON request body, tolerating an empty body.
func decodeBody(c *fiber.Ctx, out any) *AppError {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body")
	}
	return nil
}

// decodeIDList parses and checks the {ids: [...]} body shared by the bulk
// delete actions: non-empty, every member a well-formed identifier.
func decodeIDList(c *fiber.Ctx) ([]string, *AppError) {
	var body IDListRequest
	if appErr := decodeBody(c, &body); appErr != nil {
		return nil, appErr
	}
	if len(body.IDs) == 0 {
		return nil, BadRequestError("ids must be a non-empty array")
	}
	for _, id := range body.IDs {
		if !schema.IsID(id) {
			return nil, InvalidIDError(id)
		}
	}
	return body.IDs, nil
}

func toDetails(violations []schema.Violation) []ErrorDetail {
	if len(violations) == 0 {
		return nil
	}
	details := make([]ErrorDetail, len(violations))
	for i, v := range violations {
		details[i] = ErrorDetail{Field: v.Field, Rule: v.Rule, Message: v.Message}
	}
	return details
}

// creationPayload copies the draft, drops client-supplied identifiers, and
// attaches the actor. The caller's map is left untouched.
func creationPayload(body map[string]any, actor string) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	delete(out, "id")
	delete(out, "_id")
	if actor != "" {
		out["addedBy"] = actor
	}
	return out
}

// updatePayload copies the body, strips addedBy so a record's original
// creator can never be overwritten, and refreshes the actor.
func updatePayload(body map[string]any, actor string) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	delete(out, "addedBy")
	delete(out, "id")
	delete(out, "_id")
	delete(out, "createdAt")
	delete(out, "updatedAt")
	if actor != "" {
		out["updatedBy"] = actor
	}
	return out
}

func softDeleteFields(actor string) map[string]any {
	fields := map[string]any{"isDeleted": true}
	if actor != "" {
		fields["updatedBy"] = actor
	}
	return fields
}

func isCountOnly(options map[string]any) bool {
	v, _ := options["isCountOnly"].(bool)
	return v
}

func toAnySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func writeError(e *schema.Entity, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, docstore.ErrUniqueViolation) {
		return NewAppError("CONFLICT", 409, "A record with this value already exists")
	}
	return fmt.Errorf("write %s: %w", e.Name, err)
}
