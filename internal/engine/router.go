package engine

import "github.com/gofiber/fiber/v2"

// RegisterEntityRoutes mounts the twelve standard actions for every
// registered entity under /api/:entity. The update actions also accept
// the path without an identifier so a missing id is answered as a bad
// request instead of a routing miss.
func RegisterEntityRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Post("/:entity/create", h.Add)
	api.Post("/:entity/addBulk", h.BulkInsert)
	api.Post("/:entity/list", h.FindAll)
	api.Post("/:entity/count", h.GetCount)
	api.Post("/:entity/deleteMany", h.DeleteMany)
	api.Put("/:entity/update/:id", h.Update)
	api.Put("/:entity/update", h.Update)
	api.Put("/:entity/updateBulk", h.BulkUpdate)
	api.Put("/:entity/softDelete/:id", h.SoftDelete)
	api.Put("/:entity/softDeleteMany", h.SoftDeleteMany)
	api.Patch("/:entity/partial-update/:id", h.PartialUpdate)
	api.Patch("/:entity/partial-update", h.PartialUpdate)
	api.Delete("/:entity/delete/:id", h.Delete)
	api.Get("/:entity/:id", h.Get)
}
