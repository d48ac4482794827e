package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/intent"
)

// RegisterIntentRoutes wires top-up intent endpoints. idem may be nil.
func RegisterIntentRoutes(r fiber.Router, h *intent.Handler, idem fiber.Handler) {
	create := []fiber.Handler{h.Create}
	if idem != nil {
		create = append([]fiber.Handler{idem}, create...)
	}
	r.Post("/intents", create...)
	r.Get("/intents/:intentId", h.Get)
	r.Post("/intents/:intentId/cancel", h.Cancel)
}
