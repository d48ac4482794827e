package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/reconcile"
)

// RegisterOperatorRoutes wires the operator reconciliation endpoints.
func RegisterOperatorRoutes(r fiber.Router, h *reconcile.OperatorHandler) {
	r.Post("/intents/:intentId/reconcile", h.Reconcile)
	r.Get("/intents", h.ListIntents)
	r.Get("/intents/:intentId/events", h.IntentEvents)
	r.Get("/events", h.ListEvents)
	r.Post("/sweep", h.Sweep)
}
