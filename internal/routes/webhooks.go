package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/webhook"
)

// RegisterWebhookRoutes wires the provider callback endpoint.
func RegisterWebhookRoutes(r fiber.Router, h *webhook.Handler) {
	r.Post("/:provider", h.Receive)
}
