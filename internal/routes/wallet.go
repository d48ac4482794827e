package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/wallet"
)

// RegisterWalletRoutes wires wallet read endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/users/:userId/wallet", h.Wallet)
}
