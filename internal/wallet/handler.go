package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Wallet returns the balance and recent ledger entries of a user.
func (h *Handler) Wallet(c *fiber.Ctx) error {
	userID := c.Params("userId")
	balance, err := h.service.Balance(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	entries, err := h.service.Entries(c.UserContext(), userID, c.QueryInt("limit", 20))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":   balance.UserID,
		"balance":   balance.Amount,
		"currency":  balance.Currency,
		"entries":   entries,
		"timestamp": balance.AsOf,
	})
}
