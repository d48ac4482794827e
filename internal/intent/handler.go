package intent

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/api"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/wallet"
)

// Handler exposes payment intent endpoints.
type Handler struct {
	registry *Registry
}

// NewHandler builds an intent HTTP handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

type createRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0"`
	Provider string `json:"provider" validate:"required,oneof=MOBILE_WALLET BANK_QR BANK_AGGREGATOR momo payos casso"`
}

// Create opens a payment intent and returns how the user should pay.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := api.ParseAndValidate(c, &req); err != nil {
		return err
	}
	kind, err := provider.ParseKind(req.Provider)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	in, err := h.registry.Create(c.UserContext(), CreateInput{UserID: req.UserID, Amount: req.Amount, Provider: kind})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(in)
}

// Get returns one intent.
func (h *Handler) Get(c *fiber.Ctx) error {
	in, err := h.registry.Get(c.UserContext(), c.Params("intentId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(in)
}

// Cancel cancels an intent that has not been paid.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	in, err := h.registry.Cancel(c.UserContext(), c.Params("intentId"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(in)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, wallet.ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAmountOutOfRange), errors.Is(err, provider.ErrUnknownProvider):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrNotCancellable):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrProviderUnavailable):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return err
}
