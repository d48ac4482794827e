package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/provider"
)

// Processor runs an inbound callback through verification, matching and
// crediting.
type Processor interface {
	HandleWebhook(ctx context.Context, kind provider.Kind, raw []byte, headers http.Header) (Result, error)
}

// Handler serves POST /webhooks/:provider.
type Handler struct {
	processor Processor
}

// NewHandler builds the webhook HTTP handler.
func NewHandler(processor Processor) *Handler {
	return &Handler{processor: processor}
}

// Receive accepts one provider callback.
func (h *Handler) Receive(c *fiber.Ctx) error {
	kind, err := provider.ParseKind(c.Params("provider"))
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}

	raw := append([]byte(nil), c.Body()...)
	headers := http.Header{}
	for k, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(k, v)
		}
	}

	res, err := h.processor.HandleWebhook(c.UserContext(), kind, raw, headers)
	return respond(c, kind, res, err)
}

func respond(c *fiber.Ctx, kind provider.Kind, res Result, err error) error {
	switch {
	case errors.Is(err, provider.ErrSignatureInvalid):
		return fiber.NewError(http.StatusBadRequest, "signature invalid")
	case errors.Is(err, provider.ErrUnknownProvider):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "webhook processing failed")
	}

	switch res.Outcome {
	case OutcomeCredited:
		return c.JSON(fiber.Map{"status": "credited", "event_id": res.EventID})
	case OutcomeDuplicateIgnored:
		return c.JSON(fiber.Map{"status": "duplicate_ignored", "event_id": res.EventID})
	case OutcomeRejectedAmountMismatch:
		return c.Status(http.StatusConflict).JSON(fiber.Map{"error": "amount mismatch", "event_id": res.EventID})
	case OutcomeNoMatch:
		// Transfers into the aggregator account are often unrelated to any
		// intent; a 404 would make the aggregator retry them forever.
		if kind == provider.KindBankAggregator {
			return c.JSON(fiber.Map{"status": "no_match", "event_id": res.EventID})
		}
		return c.Status(http.StatusNotFound).JSON(fiber.Map{"error": "unknown order code", "event_id": res.EventID})
	case OutcomeCreditFailed:
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "credit failed", "event_id": res.EventID})
	}
	return c.JSON(fiber.Map{"status": "acknowledged", "event_id": res.EventID})
}
