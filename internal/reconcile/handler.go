package reconcile

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/webhook"
)

// OperatorHandler exposes manual reconciliation and audit endpoints.
type OperatorHandler struct {
	engine  *Engine
	intents *intent.Registry
	events  webhook.Repository
	sweeper *Sweeper
}

// NewOperatorHandler builds the operator HTTP handler.
func NewOperatorHandler(engine *Engine, intents *intent.Registry, events webhook.Repository, sweeper *Sweeper) *OperatorHandler {
	return &OperatorHandler{engine: engine, intents: intents, events: events, sweeper: sweeper}
}

type reconcileResponse struct {
	IntentID string          `json:"intent_id"`
	Outcome  webhook.Outcome `json:"outcome,omitempty"`
	EventID  string          `json:"event_id,omitempty"`
	Detail   string          `json:"detail,omitempty"`
	Status   intent.Status   `json:"status"`
}

// Reconcile forces an immediate status query and claim attempt.
func (h *OperatorHandler) Reconcile(c *fiber.Ctx) error {
	id := c.Params("intentId")
	res, err := h.engine.Reconcile(c.UserContext(), id, webhook.SourceManual)
	switch {
	case errors.Is(err, intent.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotPending):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, provider.ErrProviderUnavailable):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrIncompleteHistory):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrPartialCreditFailure):
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "event_id": res.EventID})
	case err != nil:
		return err
	}

	current, err := h.intents.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(reconcileResponse{
		IntentID: id,
		Outcome:  res.Outcome,
		EventID:  res.EventID,
		Detail:   res.Detail,
		Status:   current.Status,
	})
}

// ListIntents lists intents by status and provider, e.g. ?status=DISPUTED.
func (h *OperatorHandler) ListIntents(c *fiber.Ctx) error {
	filter := intent.ListFilter{Limit: c.QueryInt("limit", 100)}
	if raw := c.Query("status"); raw != "" {
		status, ok := intent.ParseStatus(raw)
		if !ok {
			return fiber.NewError(http.StatusBadRequest, "unknown status "+raw)
		}
		filter.Status = status
	}
	if raw := c.Query("provider"); raw != "" {
		kind, err := provider.ParseKind(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		filter.Provider = kind
	}

	list, err := h.intents.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if list == nil {
		list = []intent.Intent{}
	}
	return c.JSON(fiber.Map{"intents": list})
}

// IntentEvents returns the audit trail of one intent.
func (h *OperatorHandler) IntentEvents(c *fiber.Ctx) error {
	id := c.Params("intentId")
	if _, err := h.intents.Get(c.UserContext(), id); err != nil {
		if errors.Is(err, intent.ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	events, err := h.events.ListByIntent(c.UserContext(), id)
	if err != nil {
		return err
	}
	if events == nil {
		events = []webhook.Event{}
	}
	return c.JSON(fiber.Map{"events": events})
}

// ListEvents returns recent events, optionally filtered by outcome and provider.
func (h *OperatorHandler) ListEvents(c *fiber.Ctx) error {
	filter := webhook.ListFilter{
		Outcome: webhook.Outcome(c.Query("outcome")),
		Limit:   c.QueryInt("limit", 100),
	}
	if raw := c.Query("provider"); raw != "" {
		kind, err := provider.ParseKind(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		filter.Provider = kind
	}
	events, err := h.events.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	if events == nil {
		events = []webhook.Event{}
	}
	return c.JSON(fiber.Map{"events": events})
}

// Sweep runs the credit consistency sweep now.
func (h *OperatorHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.sweeper.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(report)
}
