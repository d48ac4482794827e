package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/wallet"
)

// Users resolves wallet owners.
type Users interface {
	GetUser(ctx context.Context, id string) (wallet.User, error)
}

// RegistryConfig tunes intent creation.
type RegistryConfig struct {
	Currency    string
	Description string
	Retry       provider.RetryPolicy
}

// Registry creates intents and owns their status transitions.
type Registry struct {
	repo     Repository
	adapters provider.Set
	users    Users
	codes    *OrderCodes
	cfg      RegistryConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewRegistry builds a Registry.
func NewRegistry(repo Repository, adapters provider.Set, users Users, codes *OrderCodes, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if cfg.Currency == "" {
		cfg.Currency = "VND"
	}
	if cfg.Description == "" {
		cfg.Description = "Nap vi"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = provider.DefaultRetryPolicy()
	}
	return &Registry{
		repo:     repo,
		adapters: adapters,
		users:    users,
		codes:    codes,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput captures data required to open a payment intent.
type CreateInput struct {
	UserID   string
	Amount   int64
	Provider provider.Kind
}

// Create persists a CREATED intent, opens the payment at the provider and
// moves the intent to PENDING. If the provider cannot be reached after the
// retry budget the intent is CANCELLED and the provider error is returned.
func (r *Registry) Create(ctx context.Context, input CreateInput) (Intent, error) {
	adapter, err := r.adapters.Get(input.Provider)
	if err != nil {
		return Intent{}, err
	}
	if !adapter.Bounds().Contains(input.Amount) {
		b := adapter.Bounds()
		return Intent{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfRange, input.Amount, b.Min, b.Max)
	}
	if _, err := r.users.GetUser(ctx, input.UserID); err != nil {
		return Intent{}, err
	}

	now := r.now()
	in := Intent{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Provider:  input.Provider,
		OrderCode: r.codes.Next(input.Provider),
		Amount:    input.Amount,
		Currency:  r.cfg.Currency,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.repo.Create(ctx, in); err != nil {
		return Intent{}, fmt.Errorf("persist intent: %w", err)
	}

	var target provider.PaymentTarget
	err = provider.Retry(ctx, r.cfg.Retry, func(ctx context.Context) error {
		var callErr error
		target, callErr = adapter.CreatePaymentRequest(ctx, provider.PaymentRequest{
			IntentID:    in.ID,
			OrderCode:   in.OrderCode,
			Amount:      in.Amount,
			Description: r.cfg.Description + " " + in.OrderCode,
		})
		return callErr
	})
	if err != nil {
		r.logger.Warn("provider rejected payment request", "intent_id", in.ID, "provider", in.Provider, "error", err)
		if _, _, cerr := r.repo.CompareAndSwap(ctx, in.ID, Transition{
			From: []Status{StatusCreated}, To: StatusCancelled, Reason: "provider create failed", At: r.now(),
		}); cerr != nil {
			r.logger.Error("cancel intent after create failure", "intent_id", in.ID, "error", cerr)
		}
		if errors.Is(err, provider.ErrInvalidAmount) {
			return Intent{}, fmt.Errorf("%w: %v", ErrAmountOutOfRange, err)
		}
		return Intent{}, err
	}

	updated, swapped, err := r.repo.CompareAndSwap(ctx, in.ID, Transition{
		From: []Status{StatusCreated}, To: StatusPending, Target: &target, At: r.now(),
	})
	if err != nil {
		return Intent{}, fmt.Errorf("mark intent pending: %w", err)
	}
	if !swapped {
		return Intent{}, fmt.Errorf("%w: intent %s is %s", ErrInvalidTransition, in.ID, updated.Status)
	}

	r.logger.Info("payment intent created",
		"intent_id", updated.ID,
		"provider", updated.Provider,
		"order_code", updated.OrderCode,
		"amount", updated.Amount,
	)
	return updated, nil
}

// Get retrieves an intent.
func (r *Registry) Get(ctx context.Context, id string) (Intent, error) {
	return r.repo.Get(ctx, id)
}

// GetByOrderCode resolves a provider order code.
func (r *Registry) GetByOrderCode(ctx context.Context, kind provider.Kind, orderCode string) (Intent, error) {
	return r.repo.GetByOrderCode(ctx, kind, orderCode)
}

// List returns intents matching the filter.
func (r *Registry) List(ctx context.Context, f ListFilter) ([]Intent, error) {
	return r.repo.List(ctx, f)
}

// Cancel moves a CREATED or PENDING intent to CANCELLED.
func (r *Registry) Cancel(ctx context.Context, id string) (Intent, error) {
	updated, swapped, err := r.repo.CompareAndSwap(ctx, id, Transition{
		From:   []Status{StatusCreated, StatusPending},
		To:     StatusCancelled,
		Reason: "cancelled by caller",
		At:     r.now(),
	})
	if err != nil {
		return Intent{}, err
	}
	if !swapped {
		return updated, fmt.Errorf("%w: status %s", ErrNotCancellable, updated.Status)
	}
	return updated, nil
}

// Resolve moves a PENDING intent to a terminal non-confirmed state. swapped is
// false when the intent had already left PENDING; the current intent is
// returned either way.
func (r *Registry) Resolve(ctx context.Context, id string, to Status, reason string) (Intent, bool, error) {
	if to == StatusConfirmed || !CanTransition(StatusPending, to) {
		return Intent{}, false, fmt.Errorf("%w: resolve to %s", ErrInvalidTransition, to)
	}
	updated, swapped, err := r.repo.CompareAndSwap(ctx, id, Transition{
		From: []Status{StatusPending}, To: to, Reason: reason, At: r.now(),
	})
	if err != nil {
		return Intent{}, false, err
	}
	if swapped {
		r.logger.Info("payment intent resolved", "intent_id", id, "status", to, "reason", reason)
	}
	return updated, swapped, nil
}
