// Package intent owns payment intents: their creation at a provider and every
// status transition, each applied as a compare-and-swap on the current status.
package intent

import (
	"errors"
	"time"

	"github.com/tourwallet/topup/internal/provider"
)

var (
	ErrNotFound          = errors.New("payment intent not found")
	ErrAmountOutOfRange  = errors.New("amount out of range for provider")
	ErrNotCancellable    = errors.New("payment intent can no longer be cancelled")
	ErrInvalidTransition = errors.New("invalid payment intent transition")
	ErrDuplicateOrder    = errors.New("order code already used for provider")
)

// Status is the lifecycle state of an intent.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDisputed  Status = "DISPUTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusCreated: {StatusPending, StatusCancelled},
	StatusPending: {StatusConfirmed, StatusDisputed, StatusExpired, StatusCancelled},
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusCreated, StatusPending, StatusConfirmed, StatusDisputed, StatusExpired, StatusCancelled:
		return st, true
	}
	return "", false
}

// Intent is the system's record that a user wants to add funds.
type Intent struct {
	ID            string                  `json:"id"`
	UserID        string                  `json:"user_id"`
	Provider      provider.Kind           `json:"provider"`
	OrderCode     string                  `json:"order_code"`
	Amount        int64                   `json:"amount_requested"`
	Currency      string                  `json:"currency"`
	Status        Status                  `json:"status"`
	StatusReason  string                  `json:"status_reason,omitempty"`
	Target        *provider.PaymentTarget `json:"payment_target,omitempty"`
	ProviderTxRef string                  `json:"provider_transaction_ref,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
	ConfirmedAt   *time.Time              `json:"confirmed_at,omitempty"`
}

// Transition describes a compare-and-swap on an intent's status.
type Transition struct {
	From          []Status
	To            Status
	Reason        string
	ProviderTxRef string
	Target        *provider.PaymentTarget
	At            time.Time
}

func (t Transition) allows(current Status) bool {
	for _, s := range t.From {
		if s == current && CanTransition(s, t.To) {
			return true
		}
	}
	return false
}

func (t Transition) valid() bool {
	for _, s := range t.From {
		if CanTransition(s, t.To) {
			return true
		}
	}
	return false
}

// apply returns in with the transition's fields written.
func (t Transition) apply(in Intent) Intent {
	in.Status = t.To
	in.UpdatedAt = t.At
	if t.Reason != "" {
		in.StatusReason = t.Reason
	}
	if t.ProviderTxRef != "" {
		in.ProviderTxRef = t.ProviderTxRef
	}
	if t.Target != nil {
		in.Target = t.Target
	}
	if t.To == StatusConfirmed {
		at := t.At
		in.ConfirmedAt = &at
	}
	return in
}

// ListFilter selects intents for pollers, sweepers and operators.
type ListFilter struct {
	Status          Status
	Provider        provider.Kind
	CreatedBefore   time.Time
	ConfirmedBefore time.Time
	ConfirmedAfter  time.Time
	Limit           int
}

func (f ListFilter) matches(in Intent) bool {
	if f.Status != "" && in.Status != f.Status {
		return false
	}
	if f.Provider != "" && in.Provider != f.Provider {
		return false
	}
	if !f.CreatedBefore.IsZero() && !in.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	if !f.ConfirmedBefore.IsZero() && (in.ConfirmedAt == nil || !in.ConfirmedAt.Before(f.ConfirmedBefore)) {
		return false
	}
	if !f.ConfirmedAfter.IsZero() && (in.ConfirmedAt == nil || in.ConfirmedAt.Before(f.ConfirmedAfter)) {
		return false
	}
	return true
}
