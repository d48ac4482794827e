package notification

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// KindWalletCredited is sent after a top-up lands in a wallet.
	KindWalletCredited = "wallet_credited"
	// KindPartialCreditFailure means an intent is CONFIRMED but has no ledger entry.
	KindPartialCreditFailure = "partial_credit_failure"
	// KindIntentDisputed means an intent needs manual review.
	KindIntentDisputed = "intent_disputed"
	// KindPaymentOnClosedIntent means money arrived for an intent that can no longer be credited.
	KindPaymentOnClosedIntent = "payment_on_closed_intent"
)

// Message describes a notification payload.
type Message struct {
	Kind     string `json:"kind"`
	IntentID string `json:"intent_id,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Body     string `json:"body"`
}

// IsAlert reports whether the message needs an operator.
func (m Message) IsAlert() bool {
	return m.Kind != KindWalletCredited
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger. Alerts are logged at
// error level so they reach the on-call log filters.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.IsAlert() {
		level = slog.LevelError
	}
	n.logger.Log(ctx, level, "notification",
		"kind", message.Kind,
		"intent_id", message.IntentID,
		"user_id", message.UserID,
		"amount", message.Amount,
		"body", message.Body,
	)
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []Notifier

// Send delivers to all notifiers even if some fail.
func (m Multi) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
