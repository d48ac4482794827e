// Package reconcile turns verified provider observations into at most one
// wallet credit per intent. Webhooks, poller ticks and operator requests all
// go through the same claim then credit path.
package reconcile

import "errors"

var (
	// ErrAmountMismatch means the provider reported an amount other than the
	// one requested. The intent is disputed, never auto-corrected.
	ErrAmountMismatch = errors.New("amount mismatch")

	// ErrAmbiguousMatch means more than one bank transaction matched an
	// aggregator intent.
	ErrAmbiguousMatch = errors.New("ambiguous bank transaction match")

	// ErrPartialCreditFailure means the intent was claimed (CONFIRMED) but the
	// wallet credit failed. It is alerted and never retried automatically.
	ErrPartialCreditFailure = errors.New("intent confirmed but wallet credit failed")

	// ErrNotPending is returned when a manual reconciliation targets an intent
	// that already left PENDING.
	ErrNotPending = errors.New("payment intent is not pending")

	// ErrIncompleteHistory means the aggregator returned only part of the
	// transaction history, so an absent or single match proves nothing.
	ErrIncompleteHistory = errors.New("aggregator transaction history truncated")
)
