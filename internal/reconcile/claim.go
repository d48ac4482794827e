package reconcile

import (
	"context"
	"time"

	"github.com/tourwallet/topup/internal/intent"
)

// IdempotencyLedger is the single serialization point for crediting: an
// intent can be claimed once, by whoever wins the PENDING to CONFIRMED swap.
type IdempotencyLedger struct {
	intents intent.Repository
	now     func() time.Time
}

// NewIdempotencyLedger builds a claim ledger over the intent store.
func NewIdempotencyLedger(intents intent.Repository) *IdempotencyLedger {
	return &IdempotencyLedger{intents: intents, now: func() time.Time { return time.Now().UTC() }}
}

// TryClaim moves the intent from PENDING to CONFIRMED. claimed is false when
// another caller got there first or the intent left PENDING some other way;
// the returned intent is the current stored state in both cases.
func (l *IdempotencyLedger) TryClaim(ctx context.Context, intentID, providerTxRef string) (intent.Intent, bool, error) {
	return l.intents.CompareAndSwap(ctx, intentID, intent.Transition{
		From:          []intent.Status{intent.StatusPending},
		To:            intent.StatusConfirmed,
		ProviderTxRef: providerTxRef,
		At:            l.now(),
	})
}
