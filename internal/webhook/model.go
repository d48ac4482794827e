// Package webhook receives provider callbacks, authenticates them and keeps
// the append-only audit trail of every inbound or polled provider observation.
package webhook

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tourwallet/topup/internal/provider"
)

// Outcome records what the system did with a provider observation.
type Outcome string

const (
	OutcomeCredited               Outcome = "CREDITED"
	OutcomeDuplicateIgnored       Outcome = "DUPLICATE_IGNORED"
	OutcomeRejectedSignature      Outcome = "REJECTED_SIGNATURE"
	OutcomeRejectedAmountMismatch Outcome = "REJECTED_AMOUNT_MISMATCH"
	OutcomeNoMatch                Outcome = "NO_MATCH"
	OutcomeDisputedAmbiguous      Outcome = "DISPUTED_AMBIGUOUS"
	OutcomeNotPaid                Outcome = "NOT_PAID"
	OutcomeNotClaimable           Outcome = "NOT_CLAIMABLE"
	OutcomeCreditFailed           Outcome = "CREDIT_FAILED"
	OutcomeExpired                Outcome = "EXPIRED"
	// OutcomeAwaitingPayment: the provider reports the payment as still in
	// flight; the intent stays PENDING.
	OutcomeAwaitingPayment Outcome = "AWAITING_PAYMENT"
	// OutcomeProcessingError: an authenticated call could not be processed,
	// for example because the intent store was unreachable.
	OutcomeProcessingError Outcome = "PROCESSING_ERROR"
)

// Source tells how the observation reached us.
type Source string

const (
	SourceWebhook Source = "WEBHOOK"
	SourcePoll    Source = "POLL"
	SourceManual  Source = "MANUAL"
)

// Event is one row of provider_webhook_events. Events are never updated.
type Event struct {
	ID              string        `json:"id"`
	Provider        provider.Kind `json:"provider"`
	Source          Source        `json:"source"`
	RawPayload      []byte        `json:"raw_payload"`
	SignatureHeader string        `json:"signature_header,omitempty"`
	ReceivedAt      time.Time     `json:"received_at"`
	Verified        bool          `json:"verified"`
	MatchedIntentID string        `json:"matched_intent_id,omitempty"`
	Outcome         Outcome       `json:"outcome"`
	Detail          string        `json:"detail,omitempty"`
}

// Result is what processing one observation produced.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	IntentID string  `json:"intent_id,omitempty"`
	EventID  string  `json:"event_id,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// NewEventID returns a time-sortable event identifier.
func NewEventID() string {
	return ulid.Make().String()
}
