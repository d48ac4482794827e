package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tourwallet/topup/internal/provider"
)

// Verifier dispatches inbound callbacks to the matching adapter and records
// every rejection. A rejected callback never changes intent state.
type Verifier struct {
	adapters provider.Set
	events   Repository
	logger   *slog.Logger
	now      func() time.Time
}

// NewVerifier builds a Verifier.
func NewVerifier(adapters provider.Set, events Repository, logger *slog.Logger) *Verifier {
	return &Verifier{
		adapters: adapters,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Verify authenticates raw. On failure a REJECTED_SIGNATURE event is appended
// and returned in Result alongside an error wrapping
// provider.ErrSignatureInvalid. Unparseable bodies count as unauthenticated.
func (v *Verifier) Verify(ctx context.Context, kind provider.Kind, raw []byte, headers http.Header) (provider.VerificationResult, Result, error) {
	adapter, err := v.adapters.Get(kind)
	if err != nil {
		return provider.VerificationResult{}, Result{}, err
	}

	res, err := adapter.VerifyWebhook(raw, headers)
	if err == nil {
		return res, Result{}, nil
	}
	if !errors.Is(err, provider.ErrSignatureInvalid) {
		err = fmt.Errorf("%w: %v", provider.ErrSignatureInvalid, err)
	}

	event := Event{
		ID:         NewEventID(),
		Provider:   kind,
		Source:     SourceWebhook,
		RawPayload: raw,
		ReceivedAt: v.now(),
		Verified:   false,
		Outcome:    OutcomeRejectedSignature,
		Detail:     err.Error(),
	}
	if aerr := v.events.Append(ctx, event); aerr != nil {
		v.logger.Error("record rejected webhook", "provider", kind, "error", aerr)
	}
	v.logger.Warn("webhook signature rejected", "provider", kind, "event_id", event.ID, "error", err)
	return provider.VerificationResult{}, Result{Outcome: OutcomeRejectedSignature, EventID: event.ID}, err
}
