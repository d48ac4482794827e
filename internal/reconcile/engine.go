package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/notification"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/webhook"
)

// Accountant credits wallets. ledger.Accountant satisfies it.
type Accountant interface {
	Credit(ctx context.Context, userID string, amount int64, intentID string) (ledger.Entry, error)
}

// Config tunes the engine.
type Config struct {
	Matcher MatcherConfig
	// IntentTimeout is how long an intent may stay PENDING before it expires.
	IntentTimeout time.Duration
	Retry         provider.RetryPolicy
}

// Engine is the shared verify, match, claim and credit path.
type Engine struct {
	adapters   provider.Set
	verifier   *webhook.Verifier
	events     webhook.Repository
	intents    *intent.Registry
	claims     *IdempotencyLedger
	accountant Accountant
	matcher    *CassoMatcher
	notifier   notification.Notifier
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// Deps groups the engine's collaborators.
type Deps struct {
	Adapters   provider.Set
	Verifier   *webhook.Verifier
	Events     webhook.Repository
	Intents    *intent.Registry
	Claims     *IdempotencyLedger
	Accountant Accountant
	Notifier   notification.Notifier
	Logger     *slog.Logger
}

// NewEngine builds an Engine.
func NewEngine(d Deps, cfg Config) *Engine {
	if cfg.IntentTimeout <= 0 {
		cfg.IntentTimeout = 24 * time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = provider.DefaultRetryPolicy()
	}
	return &Engine{
		adapters:   d.Adapters,
		verifier:   d.Verifier,
		events:     d.Events,
		intents:    d.Intents,
		claims:     d.Claims,
		accountant: d.Accountant,
		matcher:    NewCassoMatcher(cfg.Matcher),
		notifier:   d.Notifier,
		cfg:        cfg,
		logger:     d.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// observation is a provider-confirmed payment for one intent.
type observation struct {
	amount int64
	txRef  string
}

// HandleWebhook authenticates and processes one inbound callback. Exactly one
// event is recorded per call. A signature failure returns an error wrapping
// provider.ErrSignatureInvalid; a failed credit after a successful claim
// returns ErrPartialCreditFailure. Business outcomes such as duplicates or
// amount mismatches are reported through Result with a nil error.
func (e *Engine) HandleWebhook(ctx context.Context, kind provider.Kind, raw []byte, headers http.Header) (webhook.Result, error) {
	receivedAt := e.now()
	vr, rejected, err := e.verifier.Verify(ctx, kind, raw, headers)
	if err != nil {
		return rejected, err
	}

	var res webhook.Result
	if kind == provider.KindBankAggregator {
		res, err = e.handleTransfers(ctx, vr.Transactions)
	} else {
		res, err = e.handleNotification(ctx, kind, vr)
	}
	if err != nil && res.Outcome == "" {
		res = webhook.Result{Outcome: webhook.OutcomeProcessingError, IntentID: res.IntentID, Detail: err.Error()}
	}

	event := webhook.Event{
		ID:              webhook.NewEventID(),
		Provider:        kind,
		Source:          webhook.SourceWebhook,
		RawPayload:      raw,
		SignatureHeader: vr.Signature,
		ReceivedAt:      receivedAt,
		Verified:        true,
		MatchedIntentID: res.IntentID,
		Outcome:         res.Outcome,
		Detail:          res.Detail,
	}
	res.EventID = event.ID
	if aerr := e.events.Append(ctx, event); aerr != nil {
		e.logger.Error("record webhook event", "provider", kind, "intent_id", res.IntentID, "outcome", res.Outcome, "error", aerr)
	}
	e.logger.Info("webhook processed", "provider", kind, "intent_id", res.IntentID, "outcome", res.Outcome, "event_id", event.ID)
	return res, err
}

func (e *Engine) handleNotification(ctx context.Context, kind provider.Kind, vr provider.VerificationResult) (webhook.Result, error) {
	in, err := e.intents.GetByOrderCode(ctx, kind, vr.OrderCode)
	if errors.Is(err, intent.ErrNotFound) {
		return webhook.Result{Outcome: webhook.OutcomeNoMatch, Detail: "unknown order code " + vr.OrderCode}, nil
	}
	if err != nil {
		return webhook.Result{}, fmt.Errorf("lookup intent: %w", err)
	}

	switch vr.State {
	case provider.RemotePaid:
		return e.settle(ctx, in, observation{amount: vr.Amount, txRef: vr.TransactionRef})
	case provider.RemotePending:
		return webhook.Result{
			Outcome:  webhook.OutcomeAwaitingPayment,
			IntentID: in.ID,
			Detail:   "provider reports payment in progress",
		}, nil
	}
	return e.markNotPaid(ctx, in, "provider reported payment not completed")
}

// handleTransfers correlates an aggregator batch with every intent whose
// token appears in it and folds the per-intent outcomes into one result.
func (e *Engine) handleTransfers(ctx context.Context, txs []provider.BankTransaction) (webhook.Result, error) {
	var tokens []string
	seen := map[string]bool{}
	for _, tx := range txs {
		for _, tok := range intent.ExtractTokens(tx.Description) {
			if !seen[tok] {
				seen[tok] = true
				tokens = append(tokens, tok)
			}
		}
	}

	var (
		results []webhook.Result
		errs    []error
	)
	for _, tok := range tokens {
		in, err := e.intents.GetByOrderCode(ctx, provider.KindBankAggregator, tok)
		if errors.Is(err, intent.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("lookup intent %s: %w", tok, err))
			continue
		}
		res, err := e.matchAndSettle(ctx, in, txs)
		if err != nil {
			errs = append(errs, err)
		}
		if res.Outcome != "" {
			results = append(results, res)
		}
	}

	if len(results) == 0 {
		return webhook.Result{
			Outcome: webhook.OutcomeNoMatch,
			Detail:  fmt.Sprintf("%d transactions, no intent token matched", len(txs)),
		}, errors.Join(errs...)
	}
	return aggregate(results), errors.Join(errs...)
}

// matchAndSettle runs the matcher for one aggregator intent. A zero-match
// result leaves the intent untouched.
func (e *Engine) matchAndSettle(ctx context.Context, in intent.Intent, txs []provider.BankTransaction) (webhook.Result, error) {
	matches := e.matcher.Match(in, txs)
	switch len(matches) {
	case 0:
		return webhook.Result{
			Outcome:  webhook.OutcomeNoMatch,
			IntentID: in.ID,
			Detail:   "token seen but no transaction within amount and time window",
		}, nil
	case 1:
		// The matcher already bounded the amount by epsilon; the requested
		// amount is what gets credited.
		return e.settle(ctx, in, observation{amount: in.Amount, txRef: matches[0].Ref})
	}
	return e.disputeAmbiguous(ctx, in, matches)
}

func (e *Engine) disputeAmbiguous(ctx context.Context, in intent.Intent, matches []provider.BankTransaction) (webhook.Result, error) {
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m.Ref)
	}
	detail := fmt.Sprintf("%v: %d candidates [%s]", ErrAmbiguousMatch, len(matches), strings.Join(refs, ","))

	if in.Status != intent.StatusPending {
		if in.Status == intent.StatusDisputed {
			return webhook.Result{Outcome: webhook.OutcomeDisputedAmbiguous, IntentID: in.ID, Detail: detail}, nil
		}
		return e.closed(ctx, in, "")
	}

	updated, swapped, err := e.intents.Resolve(ctx, in.ID, intent.StatusDisputed, detail)
	if err != nil {
		return webhook.Result{}, fmt.Errorf("dispute intent: %w", err)
	}
	if !swapped {
		return e.closed(ctx, updated, "")
	}
	e.alert(ctx, notification.Message{
		Kind:     notification.KindIntentDisputed,
		IntentID: in.ID,
		UserID:   in.UserID,
		Amount:   in.Amount,
		Body:     detail,
	})
	return webhook.Result{Outcome: webhook.OutcomeDisputedAmbiguous, IntentID: in.ID, Detail: detail}, nil
}

// settle applies a confirmed payment to an intent: amount check, claim, then
// credit. It records nothing; callers record one event for the whole call.
func (e *Engine) settle(ctx context.Context, in intent.Intent, obs observation) (webhook.Result, error) {
	if in.Status == intent.StatusDisputed && obs.amount != in.Amount {
		// Replay of the notification that disputed the intent.
		return webhook.Result{
			Outcome:  webhook.OutcomeRejectedAmountMismatch,
			IntentID: in.ID,
			Detail:   fmt.Sprintf("%v: requested %d, provider reported %d", ErrAmountMismatch, in.Amount, obs.amount),
		}, nil
	}
	if in.Status != intent.StatusPending {
		return e.closed(ctx, in, obs.txRef)
	}

	if obs.amount != in.Amount {
		detail := fmt.Sprintf("%v: requested %d, provider reported %d", ErrAmountMismatch, in.Amount, obs.amount)
		_, swapped, err := e.intents.Resolve(ctx, in.ID, intent.StatusDisputed, detail)
		if err != nil {
			return webhook.Result{}, fmt.Errorf("dispute intent: %w", err)
		}
		if swapped {
			e.alert(ctx, notification.Message{
				Kind:     notification.KindIntentDisputed,
				IntentID: in.ID,
				UserID:   in.UserID,
				Amount:   obs.amount,
				Body:     detail,
			})
		}
		return webhook.Result{Outcome: webhook.OutcomeRejectedAmountMismatch, IntentID: in.ID, Detail: detail}, nil
	}

	current, claimed, err := e.claims.TryClaim(ctx, in.ID, obs.txRef)
	if err != nil {
		return webhook.Result{}, fmt.Errorf("claim intent: %w", err)
	}
	if !claimed {
		return e.closed(ctx, current, obs.txRef)
	}

	entry, err := e.accountant.Credit(ctx, current.UserID, current.Amount, current.ID)
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		e.logger.Warn("claimed intent already had a ledger entry", "intent_id", current.ID, "entry_id", entry.ID)
	case err != nil:
		e.logger.Error("wallet credit failed after claim", "intent_id", current.ID, "user_id", current.UserID, "error", err)
		e.alert(ctx, notification.Message{
			Kind:     notification.KindPartialCreditFailure,
			IntentID: current.ID,
			UserID:   current.UserID,
			Amount:   current.Amount,
			Body:     err.Error(),
		})
		return webhook.Result{Outcome: webhook.OutcomeCreditFailed, IntentID: current.ID, Detail: err.Error()},
			fmt.Errorf("%w: intent %s: %v", ErrPartialCreditFailure, current.ID, err)
	default:
		e.notify(ctx, notification.Message{
			Kind:     notification.KindWalletCredited,
			IntentID: current.ID,
			UserID:   current.UserID,
			Amount:   current.Amount,
			Body:     fmt.Sprintf("balance %d", entry.BalanceAfter),
		})
	}
	return webhook.Result{Outcome: webhook.OutcomeCredited, IntentID: current.ID, Detail: "ledger entry " + entry.ID}, nil
}

// closed classifies a payment seen for an intent that is no longer PENDING.
func (e *Engine) closed(ctx context.Context, in intent.Intent, txRef string) (webhook.Result, error) {
	if in.Status == intent.StatusConfirmed && (txRef == "" || in.ProviderTxRef == "" || txRef == in.ProviderTxRef) {
		return webhook.Result{Outcome: webhook.OutcomeDuplicateIgnored, IntentID: in.ID}, nil
	}

	detail := fmt.Sprintf("payment %s observed for %s intent", txRef, in.Status)
	e.alert(ctx, notification.Message{
		Kind:     notification.KindPaymentOnClosedIntent,
		IntentID: in.ID,
		UserID:   in.UserID,
		Amount:   in.Amount,
		Body:     detail,
	})
	return webhook.Result{Outcome: webhook.OutcomeNotClaimable, IntentID: in.ID, Detail: detail}, nil
}

func (e *Engine) markNotPaid(ctx context.Context, in intent.Intent, reason string) (webhook.Result, error) {
	if in.Status == intent.StatusPending {
		if _, _, err := e.intents.Resolve(ctx, in.ID, intent.StatusCancelled, reason); err != nil {
			return webhook.Result{}, fmt.Errorf("cancel intent: %w", err)
		}
	}
	return webhook.Result{Outcome: webhook.OutcomeNotPaid, IntentID: in.ID, Detail: reason}, nil
}

// Reconcile queries the provider for one PENDING intent and applies what it
// reports. Result.Outcome is empty when the provider still reports the
// payment as pending; no event is recorded in that case.
func (e *Engine) Reconcile(ctx context.Context, intentID string, source webhook.Source) (webhook.Result, error) {
	in, err := e.intents.Get(ctx, intentID)
	if err != nil {
		return webhook.Result{}, err
	}
	if in.Status != intent.StatusPending {
		return webhook.Result{IntentID: in.ID}, fmt.Errorf("%w: status %s", ErrNotPending, in.Status)
	}
	return e.check(ctx, in, source)
}

func (e *Engine) check(ctx context.Context, in intent.Intent, source webhook.Source) (webhook.Result, error) {
	adapter, err := e.adapters.Get(in.Provider)
	if err != nil {
		return webhook.Result{}, err
	}
	overdue := e.now().Sub(in.CreatedAt) > e.cfg.IntentTimeout

	var status provider.RemoteStatus
	err = provider.Retry(ctx, e.cfg.Retry, func(ctx context.Context) error {
		var qerr error
		status, qerr = adapter.QueryStatus(ctx, provider.QueryRequest{
			OrderCode: in.OrderCode,
			Amount:    in.Amount,
			CreatedAt: in.CreatedAt,
		})
		return qerr
	})
	if err != nil {
		if !overdue {
			return webhook.Result{IntentID: in.ID}, fmt.Errorf("query %s: %w", in.Provider.Slug(), err)
		}
		e.logger.Warn("status query failed for overdue intent, expiring", "intent_id", in.ID, "error", err)
		status = provider.RemoteStatus{State: provider.RemotePending}
	}

	if status.Truncated && len(e.matcher.Match(in, status.Transactions)) < 2 {
		// Unseen transfers could hold the payment or a second candidate.
		return webhook.Result{IntentID: in.ID}, fmt.Errorf("%w: %d transactions fetched for %s",
			ErrIncompleteHistory, len(status.Transactions), in.ID)
	}

	var res webhook.Result
	switch {
	case in.Provider == provider.KindBankAggregator:
		res, err = e.matchAndSettle(ctx, in, status.Transactions)
		if res.Outcome == webhook.OutcomeNoMatch {
			res = webhook.Result{}
		}
	case status.State == provider.RemotePaid:
		res, err = e.settle(ctx, in, observation{amount: status.Amount, txRef: status.TransactionRef})
	case status.State == provider.RemoteFailed:
		res, err = e.markNotPaid(ctx, in, "provider reported payment failed")
	case status.State == provider.RemoteExpired:
		res, err = e.expire(ctx, in, "provider reported payment link expired")
	}
	if err != nil && res.Outcome == "" {
		return res, err
	}
	if res.Outcome == "" && overdue {
		res, err = e.expire(ctx, in, fmt.Sprintf("pending longer than %s", e.cfg.IntentTimeout))
		if err != nil {
			return res, err
		}
	}
	if res.Outcome == "" {
		return webhook.Result{IntentID: in.ID, Detail: "still pending"}, nil
	}

	event := webhook.Event{
		ID:              webhook.NewEventID(),
		Provider:        in.Provider,
		Source:          source,
		RawPayload:      status.Raw,
		ReceivedAt:      e.now(),
		Verified:        true,
		MatchedIntentID: in.ID,
		Outcome:         res.Outcome,
		Detail:          res.Detail,
	}
	if event.RawPayload == nil {
		event.RawPayload = []byte(`{}`)
	}
	res.EventID = event.ID
	if aerr := e.events.Append(ctx, event); aerr != nil {
		e.logger.Error("record reconcile event", "intent_id", in.ID, "outcome", res.Outcome, "error", aerr)
	}
	e.logger.Info("intent reconciled", "intent_id", in.ID, "source", source, "outcome", res.Outcome)
	return res, err
}

// expire moves PENDING to EXPIRED. The outcome is empty if the intent had
// already moved on, for example because a webhook confirmed it meanwhile.
func (e *Engine) expire(ctx context.Context, in intent.Intent, reason string) (webhook.Result, error) {
	_, swapped, err := e.intents.Resolve(ctx, in.ID, intent.StatusExpired, reason)
	if err != nil {
		return webhook.Result{}, fmt.Errorf("expire intent: %w", err)
	}
	if !swapped {
		return webhook.Result{}, nil
	}
	return webhook.Result{Outcome: webhook.OutcomeExpired, IntentID: in.ID, Detail: reason}, nil
}

func (e *Engine) alert(ctx context.Context, msg notification.Message) {
	e.logger.Error("operator alert", "kind", msg.Kind, "intent_id", msg.IntentID, "body", msg.Body)
	e.notify(ctx, msg)
}

func (e *Engine) notify(ctx context.Context, msg notification.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(ctx, msg); err != nil {
		e.logger.Error("send notification", "kind", msg.Kind, "intent_id", msg.IntentID, "error", err)
	}
}

var outcomePriority = map[webhook.Outcome]int{
	webhook.OutcomeCreditFailed:      6,
	webhook.OutcomeCredited:          5,
	webhook.OutcomeDisputedAmbiguous: 4,
	webhook.OutcomeDuplicateIgnored:  3,
	webhook.OutcomeNotClaimable:      2,
	webhook.OutcomeNoMatch:           1,
}

// aggregate folds per-intent results from one aggregator batch into the
// single outcome stored on the event.
func aggregate(results []webhook.Result) webhook.Result {
	best := results[0]
	details := make([]string, 0, len(results))
	for _, r := range results {
		details = append(details, fmt.Sprintf("%s=%s", r.IntentID, r.Outcome))
		if outcomePriority[r.Outcome] > outcomePriority[best.Outcome] {
			best = r
		}
	}
	if len(results) > 1 {
		best.Detail = strings.Join(details, "; ")
	}
	return best
}
