package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/notification"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/provider/providertest"
	"github.com/tourwallet/topup/internal/wallet"
	"github.com/tourwallet/topup/internal/webhook"
)

type harness struct {
	engine   *Engine
	registry *intent.Registry
	intents  intent.Repository
	users    wallet.Repository
	ledger   ledger.Ledger
	books    *ledger.Accountant
	events   webhook.Repository
	notes    *notification.Recorder
	fakes    map[provider.Kind]*providertest.Fake
	userID   string
}

// newHarness wires the engine over in-memory stores. Any adapter passed in
// replaces the fake registered for its kind.
func newHarness(t *testing.T, adapters ...provider.Adapter) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		intents: intent.NewMemoryRepository(),
		users:   wallet.NewMemoryRepository(),
		events:  webhook.NewMemoryRepository(),
		notes:   &notification.Recorder{},
		fakes:   map[provider.Kind]*providertest.Fake{},
		userID:  uuid.NewString(),
	}
	require.NoError(t, h.users.Create(ctx, wallet.User{ID: h.userID, Currency: "VND"}))

	byKind := map[provider.Kind]provider.Adapter{}
	for _, kind := range provider.Kinds {
		fake := providertest.New(kind)
		h.fakes[kind] = fake
		byKind[kind] = fake
	}
	for _, a := range adapters {
		byKind[a.Kind()] = a
	}
	set := provider.NewSet(byKind[provider.KindMobileWallet], byKind[provider.KindBankQR], byKind[provider.KindBankAggregator])

	logger := logging.Discard()
	codes, err := intent.NewOrderCodes(2)
	require.NoError(t, err)
	fastRetry := provider.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}

	h.registry = intent.NewRegistry(h.intents, set, h.users, codes, intent.RegistryConfig{Retry: fastRetry}, logger)
	h.ledger = ledger.NewInMemory(h.users)
	h.books = ledger.NewAccountant(h.ledger, logger)
	h.engine = NewEngine(Deps{
		Adapters:   set,
		Verifier:   webhook.NewVerifier(set, h.events, logger),
		Events:     h.events,
		Intents:    h.registry,
		Claims:     NewIdempotencyLedger(h.intents),
		Accountant: h.books,
		Notifier:   h.notes,
		Logger:     logger,
	}, Config{Matcher: DefaultMatcherConfig(), IntentTimeout: 24 * time.Hour, Retry: fastRetry})
	return h
}

func (h *harness) create(t *testing.T, kind provider.Kind, amount int64) intent.Intent {
	t.Helper()
	in, err := h.registry.Create(context.Background(), intent.CreateInput{UserID: h.userID, Amount: amount, Provider: kind})
	require.NoError(t, err)
	return in
}

func (h *harness) deliver(t *testing.T, kind provider.Kind, n providertest.Notification) (webhook.Result, error) {
	t.Helper()
	return h.engine.HandleWebhook(context.Background(), kind, providertest.Body(n), h.fakes[kind].Headers())
}

func (h *harness) balance(t *testing.T) int64 {
	t.Helper()
	u, err := h.users.GetUser(context.Background(), h.userID)
	require.NoError(t, err)
	return u.WalletBalance
}

func (h *harness) status(t *testing.T, id string) intent.Status {
	t.Helper()
	in, err := h.intents.Get(context.Background(), id)
	require.NoError(t, err)
	return in.Status
}

func (h *harness) outcomes(t *testing.T) []webhook.Outcome {
	t.Helper()
	events, err := h.events.List(context.Background(), webhook.ListFilter{Limit: 500})
	require.NoError(t, err)
	out := make([]webhook.Outcome, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].Outcome)
	}
	return out
}

type failingAccountant struct{ err error }

func (f failingAccountant) Credit(context.Context, string, int64, string) (ledger.Entry, error) {
	return ledger.Entry{}, f.err
}
