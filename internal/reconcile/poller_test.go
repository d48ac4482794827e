package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/webhook"
)

func newTestPoller(h *harness, locker Locker, offset time.Duration) *Poller {
	p := NewPoller(h.engine, h.registry, locker, PollerConfig{
		Interval:    10 * time.Millisecond,
		Grace:       time.Minute,
		Concurrency: 4,
	}, logging.Discard())
	p.now = func() time.Time { return time.Now().UTC().Add(offset) }
	return p
}

func TestPollerTickSettlesPaidIntents(t *testing.T) {
	h := newHarness(t)
	var paidIntents []intent.Intent
	for i := 0; i < 3; i++ {
		in := h.create(t, provider.KindBankQR, 40_000)
		h.fakes[provider.KindBankQR].SetStatus(in.OrderCode, provider.RemoteStatus{
			State: provider.RemotePaid, Amount: in.Amount, TransactionRef: "ref-" + in.OrderCode,
		})
		paidIntents = append(paidIntents, in)
	}
	waiting := h.create(t, provider.KindMobileWallet, 40_000)

	report, err := newTestPoller(h, nil, 2*time.Minute).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 3, report.Settled)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 3, report.Outcomes[webhook.OutcomeCredited])

	for _, in := range paidIntents {
		assert.Equal(t, intent.StatusConfirmed, h.status(t, in.ID))
		assert.Equal(t, 1, ledger.PositiveEntries(h.ledger, in.ID))
	}
	assert.Equal(t, intent.StatusPending, h.status(t, waiting.ID))
	assert.Equal(t, int64(120_000), h.balance(t))
}

func TestPollerLeavesFreshIntentsToWebhooks(t *testing.T) {
	h := newHarness(t)
	in := h.create(t, provider.KindBankQR, 40_000)
	h.fakes[provider.KindBankQR].SetStatus(in.OrderCode, provider.RemoteStatus{State: provider.RemotePaid, Amount: in.Amount})

	report, err := newTestPoller(h, nil, 0).Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Zero(t, h.fakes[provider.KindBankQR].QueryCalls)
	assert.Equal(t, intent.StatusPending, h.status(t, in.ID))
}

func TestPollerExpiresOverdueIntents(t *testing.T) {
	h := newHarness(t)
	in := h.create(t, provider.KindMobileWallet, 40_000)
	h.engine.now = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	report, err := newTestPoller(h, nil, 25*time.Hour).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcomes[webhook.OutcomeExpired])
	assert.Equal(t, intent.StatusExpired, h.status(t, in.ID))
	assert.Zero(t, ledger.PositiveEntries(h.ledger, in.ID))
}

func TestPollerSkipsTickHeldByAnotherReplica(t *testing.T) {
	h := newHarness(t)
	h.create(t, provider.KindBankQR, 40_000)
	cache, _ := newRedis(t)
	locker := NewRedisLocker(cache)

	release, ok, err := locker.Acquire(context.Background(), "poller", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	report, err := newTestPoller(h, locker, 2*time.Minute).Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, h.fakes[provider.KindBankQR].QueryCalls)

	release()
	report, err = newTestPoller(h, locker, 2*time.Minute).Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.Checked)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- newTestPoller(h, nil, 0).Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
