package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/notification"
	"github.com/tourwallet/topup/internal/provider"
)

func TestSweeperFlagsConfirmedWithoutLedgerEntry(t *testing.T) {
	h := newHarness(t)
	good := h.create(t, provider.KindBankQR, 10_000)
	broken := h.create(t, provider.KindBankQR, 20_000)

	_, err := h.deliver(t, provider.KindBankQR, paid(good, "g"))
	require.NoError(t, err)
	h.engine.accountant = failingAccountant{err: errors.New("disk full")}
	_, err = h.deliver(t, provider.KindBankQR, paid(broken, "b"))
	require.ErrorIs(t, err, ErrPartialCreditFailure)

	alerts := &notification.Recorder{}
	sweeper := NewSweeper(h.registry, h.books, alerts, nil, SweeperConfig{SettleDelay: time.Minute}, logging.Discard())
	sweeper.now = func() time.Time { return time.Now().UTC().Add(5 * time.Minute) }

	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, []string{broken.ID}, report.Missing)
	assert.Equal(t, 1, alerts.Count(notification.KindPartialCreditFailure))

	// The sweep never repairs on its own.
	assert.Equal(t, int64(10_000), h.balance(t))
}

func TestSweeperIgnoresRecentConfirmations(t *testing.T) {
	h := newHarness(t)
	in := h.create(t, provider.KindBankQR, 10_000)
	h.engine.accountant = failingAccountant{err: errors.New("timeout")}
	_, err := h.deliver(t, provider.KindBankQR, paid(in, "x"))
	require.ErrorIs(t, err, ErrPartialCreditFailure)

	sweeper := NewSweeper(h.registry, h.books, nil, nil, SweeperConfig{SettleDelay: time.Minute}, logging.Discard())
	report, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	assert.Empty(t, report.Missing)
}
