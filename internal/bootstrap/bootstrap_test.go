package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/provider"
)

func TestAdaptersFollowEnabledProviders(t *testing.T) {
	set, err := Adapters(config.Config{Providers: []string{"payos", "casso"}}, logging.Discard())
	require.NoError(t, err)
	assert.Len(t, set, 2)

	_, err = set.Get(provider.KindMobileWallet)
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	a, err := set.Get(provider.KindBankAggregator)
	require.NoError(t, err)
	assert.Equal(t, provider.KindBankAggregator, a.Kind())
}

func TestAdaptersRejectUnknownProvider(t *testing.T) {
	_, err := Adapters(config.Config{Providers: []string{"zalopay"}}, logging.Discard())
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestBuildNeedsDatabase(t *testing.T) {
	_, err := Build(config.Config{Providers: []string{"casso"}}, Infra{}, logging.Discard())
	require.Error(t, err)
}
