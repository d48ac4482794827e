package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStringSortsKeys(t *testing.T) {
	fields := map[string]string{"orderId": "A1", "amount": "50000", "extraData": ""}
	assert.Equal(t, "amount=50000&extraData=&orderId=A1", CanonicalString(fields))
}

func TestCanonicalStringFixedKeysRenderMissingAsEmpty(t *testing.T) {
	fields := map[string]string{"b": "2", "a": "1", "ignored": "x"}
	assert.Equal(t, "a=1&b=2&c=", CanonicalString(fields, "c", "b", "a"))
}

func TestVerifyHMAC(t *testing.T) {
	sig := SignHMAC("secret", "amount=1000&orderId=1")

	assert.True(t, VerifyHMAC("secret", "amount=1000&orderId=1", sig))
	assert.True(t, VerifyHMAC("secret", "amount=1000&orderId=1", " "+sig+" "))
	assert.False(t, VerifyHMAC("secret", "amount=1001&orderId=1", sig))
	assert.False(t, VerifyHMAC("other", "amount=1000&orderId=1", sig))
	assert.False(t, VerifyHMAC("secret", "amount=1000&orderId=1", "not-hex"))
	assert.False(t, VerifyHMAC("secret", "amount=1000&orderId=1", ""))
}

func TestEqualToken(t *testing.T) {
	assert.True(t, EqualToken("tok", "tok"))
	assert.False(t, EqualToken("tok", "tok2"))
	assert.False(t, EqualToken("", ""))
}

func TestAmountBounds(t *testing.T) {
	b := AmountBounds{Min: 1000, Max: 50_000_000}
	tests := []struct {
		amount int64
		want   bool
	}{
		{0, false},
		{-5, false},
		{999, false},
		{1000, true},
		{50_000_000, true},
		{50_000_001, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Contains(tt.amount), "amount %d", tt.amount)
	}
	assert.True(t, AmountBounds{Min: 1}.Contains(1<<40))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("momo")
	require.NoError(t, err)
	assert.Equal(t, KindMobileWallet, k)

	k, err = ParseKind("BANK_QR")
	require.NoError(t, err)
	assert.Equal(t, KindBankQR, k)
	assert.Equal(t, "payos", k.Slug())

	_, err = ParseKind("paypal")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("%w: timeout", ErrProviderUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return fmt.Errorf("%w: 503", ErrProviderUnavailable)
	})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestClassifyHTTP(t *testing.T) {
	assert.NoError(t, ClassifyHTTP("momo", 200, nil))
	assert.ErrorIs(t, ClassifyHTTP("momo", 502, nil), ErrProviderUnavailable)
	assert.ErrorIs(t, ClassifyHTTP("momo", 429, nil), ErrProviderUnavailable)

	err := ClassifyHTTP("momo", 400, []byte(`{"message":"bad"}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}
