package payos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/provider"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		ClientID:    "client",
		APIKey:      "api-key",
		ChecksumKey: "checksum",
		ReturnURL:   "https://shop.example/return",
		CancelURL:   "https://shop.example/cancel",
		Timeout:     2 * time.Second,
		MinAmount:   2000,
		MaxAmount:   100_000_000,
	}
}

func TestCreatePaymentRequest(t *testing.T) {
	var got createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client", r.Header.Get("x-client-id"))
		assert.Equal(t, "api-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(envelope[createData]{
			Code: "00",
			Desc: "success",
			Data: &createData{
				Bin: "970422", AccountNumber: "0123456789", AccountName: "TOUR WALLET",
				Amount: got.Amount, Description: got.Description, OrderCode: got.OrderCode,
				CheckoutURL: "https://pay.payos.vn/web/abc", QRCode: "00020101021238570010A000000727",
			},
		})
	}))
	defer srv.Close()

	a := NewAdapter(testConfig(srv.URL), logging.Discard())
	target, err := a.CreatePaymentRequest(context.Background(), provider.PaymentRequest{
		IntentID: "i-1", OrderCode: "1234567890123", Amount: 500_000, Description: "Nap vi 1234567890123 tour wallet",
	})
	require.NoError(t, err)

	assert.Equal(t, provider.TargetQR, target.Kind)
	assert.Equal(t, "00020101021238570010A000000727", target.QRPayload)
	assert.Equal(t, "1234567890123", target.ProviderOrderCode)
	require.NotNil(t, target.Bank)
	assert.Equal(t, "0123456789", target.Bank.AccountNumber)

	assert.LessOrEqual(t, len([]rune(got.Description)), maxDescriptionLen)
	raw := "amount=500000&cancelUrl=https://shop.example/cancel&description=" + got.Description +
		"&orderCode=1234567890123&returnUrl=https://shop.example/return"
	assert.Equal(t, provider.SignHMAC("checksum", raw), got.Signature)
}

func TestCreatePaymentRequestRejectsNonNumericOrderCode(t *testing.T) {
	a := NewAdapter(testConfig("http://127.0.0.1:1"), logging.Discard())
	_, err := a.CreatePaymentRequest(context.Background(), provider.PaymentRequest{OrderCode: "ABC", Amount: 10_000})
	require.Error(t, err)
}

func TestVerifyWebhook(t *testing.T) {
	cfg := testConfig("")
	a := NewAdapter(cfg, logging.Discard())

	body := SignWebhook(cfg, WebhookData{
		OrderCode: 123, Amount: 500_000, Description: "NAP123", AccountNumber: "0123456789",
		Reference: "FT2401", TransactionDateTime: "2024-05-01 10:00:00", Currency: "VND",
		PaymentLinkID: "plink", Code: "00", Desc: "success",
	})

	res, err := a.VerifyWebhook(body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "123", res.OrderCode)
	assert.Equal(t, int64(500_000), res.Amount)
	assert.Equal(t, "FT2401", res.TransactionRef)
	assert.Equal(t, provider.RemotePaid, res.State)
}

func TestVerifyWebhookRejectsTampering(t *testing.T) {
	cfg := testConfig("")
	a := NewAdapter(cfg, logging.Discard())

	body := SignWebhook(cfg, WebhookData{OrderCode: 123, Amount: 500_000, Code: "00"})
	var hook Webhook
	require.NoError(t, json.Unmarshal(body, &hook))
	hook.Data.Amount = 5_000_000
	tampered, _ := json.Marshal(hook)

	_, err := a.VerifyWebhook(tampered, http.Header{})
	assert.ErrorIs(t, err, provider.ErrSignatureInvalid)

	_, err = NewAdapter(Config{ChecksumKey: "other"}, logging.Discard()).VerifyWebhook(body, http.Header{})
	assert.ErrorIs(t, err, provider.ErrSignatureInvalid)
}

func TestQueryStatus(t *testing.T) {
	tests := []struct {
		status string
		want   provider.RemoteState
	}{
		{linkPaid, provider.RemotePaid},
		{linkUnderpaid, provider.RemotePaid},
		{linkPending, provider.RemotePending},
		{linkProcessing, provider.RemotePending},
		{linkCancelled, provider.RemoteFailed},
		{linkExpired, provider.RemoteExpired},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/payment-requests/42", r.URL.Path)
				_ = json.NewEncoder(w).Encode(envelope[linkInfo]{Code: "00", Data: &linkInfo{
					OrderCode: 42, Amount: 500_000, AmountPaid: 500_000, Status: tt.status,
					Transactions: []linkTransaction{{Reference: "FT1", Amount: 500_000}},
				}})
			}))
			defer srv.Close()

			a := NewAdapter(testConfig(srv.URL), logging.Discard())
			status, err := a.QueryStatus(context.Background(), provider.QueryRequest{OrderCode: "42"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.State)
			if tt.want == provider.RemotePaid {
				assert.Equal(t, "FT1", status.TransactionRef)
			}
		})
	}
}
