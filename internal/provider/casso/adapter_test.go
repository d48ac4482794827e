package casso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/provider"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		APIKey:        "casso-key",
		WebhookToken:  "hook-token",
		BankName:      "VCB",
		AccountNumber: "0011223344",
		AccountName:   "TOUR WALLET JSC",
		PageSize:      2,
		MaxPages:      5,
		Timeout:       2 * time.Second,
		MinAmount:     10_000,
		MaxAmount:     500_000_000,
	}
}

func TestCreatePaymentRequestReturnsInstructions(t *testing.T) {
	a := NewAdapter(testConfig(""), logging.Discard())
	target, err := a.CreatePaymentRequest(context.Background(), provider.PaymentRequest{OrderCode: "TW3F9KQ2", Amount: 200_000})
	require.NoError(t, err)

	assert.Equal(t, provider.TargetBankTransfer, target.Kind)
	assert.Equal(t, "TW3F9KQ2", target.ProviderOrderCode)
	require.NotNil(t, target.Bank)
	assert.Equal(t, "TW3F9KQ2", target.Bank.TransferContent)
	assert.Equal(t, "0011223344", target.Bank.AccountNumber)

	_, err = a.CreatePaymentRequest(context.Background(), provider.PaymentRequest{OrderCode: "TW1", Amount: 5_000})
	assert.ErrorIs(t, err, provider.ErrInvalidAmount)
}

func TestVerifyWebhookArray(t *testing.T) {
	a := NewAdapter(testConfig(""), logging.Discard())
	body := []byte(`{"error":0,"data":[
		{"id":1,"tid":"TF001","description":"CK TW3F9KQ2 nap vi","amount":200000,"cusum_balance":900000,"when":"2024-05-01 10:21:50","bank_sub_acc_id":"0011223344"},
		{"id":2,"tid":"","description":"chuyen tien","amount":-50000,"when":"2024-05-01 10:22:00"},
		{"id":3,"tid":"","description":"tw3f9kq2","amount":"150000.00","when":"2024-05-01 10:23:00"}
	]}`)
	headers := http.Header{}
	headers.Set(TokenHeader, "hook-token")

	res, err := a.VerifyWebhook(body, headers)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 2)

	assert.Equal(t, "TF001", res.Transactions[0].Ref)
	assert.Equal(t, int64(200_000), res.Transactions[0].Amount)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 21, 50, 0, time.UTC), res.Transactions[0].PostedAt)

	assert.Equal(t, "3", res.Transactions[1].Ref)
	assert.Equal(t, int64(150_000), res.Transactions[1].Amount)
	assert.NotContains(t, res.Signature, "hook-token")
}

func TestVerifyWebhookSingleObject(t *testing.T) {
	a := NewAdapter(testConfig(""), logging.Discard())
	headers := http.Header{}
	headers.Set(TokenHeader, "hook-token")

	res, err := a.VerifyWebhook([]byte(`{"error":0,"data":{"id":9,"tid":"TF9","description":"TWABC","amount":10000,"when":"2024-05-01 00:00:00"}}`), headers)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "TF9", res.Transactions[0].Ref)
}

func TestVerifyWebhookRejectsWrongToken(t *testing.T) {
	a := NewAdapter(testConfig(""), logging.Discard())
	headers := http.Header{}
	headers.Set(TokenHeader, "guess")

	_, err := a.VerifyWebhook([]byte(`{"error":0,"data":[]}`), headers)
	assert.ErrorIs(t, err, provider.ErrSignatureInvalid)

	_, err = a.VerifyWebhook([]byte(`{"error":0,"data":[]}`), http.Header{})
	assert.ErrorIs(t, err, provider.ErrSignatureInvalid)
}

func TestQueryStatusPaginates(t *testing.T) {
	pages := map[string]transactionsResponse{
		"1": {Data: transactionsPage{Page: 1, TotalPages: 2, Records: []apiRecord{
			{ID: 10, TID: "A", Description: "TWX1", When: "2024-05-01 10:00:00"},
			{ID: 11, TID: "B", Description: "TWX2", When: "2024-05-01 10:05:00"},
		}}},
		"2": {Data: transactionsPage{Page: 2, TotalPages: 2, Records: []apiRecord{
			{ID: 12, TID: "C", Description: "TWX3", When: "2024-05-01 10:09:00"},
		}}},
	}
	for _, p := range pages {
		for i := range p.Data.Records {
			p.Data.Records[i].Amount = decimal.NewFromInt(100_000)
		}
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v2/transactions", r.URL.Path)
		assert.Equal(t, "Apikey casso-key", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-04-30", r.URL.Query().Get("fromDate"))
		_ = json.NewEncoder(w).Encode(pages[r.URL.Query().Get("page")])
	}))
	defer srv.Close()

	a := NewAdapter(testConfig(srv.URL), logging.Discard())
	status, err := a.QueryStatus(context.Background(), provider.QueryRequest{
		OrderCode: "TWX1",
		CreatedAt: time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, provider.RemotePending, status.State)
	require.Len(t, status.Transactions, 3)
	assert.Equal(t, "C", status.Transactions[2].Ref)
	assert.False(t, status.Truncated)
}

func TestQueryStatusFlagsTruncatedHistory(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		page := calls
		_ = json.NewEncoder(w).Encode(transactionsResponse{Data: transactionsPage{Page: page, TotalPages: 9, Records: []apiRecord{
			{ID: int64(page * 10), TID: "T" + r.URL.Query().Get("page") + "a", Description: "luong", Amount: decimal.NewFromInt(5_000), When: "2024-05-01 10:00:00"},
			{ID: int64(page*10 + 1), TID: "T" + r.URL.Query().Get("page") + "b", Description: "luong", Amount: decimal.NewFromInt(5_000), When: "2024-05-01 10:00:00"},
		}}})
	}))
	defer srv.Close()

	a := NewAdapter(testConfig(srv.URL), logging.Discard())
	status, err := a.QueryStatus(context.Background(), provider.QueryRequest{OrderCode: "TWX1", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 5, calls)
	assert.Len(t, status.Transactions, 10)
	assert.True(t, status.Truncated)
}

func TestQueryStatusUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewAdapter(testConfig(srv.URL), logging.Discard())
	_, err := a.QueryStatus(context.Background(), provider.QueryRequest{OrderCode: "TW1", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
}
