package reconcile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tourwallet/topup/internal/api"
	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/provider/payos"
	"github.com/tourwallet/topup/internal/webhook"
)

func payosGateway(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderCode   int64  `json:"orderCode"`
			Amount      int64  `json:"amount"`
			Description string `json:"description"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "00",
			"desc": "success",
			"data": map[string]any{
				"bin": "970422", "accountNumber": "0123456789", "accountName": "TOUR WALLET",
				"amount": req.Amount, "description": req.Description, "orderCode": req.OrderCode,
				"checkoutUrl": "https://pay.payos.vn/web/x", "qrCode": "000201010212",
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, app *fiber.App, path string, body []byte) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(string(body)))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

// A 500,000 bank-QR top-up whose webhook is delivered twice within two
// seconds is credited once and acknowledged both times.
func TestBankQRDoubleDelivery(t *testing.T) {
	cfg := payos.Config{
		BaseURL:     payosGateway(t).URL,
		ClientID:    "client",
		APIKey:      "key",
		ChecksumKey: "checksum",
		Timeout:     2 * time.Second,
		MinAmount:   2_000,
		MaxAmount:   100_000_000,
	}
	h := newHarness(t, payos.NewAdapter(cfg, logging.Discard()))
	in := h.create(t, provider.KindBankQR, 500_000)
	require.Equal(t, intent.StatusPending, in.Status)
	require.NotNil(t, in.Target)
	assert.Equal(t, "000201010212", in.Target.QRPayload)

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Post("/webhooks/:provider", webhook.NewHandler(h.engine).Receive)

	code, err := strconv.ParseInt(in.OrderCode, 10, 64)
	require.NoError(t, err)
	body := payos.SignWebhook(cfg, payos.WebhookData{
		OrderCode:           code,
		Amount:              500_000,
		Description:         "TWPAY " + in.OrderCode,
		AccountNumber:       "0123456789",
		Reference:           "FT26292000001",
		TransactionDateTime: "2026-10-19 10:00:00",
		Currency:            "VND",
		Code:                "00",
		Desc:                "success",
	})

	status, decoded := post(t, app, "/webhooks/payos", body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "credited", decoded["status"])
	assert.Equal(t, int64(500_000), h.balance(t))

	status, decoded = post(t, app, "/webhooks/payos", body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "duplicate_ignored", decoded["status"])
	assert.Equal(t, int64(500_000), h.balance(t))
	assert.Equal(t, 1, ledger.PositiveEntries(h.ledger, in.ID))
}

func TestBankQRTamperedSignatureIsRejected(t *testing.T) {
	cfg := payos.Config{
		BaseURL:     payosGateway(t).URL,
		ChecksumKey: "checksum",
		Timeout:     2 * time.Second,
		MinAmount:   2_000,
		MaxAmount:   100_000_000,
	}
	h := newHarness(t, payos.NewAdapter(cfg, logging.Discard()))
	in := h.create(t, provider.KindBankQR, 500_000)
	code, err := strconv.ParseInt(in.OrderCode, 10, 64)
	require.NoError(t, err)

	body := payos.SignWebhook(cfg, payos.WebhookData{OrderCode: code, Amount: 500_000, Reference: "FT1", Code: "00"})
	var hook payos.Webhook
	require.NoError(t, json.Unmarshal(body, &hook))

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Post("/webhooks/:provider", webhook.NewHandler(h.engine).Receive)

	for i := range hook.Signature {
		tampered := hook
		sig := []byte(hook.Signature)
		if sig[i] == 'a' {
			sig[i] = 'b'
		} else {
			sig[i] = 'a'
		}
		tampered.Signature = string(sig)
		raw, err := json.Marshal(tampered)
		require.NoError(t, err)

		status, decoded := post(t, app, "/webhooks/payos", raw)
		require.Equal(t, http.StatusBadRequest, status, "byte %d", i)
		assert.Equal(t, "signature invalid", decoded["error"])
	}

	assert.Equal(t, intent.StatusPending, h.status(t, in.ID))
	assert.Zero(t, h.balance(t))
	rejected, err := h.events.List(context.Background(), webhook.ListFilter{Outcome: webhook.OutcomeRejectedSignature, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, rejected, len(hook.Signature))
}

func TestWebhookHTTPStatusMapping(t *testing.T) {
	h := newHarness(t)
	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Post("/webhooks/:provider", webhook.NewHandler(h.engine).Receive)

	send := func(kind provider.Kind, n []byte) (int, map[string]any) {
		req := httptest.NewRequest(fiber.MethodPost, "/webhooks/"+kind.Slug(), strings.NewReader(string(n)))
		for k, v := range h.fakes[kind].Headers() {
			req.Header[k] = v
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var decoded map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
		return resp.StatusCode, decoded
	}

	status, _ := send(provider.KindMobileWallet, []byte(`{"order_code":"MOMO1","amount":1000,"paid":true}`))
	assert.Equal(t, http.StatusNotFound, status)

	status, decoded := send(provider.KindBankAggregator, []byte(`{"transactions":[{"ref":"1","description":"luong","amount":5}]}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_match", decoded["status"])

	in := h.create(t, provider.KindMobileWallet, 10_000)
	status, _ = send(provider.KindMobileWallet, []byte(`{"order_code":"`+in.OrderCode+`","amount":9000,"paid":true}`))
	assert.Equal(t, http.StatusConflict, status)

	status, decoded = send(provider.KindMobileWallet, []byte(`{"order_code":"`+in.OrderCode+`","amount":10000,"paid":true}`))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "acknowledged", decoded["status"])

	status, _ = post(t, app, "/webhooks/paypal", []byte(`{}`))
	assert.Equal(t, http.StatusNotFound, status)
}
