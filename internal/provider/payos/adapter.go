// Package payos implements the PayOS VietQR bank-QR gateway adapter.
package payos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tourwallet/topup/internal/provider"
)

// PayOS rejects descriptions longer than this.
const maxDescriptionLen = 25

// Config holds PayOS credentials and endpoints.
type Config struct {
	BaseURL     string        `envconfig:"PAYOS_BASE_URL" default:"https://api-merchant.payos.vn"`
	ClientID    string        `envconfig:"PAYOS_CLIENT_ID"`
	APIKey      string        `envconfig:"PAYOS_API_KEY"`
	ChecksumKey string        `envconfig:"PAYOS_CHECKSUM_KEY"`
	ReturnURL   string        `envconfig:"PAYOS_RETURN_URL"`
	CancelURL   string        `envconfig:"PAYOS_CANCEL_URL"`
	LinkTTL     time.Duration `envconfig:"PAYOS_LINK_TTL" default:"24h"`
	Timeout     time.Duration `envconfig:"PAYOS_TIMEOUT" default:"10s"`
	MinAmount   int64         `envconfig:"PAYOS_MIN_AMOUNT" default:"2000"`
	MaxAmount   int64         `envconfig:"PAYOS_MAX_AMOUNT" default:"100000000"`
}

// Adapter talks to the PayOS payment-request API.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

var _ provider.Adapter = (*Adapter)(nil)

// NewAdapter creates a PayOS adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindBankQR }

func (a *Adapter) Bounds() provider.AmountBounds {
	return provider.AmountBounds{Min: a.config.MinAmount, Max: a.config.MaxAmount}
}

// CreatePaymentRequest creates a payment link and returns its VietQR payload.
// The order code must be numeric.
func (a *Adapter) CreatePaymentRequest(ctx context.Context, req provider.PaymentRequest) (provider.PaymentTarget, error) {
	if !a.Bounds().Contains(req.Amount) {
		return provider.PaymentTarget{}, fmt.Errorf("%w: %d", provider.ErrInvalidAmount, req.Amount)
	}
	orderCode, err := strconv.ParseInt(req.OrderCode, 10, 64)
	if err != nil {
		return provider.PaymentTarget{}, fmt.Errorf("payos order code must be numeric: %w", err)
	}

	body := createRequest{
		OrderCode:   orderCode,
		Amount:      req.Amount,
		Description: shorten(req.Description, maxDescriptionLen),
		CancelURL:   a.config.CancelURL,
		ReturnURL:   a.config.ReturnURL,
	}
	if a.config.LinkTTL > 0 {
		body.ExpiredAt = a.now().Add(a.config.LinkTTL).Unix()
	}
	body.Signature = provider.SignHMAC(a.config.ChecksumKey, provider.CanonicalString(map[string]string{
		"amount":      strconv.FormatInt(body.Amount, 10),
		"cancelUrl":   body.CancelURL,
		"description": body.Description,
		"orderCode":   strconv.FormatInt(body.OrderCode, 10),
		"returnUrl":   body.ReturnURL,
	}))

	var resp envelope[createData]
	if _, err := a.do(ctx, http.MethodPost, "/v2/payment-requests", body, &resp); err != nil {
		return provider.PaymentTarget{}, err
	}
	if resp.Code != codeSuccess || resp.Data == nil {
		return provider.PaymentTarget{}, fmt.Errorf("payos create rejected: code=%s desc=%s", resp.Code, resp.Desc)
	}

	a.logger.Info("payos payment link created", "order_code", orderCode, "intent_id", req.IntentID,
		"payment_link_id", resp.Data.PaymentLinkID)

	return provider.PaymentTarget{
		Kind:        provider.TargetQR,
		RedirectURL: resp.Data.CheckoutURL,
		QRPayload:   resp.Data.QRCode,
		Bank: &provider.BankInstructions{
			BankName:        resp.Data.Bin,
			AccountNumber:   resp.Data.AccountNumber,
			AccountName:     resp.Data.AccountName,
			TransferContent: resp.Data.Description,
		},
		ProviderOrderCode: strconv.FormatInt(resp.Data.OrderCode, 10),
	}, nil
}

// VerifyWebhook checks the checksum over the data object.
func (a *Adapter) VerifyWebhook(raw []byte, _ http.Header) (provider.VerificationResult, error) {
	var hook Webhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		return provider.VerificationResult{}, fmt.Errorf("%w: decode webhook: %v", provider.ErrSignatureInvalid, err)
	}
	if hook.Signature == "" {
		return provider.VerificationResult{}, fmt.Errorf("%w: missing signature", provider.ErrSignatureInvalid)
	}

	payload := provider.CanonicalString(hook.Data.signedFields())
	if !provider.VerifyHMAC(a.config.ChecksumKey, payload, hook.Signature) {
		return provider.VerificationResult{}, provider.ErrSignatureInvalid
	}

	res := provider.VerificationResult{
		OrderCode:      strconv.FormatInt(hook.Data.OrderCode, 10),
		Amount:         hook.Data.Amount,
		TransactionRef: hook.Data.Reference,
		State:          provider.RemoteFailed,
		Signature:      hook.Signature,
	}
	if hook.Code == codeSuccess && hook.Data.Code == codeSuccess {
		res.State = provider.RemotePaid
	}
	return res, nil
}

// QueryStatus fetches the payment link and maps its status.
func (a *Adapter) QueryStatus(ctx context.Context, req provider.QueryRequest) (provider.RemoteStatus, error) {
	var resp envelope[linkInfo]
	raw, err := a.do(ctx, http.MethodGet, "/v2/payment-requests/"+req.OrderCode, nil, &resp)
	if err != nil {
		return provider.RemoteStatus{}, err
	}
	if resp.Code != codeSuccess || resp.Data == nil {
		return provider.RemoteStatus{}, fmt.Errorf("payos query rejected: code=%s desc=%s", resp.Code, resp.Desc)
	}

	info := resp.Data
	status := provider.RemoteStatus{Amount: info.AmountPaid, Raw: raw}
	switch info.Status {
	case linkPaid, linkUnderpaid:
		// Underpaid links surface as paid so the amount check disputes them.
		status.State = provider.RemotePaid
		if len(info.Transactions) > 0 {
			status.TransactionRef = info.Transactions[0].Reference
		}
	case linkCancelled:
		status.State = provider.RemoteFailed
	case linkExpired:
		status.State = provider.RemoteExpired
	default:
		status.State = provider.RemotePending
	}
	return status, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", a.config.ClientID)
	httpReq.Header.Set("x-api-key", a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: payos: %v", provider.ErrProviderUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: payos read response: %v", provider.ErrProviderUnavailable, err)
	}
	if err := provider.ClassifyHTTP("payos", httpResp.StatusCode, respBody); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("unmarshal payos response: %w", err)
	}
	return respBody, nil
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
