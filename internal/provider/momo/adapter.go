// Package momo implements the MoMo mobile-wallet gateway adapter.
package momo

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

	"github.com/google/uuid"

	"github.com/tourwallet/topup/internal/provider"
)

// Config holds MoMo credentials and endpoints.
type Config struct {
	BaseURL     string        `envconfig:"MOMO_BASE_URL" default:"https://test-payment.momo.vn"`
	PartnerCode string        `envconfig:"MOMO_PARTNER_CODE"`
	AccessKey   string        `envconfig:"MOMO_ACCESS_KEY"`
	SecretKey   string        `envconfig:"MOMO_SECRET_KEY"`
	RedirectURL string        `envconfig:"MOMO_REDIRECT_URL"`
	IpnURL      string        `envconfig:"MOMO_IPN_URL"`
	Timeout     time.Duration `envconfig:"MOMO_TIMEOUT" default:"10s"`
	MinAmount   int64         `envconfig:"MOMO_MIN_AMOUNT" default:"1000"`
	MaxAmount   int64         `envconfig:"MOMO_MAX_AMOUNT" default:"50000000"`
}

// Adapter talks to the MoMo payment gateway.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// NewAdapter creates a MoMo adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindMobileWallet }

func (a *Adapter) Bounds() provider.AmountBounds {
	return provider.AmountBounds{Min: a.config.MinAmount, Max: a.config.MaxAmount}
}

// CreatePaymentRequest opens a captureWallet payment and returns the pay URL.
func (a *Adapter) CreatePaymentRequest(ctx context.Context, req provider.PaymentRequest) (provider.PaymentTarget, error) {
	if !a.Bounds().Contains(req.Amount) {
		return provider.PaymentTarget{}, fmt.Errorf("%w: %d", provider.ErrInvalidAmount, req.Amount)
	}

	body := createRequest{
		PartnerCode: a.config.PartnerCode,
		RequestID:   uuid.NewString(),
		Amount:      req.Amount,
		OrderID:     req.OrderCode,
		OrderInfo:   req.Description,
		RedirectURL: a.config.RedirectURL,
		IpnURL:      a.config.IpnURL,
		RequestType: requestTypeCaptureWallet,
		ExtraData:   "",
		Lang:        "vi",
	}
	body.Signature = provider.SignHMAC(a.config.SecretKey, provider.CanonicalString(map[string]string{
		"accessKey":   a.config.AccessKey,
		"amount":      strconv.FormatInt(body.Amount, 10),
		"extraData":   body.ExtraData,
		"ipnUrl":      body.IpnURL,
		"orderId":     body.OrderID,
		"orderInfo":   body.OrderInfo,
		"partnerCode": body.PartnerCode,
		"redirectUrl": body.RedirectURL,
		"requestId":   body.RequestID,
		"requestType": body.RequestType,
	}))

	var resp createResponse
	if _, err := a.post(ctx, "/v2/gateway/api/create", body, &resp); err != nil {
		return provider.PaymentTarget{}, err
	}

	switch resp.ResultCode {
	case resultSuccess:
	case resultInvalidAmount:
		return provider.PaymentTarget{}, fmt.Errorf("%w: %s", provider.ErrInvalidAmount, resp.Message)
	default:
		return provider.PaymentTarget{}, fmt.Errorf("momo create rejected: resultCode=%d message=%s", resp.ResultCode, resp.Message)
	}

	a.logger.Info("momo payment created", "order_id", req.OrderCode, "intent_id", req.IntentID)

	return provider.PaymentTarget{
		Kind:              provider.TargetRedirect,
		RedirectURL:       resp.PayURL,
		QRPayload:         resp.QRCodeURL,
		ProviderOrderCode: resp.OrderID,
	}, nil
}

// VerifyWebhook authenticates an IPN by recomputing its HMAC signature.
func (a *Adapter) VerifyWebhook(raw []byte, _ http.Header) (provider.VerificationResult, error) {
	var ipn IPN
	if err := json.Unmarshal(raw, &ipn); err != nil {
		return provider.VerificationResult{}, fmt.Errorf("%w: decode ipn: %v", provider.ErrSignatureInvalid, err)
	}
	if ipn.Signature == "" {
		return provider.VerificationResult{}, fmt.Errorf("%w: missing signature", provider.ErrSignatureInvalid)
	}
	if ipn.PartnerCode != a.config.PartnerCode {
		return provider.VerificationResult{}, fmt.Errorf("%w: partner code mismatch", provider.ErrSignatureInvalid)
	}

	payload := provider.CanonicalString(ipn.signedFields(a.config.AccessKey))
	if !provider.VerifyHMAC(a.config.SecretKey, payload, ipn.Signature) {
		return provider.VerificationResult{}, provider.ErrSignatureInvalid
	}

	return provider.VerificationResult{
		OrderCode:      ipn.OrderID,
		Amount:         ipn.Amount,
		TransactionRef: strconv.FormatInt(ipn.TransID, 10),
		State:          ipnState(ipn.ResultCode),
		Signature:      ipn.Signature,
	}, nil
}

// QueryStatus asks MoMo for the current state of an order.
func (a *Adapter) QueryStatus(ctx context.Context, req provider.QueryRequest) (provider.RemoteStatus, error) {
	body := queryRequest{
		PartnerCode: a.config.PartnerCode,
		RequestID:   uuid.NewString(),
		OrderID:     req.OrderCode,
		Lang:        "vi",
	}
	body.Signature = provider.SignHMAC(a.config.SecretKey, provider.CanonicalString(map[string]string{
		"accessKey":   a.config.AccessKey,
		"orderId":     body.OrderID,
		"partnerCode": body.PartnerCode,
		"requestId":   body.RequestID,
	}))

	var resp queryResponse
	raw, err := a.post(ctx, "/v2/gateway/api/query", body, &resp)
	if err != nil {
		return provider.RemoteStatus{}, err
	}

	status := provider.RemoteStatus{Amount: resp.Amount, Raw: raw}
	switch {
	case resp.ResultCode == resultSuccess:
		status.State = provider.RemotePaid
		status.TransactionRef = strconv.FormatInt(resp.TransID, 10)
	case pendingResult(resp.ResultCode), resp.ResultCode == resultTransactionNone:
		status.State = provider.RemotePending
	default:
		status.State = provider.RemoteFailed
	}
	return status, nil
}

func (a *Adapter) post(ctx context.Context, path string, in, out any) ([]byte, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: momo: %v", provider.ErrProviderUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: momo read response: %v", provider.ErrProviderUnavailable, err)
	}
	if err := provider.ClassifyHTTP("momo", httpResp.StatusCode, respBody); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nil, fmt.Errorf("unmarshal momo response: %w", err)
	}
	return respBody, nil
}
