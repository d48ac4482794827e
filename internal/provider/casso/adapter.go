// Package casso implements the Casso bank-aggregator adapter. Casso has no
// payment-creation API: users transfer to a fixed account and put the intent's
// correlation token in the transfer description.
package casso

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tourwallet/topup/internal/provider"
)

// TokenHeader carries the shared secret configured in the Casso dashboard.
const TokenHeader = "Secure-Token"

// Config holds Casso credentials and the receiving bank account.
type Config struct {
	BaseURL       string        `envconfig:"CASSO_BASE_URL" default:"https://oauth.casso.vn"`
	APIKey        string        `envconfig:"CASSO_API_KEY"`
	WebhookToken  string        `envconfig:"CASSO_WEBHOOK_TOKEN"`
	BankName      string        `envconfig:"CASSO_BANK_NAME"`
	AccountNumber string        `envconfig:"CASSO_ACCOUNT_NUMBER"`
	AccountName   string        `envconfig:"CASSO_ACCOUNT_NAME"`
	PageSize      int           `envconfig:"CASSO_PAGE_SIZE" default:"100"`
	MaxPages      int           `envconfig:"CASSO_MAX_PAGES" default:"10"`
	Timeout       time.Duration `envconfig:"CASSO_TIMEOUT" default:"10s"`
	MinAmount     int64         `envconfig:"CASSO_MIN_AMOUNT" default:"10000"`
	MaxAmount     int64         `envconfig:"CASSO_MAX_AMOUNT" default:"500000000"`
}

// Adapter reads bank transactions from Casso.
type Adapter struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// NewAdapter creates a Casso adapter.
func NewAdapter(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (a *Adapter) Kind() provider.Kind { return provider.KindBankAggregator }

func (a *Adapter) Bounds() provider.AmountBounds {
	return provider.AmountBounds{Min: a.config.MinAmount, Max: a.config.MaxAmount}
}

// CreatePaymentRequest returns transfer instructions; no remote call is made.
func (a *Adapter) CreatePaymentRequest(_ context.Context, req provider.PaymentRequest) (provider.PaymentTarget, error) {
	if !a.Bounds().Contains(req.Amount) {
		return provider.PaymentTarget{}, fmt.Errorf("%w: %d", provider.ErrInvalidAmount, req.Amount)
	}
	return provider.PaymentTarget{
		Kind: provider.TargetBankTransfer,
		Bank: &provider.BankInstructions{
			BankName:        a.config.BankName,
			AccountNumber:   a.config.AccountNumber,
			AccountName:     a.config.AccountName,
			TransferContent: req.OrderCode,
		},
		ProviderOrderCode: req.OrderCode,
	}, nil
}

// VerifyWebhook authenticates the source by its secure token and decodes the
// delivered transactions. Both the array and single-object forms are accepted.
func (a *Adapter) VerifyWebhook(raw []byte, headers http.Header) (provider.VerificationResult, error) {
	token := headers.Get(TokenHeader)
	if !provider.EqualToken(a.config.WebhookToken, token) {
		return provider.VerificationResult{}, provider.ErrSignatureInvalid
	}

	var body struct {
		Error int             `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return provider.VerificationResult{}, fmt.Errorf("%w: decode webhook: %v", provider.ErrSignatureInvalid, err)
	}

	var records []webhookRecord
	trimmed := bytes.TrimSpace(body.Data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return provider.VerificationResult{}, fmt.Errorf("%w: decode records: %v", provider.ErrSignatureInvalid, err)
		}
	default:
		var single webhookRecord
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return provider.VerificationResult{}, fmt.Errorf("%w: decode record: %v", provider.ErrSignatureInvalid, err)
		}
		records = append(records, single)
	}

	txs := make([]provider.BankTransaction, 0, len(records))
	for _, r := range records {
		if tx, ok := toTransaction(r.ID, r.TID, r.Description, r.Amount, r.When); ok {
			txs = append(txs, tx)
		}
	}

	res := provider.VerificationResult{
		State:        provider.RemotePaid,
		Signature:    fingerprint(token),
		Transactions: txs,
	}
	if body.Error != 0 {
		res.State = provider.RemoteFailed
	}
	return res, nil
}

// QueryStatus lists incoming transactions booked since the intent was
// created. Matching them against the intent is the caller's job, so the state
// stays PENDING.
func (a *Adapter) QueryStatus(ctx context.Context, req provider.QueryRequest) (provider.RemoteStatus, error) {
	from := req.CreatedAt
	if from.IsZero() {
		from = time.Now()
	}
	fromDate := from.In(vietnam).AddDate(0, 0, -1).Format("2006-01-02")

	var (
		txs       []provider.BankTransaction
		truncated bool
	)
	for page := 1; ; page++ {
		resp, err := a.fetchPage(ctx, fromDate, page)
		if err != nil {
			return provider.RemoteStatus{}, err
		}
		for _, r := range resp.Data.Records {
			if tx, ok := toTransaction(r.ID, r.TID, r.Description, r.Amount, r.When); ok {
				txs = append(txs, tx)
			}
		}
		if resp.Data.TotalPages <= page || len(resp.Data.Records) == 0 {
			break
		}
		if page >= a.config.MaxPages {
			truncated = true
			a.logger.Warn("casso transaction history truncated",
				"from_date", fromDate, "pages", page, "total_pages", resp.Data.TotalPages)
			break
		}
	}

	raw, err := json.Marshal(txs)
	if err != nil {
		return provider.RemoteStatus{}, fmt.Errorf("marshal casso transactions: %w", err)
	}
	return provider.RemoteStatus{State: provider.RemotePending, Transactions: txs, Truncated: truncated, Raw: raw}, nil
}

func (a *Adapter) fetchPage(ctx context.Context, fromDate string, page int) (transactionsResponse, error) {
	q := url.Values{}
	q.Set("fromDate", fromDate)
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(a.config.PageSize))
	q.Set("sort", "ASC")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/v2/transactions?"+q.Encode(), nil)
	if err != nil {
		return transactionsResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Apikey "+a.config.APIKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return transactionsResponse{}, fmt.Errorf("%w: casso: %v", provider.ErrProviderUnavailable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return transactionsResponse{}, fmt.Errorf("%w: casso read response: %v", provider.ErrProviderUnavailable, err)
	}
	if err := provider.ClassifyHTTP("casso", httpResp.StatusCode, respBody); err != nil {
		return transactionsResponse{}, err
	}

	var resp transactionsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return transactionsResponse{}, fmt.Errorf("unmarshal casso response: %w", err)
	}
	if resp.Error != 0 {
		return transactionsResponse{}, fmt.Errorf("casso api error: code=%d message=%s", resp.Error, resp.Message)
	}
	return resp, nil
}

// fingerprint identifies the presented token in audit rows without storing it.
func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:8])
}
