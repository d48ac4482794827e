// Package provider defines the contract every payment gateway adapter satisfies
// and the helpers they share (canonical signing strings, HMAC, retry).
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrProviderUnavailable covers network failures, timeouts and 5xx responses.
	// Callers may retry with backoff.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidAmount indicates the amount is outside the provider's accepted bounds.
	ErrInvalidAmount = errors.New("invalid amount for provider")

	// ErrSignatureInvalid means an inbound notification could not be authenticated.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrUnknownProvider is returned when no adapter is registered for a kind.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Kind enumerates the supported funding channels.
type Kind string

const (
	KindMobileWallet   Kind = "MOBILE_WALLET"
	KindBankQR         Kind = "BANK_QR"
	KindBankAggregator Kind = "BANK_AGGREGATOR"
)

// Kinds lists every supported provider in a stable order.
var Kinds = []Kind{KindMobileWallet, KindBankQR, KindBankAggregator}

// ParseKind accepts either the enum value or the gateway slug (momo, payos, casso).
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(KindMobileWallet), "MOMO":
		return KindMobileWallet, nil
	case string(KindBankQR), "PAYOS":
		return KindBankQR, nil
	case string(KindBankAggregator), "CASSO":
		return KindBankAggregator, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// Slug is the short gateway name used in routes and subjects.
func (k Kind) Slug() string {
	switch k {
	case KindMobileWallet:
		return "momo"
	case KindBankQR:
		return "payos"
	case KindBankAggregator:
		return "casso"
	}
	return strings.ToLower(string(k))
}

// AmountBounds is the inclusive range of amounts (minor units) a provider accepts.
type AmountBounds struct {
	Min int64
	Max int64
}

// Contains reports whether amount is inside the bounds. A zero Max means unbounded.
func (b AmountBounds) Contains(amount int64) bool {
	if amount <= 0 || amount < b.Min {
		return false
	}
	return b.Max == 0 || amount <= b.Max
}

// PaymentRequest is what the registry asks an adapter to open at the gateway.
type PaymentRequest struct {
	IntentID    string
	OrderCode   string
	Amount      int64
	Description string
}

// TargetKind says how the user completes the payment.
type TargetKind string

const (
	TargetRedirect     TargetKind = "redirect"
	TargetQR           TargetKind = "qr"
	TargetBankTransfer TargetKind = "bank_transfer"
)

// BankInstructions are shown to the user for a manual bank transfer.
type BankInstructions struct {
	BankName        string `json:"bank_name"`
	AccountNumber   string `json:"account_number"`
	AccountName     string `json:"account_name"`
	TransferContent string `json:"transfer_content"`
}

// PaymentTarget is returned by CreatePaymentRequest.
type PaymentTarget struct {
	Kind              TargetKind        `json:"kind"`
	RedirectURL       string            `json:"redirect_url,omitempty"`
	QRPayload         string            `json:"qr_payload,omitempty"`
	Bank              *BankInstructions `json:"bank,omitempty"`
	ProviderOrderCode string            `json:"provider_order_code"`
}

// BankTransaction is one incoming transfer reported by a bank aggregator.
type BankTransaction struct {
	Ref         string    `json:"ref"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	PostedAt    time.Time `json:"posted_at"`
}

// VerificationResult is the authenticated content of a webhook.
type VerificationResult struct {
	OrderCode      string
	Amount         int64
	TransactionRef string
	// State is RemotePaid, RemotePending for an in-flight payment, or
	// RemoteFailed for a failed or cancelled one.
	State RemoteState
	// Signature is the credential the notification was authenticated with.
	Signature string
	// Transactions is only populated by aggregators, which carry no order code.
	Transactions []BankTransaction
}

// RemoteState is the provider-side state of a payment.
type RemoteState string

const (
	RemotePending RemoteState = "PENDING"
	RemotePaid    RemoteState = "PAID"
	RemoteFailed  RemoteState = "FAILED"
	RemoteExpired RemoteState = "EXPIRED"
)

// QueryRequest identifies the payment to look up.
type QueryRequest struct {
	OrderCode string
	Amount    int64
	CreatedAt time.Time
}

// RemoteStatus is the answer to QueryStatus.
type RemoteStatus struct {
	State          RemoteState
	Amount         int64
	TransactionRef string
	Transactions   []BankTransaction
	// Truncated is set when the provider had more transactions than were
	// fetched.
	Truncated bool
	Raw       []byte
}

// Adapter is implemented once per gateway.
type Adapter interface {
	Kind() Kind
	Bounds() AmountBounds
	CreatePaymentRequest(ctx context.Context, req PaymentRequest) (PaymentTarget, error)
	VerifyWebhook(raw []byte, headers http.Header) (VerificationResult, error)
	QueryStatus(ctx context.Context, req QueryRequest) (RemoteStatus, error)
}

// Set maps each provider kind to its adapter.
type Set map[Kind]Adapter

// NewSet indexes adapters by their Kind.
func NewSet(adapters ...Adapter) Set {
	s := make(Set, len(adapters))
	for _, a := range adapters {
		s[a.Kind()] = a
	}
	return s
}

// Get returns the adapter for kind or ErrUnknownProvider.
func (s Set) Get(kind Kind) (Adapter, error) {
	a, ok := s[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, kind)
	}
	return a, nil
}

// ClassifyHTTP maps a gateway response code onto the error taxonomy: 5xx and
// 429 become ErrProviderUnavailable, other 4xx a plain error.
func ClassifyHTTP(name string, status int, body []byte) error {
	if status < 400 {
		return nil
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s status=%d", ErrProviderUnavailable, name, status)
	}
	return fmt.Errorf("%s api error: status=%d body=%s", name, status, truncate(string(body), 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
