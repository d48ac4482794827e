// Package providertest offers a scriptable provider.Adapter for tests.
package providertest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/tourwallet/topup/internal/provider"
)

// Notification is the JSON body the fake accepts as a webhook.
type Notification struct {
	OrderCode      string                     `json:"order_code"`
	Amount         int64                      `json:"amount"`
	TransactionRef string                     `json:"transaction_ref"`
	Paid           bool                       `json:"paid"`
	// Pending reports an in-flight payment; it is ignored when Paid is set.
	Pending        bool                       `json:"pending,omitempty"`
	Transactions   []provider.BankTransaction `json:"transactions,omitempty"`
}

// SignatureHeader must equal Fake.Secret for a webhook to verify.
const SignatureHeader = "X-Fake-Signature"

// Fake implements provider.Adapter in memory.
type Fake struct {
	mu sync.Mutex

	KindValue  provider.Kind
	BoundsVal  provider.AmountBounds
	Secret     string
	CreateErrs []error
	Status     map[string]provider.RemoteStatus
	QueryErr   error

	CreateCalls int
	QueryCalls  int
}

var _ provider.Adapter = (*Fake)(nil)

// New returns a fake adapter accepting amounts 1..1e9.
func New(kind provider.Kind) *Fake {
	return &Fake{
		KindValue: kind,
		BoundsVal: provider.AmountBounds{Min: 1, Max: 1_000_000_000},
		Secret:    "fake-secret",
		Status:    map[string]provider.RemoteStatus{},
	}
}

// Body encodes a notification for the fake's VerifyWebhook.
func Body(n Notification) []byte {
	raw, _ := json.Marshal(n)
	return raw
}

// Headers returns headers carrying the fake's secret.
func (f *Fake) Headers() http.Header {
	h := http.Header{}
	h.Set(SignatureHeader, f.Secret)
	return h
}

// SetStatus scripts the answer QueryStatus gives for an order code.
func (f *Fake) SetStatus(orderCode string, status provider.RemoteStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Status[orderCode] = status
}

func (f *Fake) Kind() provider.Kind { return f.KindValue }

func (f *Fake) Bounds() provider.AmountBounds { return f.BoundsVal }

func (f *Fake) CreatePaymentRequest(_ context.Context, req provider.PaymentRequest) (provider.PaymentTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	if len(f.CreateErrs) > 0 {
		err := f.CreateErrs[0]
		f.CreateErrs = f.CreateErrs[1:]
		if err != nil {
			return provider.PaymentTarget{}, err
		}
	}
	return provider.PaymentTarget{
		Kind:              provider.TargetRedirect,
		RedirectURL:       "https://pay.example/" + req.OrderCode,
		ProviderOrderCode: req.OrderCode,
	}, nil
}

func (f *Fake) VerifyWebhook(raw []byte, headers http.Header) (provider.VerificationResult, error) {
	if !provider.EqualToken(f.Secret, headers.Get(SignatureHeader)) {
		return provider.VerificationResult{}, provider.ErrSignatureInvalid
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return provider.VerificationResult{}, provider.ErrSignatureInvalid
	}
	state := provider.RemoteFailed
	switch {
	case n.Paid:
		state = provider.RemotePaid
	case n.Pending:
		state = provider.RemotePending
	}
	return provider.VerificationResult{
		OrderCode:      n.OrderCode,
		Amount:         n.Amount,
		TransactionRef: n.TransactionRef,
		State:          state,
		Signature:      "fake",
		Transactions:   n.Transactions,
	}, nil
}

func (f *Fake) QueryStatus(_ context.Context, req provider.QueryRequest) (provider.RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QueryCalls++
	if f.QueryErr != nil {
		return provider.RemoteStatus{}, f.QueryErr
	}
	status, ok := f.Status[req.OrderCode]
	if !ok {
		return provider.RemoteStatus{State: provider.RemotePending, Raw: []byte(`{}`)}, nil
	}
	if status.Raw == nil {
		status.Raw = []byte(`{}`)
	}
	return status, nil
}
