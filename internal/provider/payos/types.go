package payos

import "strconv"

const codeSuccess = "00"

// Payment link states reported by GET /v2/payment-requests/{orderCode}.
const (
	linkPending    = "PENDING"
	linkProcessing = "PROCESSING"
	linkPaid       = "PAID"
	linkUnderpaid  = "UNDERPAID"
	linkCancelled  = "CANCELLED"
	linkExpired    = "EXPIRED"
)

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	ExpiredAt   int64  `json:"expiredAt,omitempty"`
	Signature   string `json:"signature"`
}

type envelope[T any] struct {
	Code      string `json:"code"`
	Desc      string `json:"desc"`
	Data      *T     `json:"data"`
	Signature string `json:"signature,omitempty"`
}

type createData struct {
	Bin           string `json:"bin"`
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	OrderCode     int64  `json:"orderCode"`
	Currency      string `json:"currency"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

type linkTransaction struct {
	Reference           string `json:"reference"`
	Amount              int64  `json:"amount"`
	AccountNumber       string `json:"accountNumber"`
	Description         string `json:"description"`
	TransactionDateTime string `json:"transactionDateTime"`
}

type linkInfo struct {
	ID                 string            `json:"id"`
	OrderCode          int64             `json:"orderCode"`
	Amount             int64             `json:"amount"`
	AmountPaid         int64             `json:"amountPaid"`
	AmountRemaining    int64             `json:"amountRemaining"`
	Status             string            `json:"status"`
	CreatedAt          string            `json:"createdAt"`
	Transactions       []linkTransaction `json:"transactions"`
	CancellationReason *string           `json:"cancellationReason"`
}

// Webhook is the payment notification PayOS posts to the registered URL.
type Webhook struct {
	Code      string      `json:"code"`
	Desc      string      `json:"desc"`
	Success   bool        `json:"success"`
	Data      WebhookData `json:"data"`
	Signature string      `json:"signature"`
}

// WebhookData is the signed part of a Webhook.
type WebhookData struct {
	OrderCode              int64   `json:"orderCode"`
	Amount                 int64   `json:"amount"`
	Description            string  `json:"description"`
	AccountNumber          string  `json:"accountNumber"`
	Reference              string  `json:"reference"`
	TransactionDateTime    string  `json:"transactionDateTime"`
	Currency               string  `json:"currency"`
	PaymentLinkID          string  `json:"paymentLinkId"`
	Code                   string  `json:"code"`
	Desc                   string  `json:"desc"`
	CounterAccountBankID   *string `json:"counterAccountBankId"`
	CounterAccountBankName *string `json:"counterAccountBankName"`
	CounterAccountName     *string `json:"counterAccountName"`
	CounterAccountNumber   *string `json:"counterAccountNumber"`
	VirtualAccountName     *string `json:"virtualAccountName"`
	VirtualAccountNumber   *string `json:"virtualAccountNumber"`
}

func (d WebhookData) signedFields() map[string]string {
	return map[string]string{
		"orderCode":              strconv.FormatInt(d.OrderCode, 10),
		"amount":                 strconv.FormatInt(d.Amount, 10),
		"description":            d.Description,
		"accountNumber":          d.AccountNumber,
		"reference":              d.Reference,
		"transactionDateTime":    d.TransactionDateTime,
		"currency":               d.Currency,
		"paymentLinkId":          d.PaymentLinkID,
		"code":                   d.Code,
		"desc":                   d.Desc,
		"counterAccountBankId":   deref(d.CounterAccountBankID),
		"counterAccountBankName": deref(d.CounterAccountBankName),
		"counterAccountName":     deref(d.CounterAccountName),
		"counterAccountNumber":   deref(d.CounterAccountNumber),
		"virtualAccountName":     deref(d.VirtualAccountName),
		"virtualAccountNumber":   deref(d.VirtualAccountNumber),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
