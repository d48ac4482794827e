package casso

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tourwallet/topup/internal/provider"
)

// Casso reports bank booking times in Vietnam local time without an offset.
const whenLayout = "2006-01-02 15:04:05"

var vietnam = time.FixedZone("ICT", 7*60*60)

// webhookRecord is one transaction in a webhook delivery.
type webhookRecord struct {
	ID           int64           `json:"id"`
	TID          string          `json:"tid"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	CusumBalance decimal.Decimal `json:"cusum_balance"`
	When         string          `json:"when"`
	BankSubAccID string          `json:"bank_sub_acc_id"`
	SubAccID     string          `json:"subAccId"`
}

// apiRecord is one transaction returned by GET /v2/transactions.
type apiRecord struct {
	ID           int64           `json:"id"`
	TID          string          `json:"tid"`
	Description  string          `json:"description"`
	Amount       decimal.Decimal `json:"amount"`
	CusumBalance decimal.Decimal `json:"cusumBalance"`
	When         string          `json:"when"`
	BankSubAccID string          `json:"bankSubAccId"`
}

type transactionsPage struct {
	Page         int         `json:"page"`
	PageSize     int         `json:"pageSize"`
	NextPage     int         `json:"nextPage"`
	TotalPages   int         `json:"totalPages"`
	TotalRecords int         `json:"totalRecords"`
	Records      []apiRecord `json:"records"`
}

type transactionsResponse struct {
	Error   int              `json:"error"`
	Message string           `json:"message"`
	Data    transactionsPage `json:"data"`
}

// toTransaction converts a raw record; ok is false for outgoing transfers.
func toTransaction(id int64, tid, description string, amount decimal.Decimal, when string) (provider.BankTransaction, bool) {
	if !amount.IsPositive() {
		return provider.BankTransaction{}, false
	}
	ref := strings.TrimSpace(tid)
	if ref == "" {
		ref = strconv.FormatInt(id, 10)
	}
	postedAt, err := time.ParseInLocation(whenLayout, strings.TrimSpace(when), vietnam)
	if err != nil {
		postedAt = time.Time{}
	}
	return provider.BankTransaction{
		Ref:         ref,
		Description: description,
		Amount:      amount.Round(0).IntPart(),
		PostedAt:    postedAt.UTC(),
	}, true
}
