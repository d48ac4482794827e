package payos

import (
	"encoding/json"

	"github.com/tourwallet/topup/internal/provider"
)

// SignWebhook signs data with the checksum key from cfg and returns the
// encoded webhook body. Used by tests that need a genuine notification.
func SignWebhook(cfg Config, data WebhookData) []byte {
	hook := Webhook{
		Code:      codeSuccess,
		Desc:      "success",
		Success:   true,
		Data:      data,
		Signature: provider.SignHMAC(cfg.ChecksumKey, provider.CanonicalString(data.signedFields())),
	}
	raw, _ := json.Marshal(hook)
	return raw
}
