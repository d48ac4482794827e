package momo

import (
	"encoding/json"

	"github.com/tourwallet/topup/internal/provider"
)

// SignIPN fills in the signature of ipn with the credentials in cfg and
// returns the encoded body. Used by tests that need a genuine notification.
func SignIPN(cfg Config, ipn IPN) []byte {
	ipn.PartnerCode = cfg.PartnerCode
	ipn.Signature = provider.SignHMAC(cfg.SecretKey, provider.CanonicalString(ipn.signedFields(cfg.AccessKey)))
	raw, _ := json.Marshal(ipn)
	return raw
}
