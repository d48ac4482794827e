package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// CanonicalString joins fields as key=value pairs sorted by key and separated
// by '&'. Every gateway that signs payloads uses this layout, so it lives here
// once. Missing keys are rendered with an empty value.
func CanonicalString(fields map[string]string, keys ...string) string {
	if len(keys) == 0 {
		keys = make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
	} else {
		keys = append([]string(nil), keys...)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

// SignHMAC returns the lowercase hex HMAC-SHA256 of payload.
func SignHMAC(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC compares a hex signature against the expected HMAC in constant time.
func VerifyHMAC(secret, payload, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hmac.Equal(mac.Sum(nil), got)
}

// EqualToken compares two shared secrets in constant time.
func EqualToken(expected, got string) bool {
	if expected == "" {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(got))
}
