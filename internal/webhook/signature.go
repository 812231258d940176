package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

const (
	MonnifySignatureHeader  = "monnify-signature"
	PaystackSignatureHeader = "x-paystack-signature"
)

// Secret is the signing configuration of one provider.
type Secret struct {
	Header string
	Key    string
}

// Sign returns the hex HMAC-SHA512 of body under key.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidSignature reports whether signature is the HMAC-SHA512 of body under key.
// The comparison is constant time.
func ValidSignature(key string, body []byte, signature string) bool {
	if key == "" || signature == "" {
		return false
	}
	expected := Sign(key, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
