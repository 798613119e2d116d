package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the HMAC-SHA512 signature the gateway computes over
// the exact raw request body. The header value may carry a "sha512=" prefix
// depending on gateway configuration; both forms are accepted.
//
// Comparison is constant time. An empty header or an empty secret always
// fails closed.
func VerifySignature(body []byte, header, secret string) bool {
	if header == "" || secret == "" {
		return false
	}

	header = strings.TrimPrefix(header, "sha512=")

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(header)))
}
