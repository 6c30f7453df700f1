package messenger

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header carrying the webhook payload signature.
const SignatureHeader = "X-Hub-Signature"

// VerifySignature checks the x-hub-signature header value against the raw
// request body using HMAC-SHA1 with the app secret. The header format is
// "sha1=<hexdigest>"; a missing or malformed header fails verification.
// The digest comparison is constant-time and case-insensitive.
func VerifySignature(header string, body []byte, appSecret string) bool {
	if header == "" {
		return false
	}
	method, digest, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(method, "sha1") {
		return false
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Sign computes the signature header value for a payload. Used by tests and
// by outbound webhook simulation tooling.
func Sign(body []byte, appSecret string) string {
	mac := hmac.New(sha1.New, []byte(appSecret))
	mac.Write(body)
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}
