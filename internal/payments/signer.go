package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ChecksumDelimiter separates the digest from the client version in X-VERIFY.
const ChecksumDelimiter = "###"

// Sign returns hex(sha256(payload || secret)). The concatenation order is
// fixed by the gateway protocol.
func Sign(payload []byte, secret string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum builds an X-VERIFY header value: <sign(payload)>###<version>.
func Checksum(payload, secret, version string) string {
	return Sign([]byte(payload), secret) + ChecksumDelimiter + version
}

// VerifyChecksum recomputes the digest over payload and compares it with the
// one carried by header in constant time. Any malformed header is a mismatch.
func VerifyChecksum(payload []byte, header, secret, version string) bool {
	parts := strings.Split(header, ChecksumDelimiter)
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	if parts[1] != version {
		return false
	}
	want := Sign(payload, secret)
	return hmac.Equal([]byte(parts[0]), []byte(want))
}
