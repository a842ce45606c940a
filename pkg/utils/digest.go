package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// DigestSecret is the server-side HMAC key for code digests and device
// fingerprints. A plain hash of a 6-digit code is trivially brute-forced
// offline, so both digests are keyed.
var digestSecret = []byte("change-me-in-production")

func ConfigureDigest(secret string) {
	if secret != "" {
		digestSecret = []byte(secret)
	}
}

// DigestCode returns the hex HMAC-SHA256 of a plaintext verification code.
func DigestCode(code string) string {
	mac := hmac.New(sha256.New, digestSecret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// DigestsEqual compares two hex digests in constant time.
func DigestsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// FingerprintDevice derives a stable, non-reversible device fingerprint from
// request characteristics. No raw header value is stored.
func FingerprintDevice(parts ...string) string {
	mac := hmac.New(sha256.New, digestSecret)
	for _, p := range parts {
		mac.Write([]byte(p))
		mac.Write([]byte{0})
	}
	return hex.EncodeToString(mac.Sum(nil))
}
