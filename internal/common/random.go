package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates size random bytes and returns them hex-encoded,
// so the resulting string is 2*size characters long.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Fingerprint returns a log-safe prefix of a token string.
func Fingerprint(token string) string {
	if len(token) <= TokenFingerprintLen {
		return token
	}
	return token[:TokenFingerprintLen] + "…"
}
