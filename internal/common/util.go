package common

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
)

// HashToken returns the hex SHA-256 digest of a token. Only digests of
// refresh tokens are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Round2 rounds a money amount to cents, halves away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WipeByteArray overwrites b with zeros. Used for passwords read from the
// terminal once they have been sent.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
