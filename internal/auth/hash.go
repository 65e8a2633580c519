package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Digest returns the lowercase hex SHA-256 of data.
//
// This is the engine's one-way hash for PINs, security answers, and
// device fingerprints. There is deliberately no weaker fallback: the
// digest primitive is statically linked, and an engine that cannot hash
// must fail closed rather than downgrade to a reversible encoding.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestStrings hashes the concatenation of parts. Used for salted
// values such as Digest(pin || username).
func DigestStrings(parts ...string) string {
	return Digest([]byte(strings.Join(parts, "")))
}
