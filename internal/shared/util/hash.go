package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey returns the hex SHA-256 of parts joined by "|".
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// NamespaceKey returns a filesystem-safe identifier for a storage namespace.
func NamespaceKey(s string) string {
	return HashKey(s)[:16]
}
