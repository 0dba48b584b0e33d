package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIdentifier returns the hex SHA-256 of a normalized identifier (IP
// address, user agent). Raw values are never persisted; only these hashes
// are stored and compared.
func HashIdentifier(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
