// Package cryptoutil holds the one-way hashing used for stored identity
// values and the format checks for the identifiers derived from them.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// IsHexString reports whether s consists entirely of hexadecimal characters
// (0-9, a-f, A-F). It returns true for an empty string; callers should check
// length separately when a minimum size is required.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// HashIdentity returns the hex SHA-256 of the lower-cased, trimmed value.
// Equal values that differ only in case or surrounding space hash equally.
func HashIdentity(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}
