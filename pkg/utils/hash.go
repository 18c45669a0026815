package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashString returns a stable hex digest of input.
func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// TextFingerprint identifies requirement text independent of surrounding
// whitespace and letter case, so audit rows for the same request collapse.
func TextFingerprint(text string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return HashString(normalized)[:16]
}
