package utils

import (
	"crypto/sha256"
	"fmt"
)

// HashString returns a hex digest used for cache keys and reset tokens.
func HashString(input string) string {
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash)
}
