package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// QueryHash returns the stable key used for query_progress rows. Hashing is
// case- and whitespace-insensitive so cosmetic query changes do not orphan
// rotation state.
func QueryHash(queryText string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
