package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Key derives a deterministic cache key from the semantic inputs of a search.
// Any change to ranking-affecting configuration (sources, RRF constant, policy
// version) must change the key, so all of it is folded into the digest.
func Key(query string, k int, sources []string, rrfK int, policyVersion string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s\x00%d\x00%s\x00%d\x00%s",
		query, k, strings.Join(sources, ","), rrfK, policyVersion))
	return hex.EncodeToString(h[:])
}
