package cryptox

import "github.com/richmiles/in-the-event-of-my-death/internal/common"

// PrefixLength is the number of leading hex characters (64 bits) of a raw
// token stored in plain form as an index accelerator.
const PrefixLength = 16

// GenerateToken returns a fresh 256-bit token, hex encoded.
func GenerateToken() (string, error) {
	return common.MakeRandHexString(32)
}

// TokenPrefix returns the indexed prefix of a raw token.
func TokenPrefix(raw string) string {
	if len(raw) < PrefixLength {
		return raw
	}
	return raw[:PrefixLength]
}

// MatchToken verifies raw against every candidate fetched by prefix and
// returns the first one whose full hash matches. The prefix narrows the
// search; only the hash decides.
func MatchToken[T any](h *Hasher, raw string, candidates []T, hashOf func(T) string) (T, bool) {
	for _, c := range candidates {
		if h.Verify(raw, hashOf(c)) {
			return c, true
		}
	}
	var zero T
	return zero, false
}
