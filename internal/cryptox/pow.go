package cryptox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/bits"
)

// PayloadHash is the fingerprint a challenge is bound to:
// hex(SHA-256(ciphertext || iv || authTag)).
func PayloadHash(ciphertext, iv, authTag []byte) string {
	h := sha256.New()
	h.Write(ciphertext)
	h.Write(iv)
	h.Write(authTag)
	return hex.EncodeToString(h.Sum(nil))
}

// WorkHash computes SHA-256(nonce || %016x(counter) || payloadHash).
func WorkHash(nonce string, counter uint64, payloadHash string) [32]byte {
	return sha256.Sum256([]byte(fmt.Sprintf("%s%016x%s", nonce, counter, payloadHash)))
}

// LeadingZeroBits counts the zero bits at the big-endian start of sum.
func LeadingZeroBits(sum [32]byte) int {
	n := 0
	for _, b := range sum {
		if b != 0 {
			return n + bits.LeadingZeros8(b)
		}
		n += 8
	}
	return n
}

// MeetsDifficulty reports whether sum, read as a big-endian integer, is
// below 2^(256-difficulty).
func MeetsDifficulty(sum [32]byte, difficulty int) bool {
	if difficulty > 256 {
		return false
	}
	return LeadingZeroBits(sum) >= difficulty
}

// SolveWork searches counters from zero until one satisfies difficulty.
// It is what clients run; the server only uses it in tests and tooling.
func SolveWork(ctx context.Context, nonce, payloadHash string, difficulty int) (uint64, error) {
	for counter := uint64(0); ; counter++ {
		if counter&0xffff == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if MeetsDifficulty(WorkHash(nonce, counter, payloadHash), difficulty) {
			return counter, nil
		}
	}
}
