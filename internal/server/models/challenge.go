package models

import "time"

// Challenge is a proof-of-work puzzle bound to one payload fingerprint.
type Challenge struct {
	ID             string
	Nonce          string
	Difficulty     int
	PayloadHash    string
	CiphertextSize int64
	ExpiresAt      time.Time
	IsUsed         bool
	CreatedAt      time.Time
}

// Expired reports whether the challenge can no longer be redeemed at now.
// A challenge is still valid at the exact instant of ExpiresAt.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
