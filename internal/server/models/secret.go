// Package models defines server-side data models persisted in the database.
package models

import "time"

// SecretState is derived from timestamps on every read; it is never stored.
type SecretState string

const (
	StatePending   SecretState = "pending"
	StateAvailable SecretState = "available"
	StateRetrieved SecretState = "retrieved"
	StateExpired   SecretState = "expired"
)

// Secret is one stored payload. Ciphertext, IV and AuthTag are opaque and
// become nil once the secret is retrieved or cleared. A payload kept in
// object storage has ObjectKey set and a nil Ciphertext.
type Secret struct {
	ID string

	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	ObjectKey  string

	CiphertextSize int64

	UnlockAt  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time

	RetrievedAt *time.Time
	ClearedAt   *time.Time
	IsDeleted   bool

	EditTokenHash      string
	EditTokenPrefix    string
	DecryptTokenHash   string
	DecryptTokenPrefix string
}

// State evaluates the lifecycle state at now. Retrieval wins over expiry,
// and expiry over the time lock.
func (s *Secret) State(now time.Time) SecretState {
	switch {
	case s.RetrievedAt != nil:
		return StateRetrieved
	case !now.Before(s.ExpiresAt):
		return StateExpired
	case now.Before(s.UnlockAt):
		return StatePending
	default:
		return StateAvailable
	}
}

// HasPayload reports whether payload bytes are still held for the secret.
func (s *Secret) HasPayload() bool {
	return s.Ciphertext != nil || s.ObjectKey != ""
}
