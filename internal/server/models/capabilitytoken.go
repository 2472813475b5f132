package models

import "time"

// CapabilityToken is a prepaid, single-use admission credential. Only the
// hash and prefix of the raw value are kept.
type CapabilityToken struct {
	ID          string
	TokenHash   string
	TokenPrefix string

	Tier              string
	MaxCiphertextSize int64
	MaxExpiryDays     int

	CreatedAt time.Time
	ExpiresAt time.Time

	ConsumedAt         *time.Time
	ConsumedBySecretID *string

	PaymentProvider  *string
	PaymentReference *string
}

func (t *CapabilityToken) Consumed() bool {
	return t.ConsumedAt != nil
}

func (t *CapabilityToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
