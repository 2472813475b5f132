package client

import (
	"context"
	"time"
)

// Client is the contract for talking to the secret delivery API. Tokens are
// passed raw; implementations send them as bearer credentials.
type Client interface {
	Health(ctx context.Context) error
	CreateChallenge(ctx context.Context, payloadHash string, ciphertextSize int64) (*Challenge, error)
	CreateSecret(ctx context.Context, in *CreateSecretInput) (*CreatedSecret, error)
	EditSecret(ctx context.Context, editToken string, unlockAt time.Time, expiresAt *time.Time) (*EditedSecret, error)
	Status(ctx context.Context, decryptToken string) (*SecretStatus, error)
	Retrieve(ctx context.Context, decryptToken string) (*RetrievedSecret, error)
}

type Challenge struct {
	ChallengeID string    `json:"challenge_id"`
	Nonce       string    `json:"nonce"`
	Difficulty  int       `json:"difficulty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Algorithm   string    `json:"algorithm"`
}

type PowProof struct {
	ChallengeID string `json:"challenge_id"`
	Nonce       string `json:"nonce"`
	Counter     uint64 `json:"counter"`
	PayloadHash string `json:"payload_hash"`
}

// CreateSecretInput is the create request body. Byte slices travel as
// base64. Set either PowProof or CapabilityToken.
type CreateSecretInput struct {
	Ciphertext      []byte    `json:"ciphertext"`
	IV              []byte    `json:"iv"`
	AuthTag         []byte    `json:"auth_tag"`
	UnlockAt        time.Time `json:"unlock_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	EditToken       string    `json:"edit_token"`
	DecryptToken    string    `json:"decrypt_token"`
	PowProof        *PowProof `json:"pow_proof,omitempty"`
	CapabilityToken string    `json:"-"`
}

type CreatedSecret struct {
	SecretID  string    `json:"secret_id"`
	UnlockAt  time.Time `json:"unlock_at"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

type EditedSecret struct {
	SecretID  string    `json:"secret_id"`
	UnlockAt  time.Time `json:"unlock_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SecretStatus struct {
	Exists    bool       `json:"exists"`
	Status    string     `json:"status"`
	UnlockAt  *time.Time `json:"unlock_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type RetrievedSecret struct {
	Status      string     `json:"status"`
	Ciphertext  []byte     `json:"ciphertext"`
	IV          []byte     `json:"iv"`
	AuthTag     []byte     `json:"auth_tag"`
	UnlockAt    time.Time  `json:"unlock_at"`
	RetrievedAt *time.Time `json:"retrieved_at,omitempty"`
}
