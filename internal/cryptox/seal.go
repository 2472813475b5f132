package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/richmiles/in-the-event-of-my-death/internal/common"
)

const (
	IVSize      = 12
	AuthTagSize = 16
)

// SealedPayload is an AES-256-GCM ciphertext with the tag split off, the
// shape clients upload. The server never decrypts it.
type SealedPayload struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Seal encrypts plaintext with a 32-byte key and a random 12-byte IV. Used
// by tooling and tests to produce realistic uploads.
func Seal(plaintext, key []byte) (*SealedPayload, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := common.GenerateRandByteArray(IVSize)
	sealed := aesgcm.Seal(nil, iv, plaintext, nil)
	n := len(sealed) - AuthTagSize

	return &SealedPayload{
		Ciphertext: sealed[:n],
		IV:         iv,
		AuthTag:    sealed[n:],
	}, nil
}

// Open reverses Seal.
func Open(p *SealedPayload, key []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.AuthTag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.AuthTag...)

	plaintext, err := aesgcm.Open(nil, p.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
