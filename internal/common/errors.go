// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors. Specific reasons wrap ErrValidation.
	ErrValidation        = errors.New("validation error")
	ErrInvalidPayload    = fmt.Errorf("%w: invalid payload", ErrValidation)
	ErrInvalidTokenValue = fmt.Errorf("%w: invalid token value", ErrValidation)
	ErrUnlockTooSoon     = fmt.Errorf("%w: unlock time too soon", ErrValidation)
	ErrUnlockTooLate     = fmt.Errorf("%w: unlock time too far in the future", ErrValidation)
	ErrExpiryGap         = fmt.Errorf("%w: expiry too close to unlock time", ErrValidation)
	ErrExpiryTooLate     = fmt.Errorf("%w: expiry too far in the future", ErrValidation)
	ErrUnlockNotLater    = fmt.Errorf("%w: new unlock time must be after current unlock time", ErrValidation)
	ErrExpiryShortened   = fmt.Errorf("%w: expiry cannot be moved earlier", ErrValidation)
	ErrAlreadyUnlocked   = fmt.Errorf("%w: secret has already unlocked", ErrValidation)
	ErrUnknownTier       = fmt.Errorf("%w: unknown tier", ErrValidation)

	// Admission errors: proof of work.
	ErrAdmissionRequired      = errors.New("pow_proof or capability token required")
	ErrAdmissionAmbiguous     = errors.New("provide either pow_proof or capability token, not both")
	ErrChallengeNotFound      = errors.New("challenge not found")
	ErrChallengeUsed          = errors.New("challenge already used")
	ErrChallengeExpired       = errors.New("challenge expired")
	ErrNonceMismatch          = errors.New("nonce mismatch")
	ErrPayloadHashMismatch    = errors.New("payload hash mismatch")
	ErrInsufficientWork       = errors.New("insufficient proof of work")
	ErrInsufficientDifficulty = errors.New("challenge difficulty too low for payload size")
	ErrPayloadTooLarge        = errors.New("payload exceeds size limit")

	// Admission errors: capability tokens.
	ErrTokenInvalidFormat = errors.New("invalid capability token format")
	ErrTokenNotFound      = errors.New("capability token not found")
	ErrTokenConsumed      = errors.New("capability token already consumed")
	ErrTokenExpired       = errors.New("capability token expired")
	ErrTokenLimitExceeded = errors.New("payload exceeds token limit")

	// Auth errors (invalid or malformed internal token).
	ErrInvalidToken = errors.New("invalid token")
)
