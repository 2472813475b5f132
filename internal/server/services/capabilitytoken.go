package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/repomanager"
)

// TokenValidation is the read-only verdict on a raw capability token.
// Reason is nil only when Valid is set.
type TokenValidation struct {
	Valid    bool
	Consumed bool
	Reason   error
	Token    *models.CapabilityToken
}

// CapabilityTokenService issues prepaid single-use admission tokens and
// checks them.
type CapabilityTokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         *config.Config
	opts        options
}

func NewCapabilityTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *CapabilityTokenService {
	return &CapabilityTokenService{
		db:          db,
		repomanager: m,
		cfg:         cfg,
		opts:        newOptions(opts),
	}
}

// Issue creates a token of the given tier and returns it with its raw
// value. The raw value is not recoverable afterwards.
func (s *CapabilityTokenService) Issue(ctx context.Context, tier string, paymentProvider, paymentReference *string) (*models.CapabilityToken, string, error) {
	limits, ok := s.cfg.CapabilityTiers[tier]
	if !ok {
		return nil, "", common.ErrUnknownTier
	}

	raw, err := cryptox.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("token generation error: %w", err)
	}
	hash, err := s.opts.hasher.Hash(raw)
	if err != nil {
		return nil, "", fmt.Errorf("token hashing error: %w", err)
	}

	now := s.opts.now()
	t := &models.CapabilityToken{
		ID:                uuid.NewString(),
		TokenHash:         hash,
		TokenPrefix:       cryptox.TokenPrefix(raw),
		Tier:              tier,
		MaxCiphertextSize: limits.MaxCiphertextSize,
		MaxExpiryDays:     limits.MaxExpiryDays,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.cfg.CapabilityTokenValidity),
		PaymentProvider:   paymentProvider,
		PaymentReference:  paymentReference,
	}

	if err := s.repomanager.CapabilityTokens(s.db).Create(ctx, t); err != nil {
		return nil, "", fmt.Errorf("error creating capability token: %w", err)
	}

	s.opts.logger.Info(ctx, "capability token issued", "token_id", t.ID, "tier", tier)
	return t, raw, nil
}

func (s *CapabilityTokenService) lookup(ctx context.Context, raw string, includeConsumed bool) (*models.CapabilityToken, bool, error) {
	candidates, err := s.repomanager.CapabilityTokens(s.db).FindByPrefix(ctx, cryptox.TokenPrefix(raw), includeConsumed)
	if err != nil {
		return nil, false, fmt.Errorf("error looking up capability token: %w", err)
	}
	t, ok := cryptox.MatchToken(s.opts.hasher, raw, candidates, func(t *models.CapabilityToken) string {
		return t.TokenHash
	})
	return t, ok, nil
}

// Find returns the live token matching raw. Consumed and expired tokens
// are reported as common.ErrTokenNotFound.
func (s *CapabilityTokenService) Find(ctx context.Context, raw string) (*models.CapabilityToken, error) {
	if !common.IsHexToken(raw) {
		return nil, common.ErrTokenInvalidFormat
	}
	t, ok, err := s.lookup(ctx, raw, false)
	if err != nil {
		return nil, err
	}
	if !ok || t.Expired(s.opts.now()) {
		return nil, common.ErrTokenNotFound
	}
	return t, nil
}

// Validate reports whether raw would currently admit a write and, if not,
// why. Only infrastructure failures are returned as errors.
func (s *CapabilityTokenService) Validate(ctx context.Context, raw string) (*TokenValidation, error) {
	if !common.IsHexToken(raw) {
		return &TokenValidation{Reason: common.ErrTokenInvalidFormat}, nil
	}

	t, ok, err := s.lookup(ctx, raw, true)
	if err != nil {
		return nil, err
	}

	switch {
	case !ok:
		return &TokenValidation{Reason: common.ErrTokenNotFound}, nil
	case t.Consumed():
		return &TokenValidation{Consumed: true, Reason: common.ErrTokenConsumed, Token: t}, nil
	case t.Expired(s.opts.now()):
		return &TokenValidation{Reason: common.ErrTokenExpired, Token: t}, nil
	}
	return &TokenValidation{Valid: true, Token: t}, nil
}

// Consume spends t for secretID inside the caller's transaction. Losing a
// race yields common.ErrTokenConsumed.
func (s *CapabilityTokenService) Consume(ctx context.Context, tx dbx.DBTX, t *models.CapabilityToken, secretID string, at time.Time) error {
	return s.repomanager.CapabilityTokens(tx).Consume(ctx, t.ID, secretID, at)
}
