package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/repomanager"
)

// ChallengeService issues and verifies proof-of-work challenges. Verifying
// never burns a challenge; MarkUsed is a separate step taken by the caller
// once the gated write is persisted.
type ChallengeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         *config.Config
	opts        options
}

func NewChallengeService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, opts ...Option) *ChallengeService {
	return &ChallengeService{
		db:          db,
		repomanager: m,
		cfg:         cfg,
		opts:        newOptions(opts),
	}
}

// ExpectedDifficulty is base + min(size / step, bonus). It is monotonic in
// size and capped.
func (s *ChallengeService) ExpectedDifficulty(size int64) int {
	bonus := size / s.cfg.PowSizeStep
	if bonus > int64(s.cfg.PowMaxSizeBonus) {
		bonus = int64(s.cfg.PowMaxSizeBonus)
	}
	if bonus < 0 {
		bonus = 0
	}
	return s.cfg.PowBaseDifficulty + int(bonus)
}

// Generate persists a fresh challenge bound to payloadHash.
func (s *ChallengeService) Generate(ctx context.Context, payloadHash string, size int64) (*models.Challenge, error) {
	if !common.IsHexToken(payloadHash) || size <= 0 {
		return nil, common.ErrInvalidPayload
	}
	if size > s.cfg.MaxCiphertextSize {
		return nil, common.ErrPayloadTooLarge
	}

	nonce, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("nonce generation error: %w", err)
	}

	now := s.opts.now()
	c := &models.Challenge{
		ID:             uuid.NewString(),
		Nonce:          nonce,
		Difficulty:     s.ExpectedDifficulty(size),
		PayloadHash:    payloadHash,
		CiphertextSize: size,
		ExpiresAt:      now.Add(s.cfg.PowChallengeTTL),
		CreatedAt:      now,
	}

	if err := s.repomanager.Challenges(s.db).Create(ctx, c); err != nil {
		return nil, fmt.Errorf("error creating challenge: %w", err)
	}
	return c, nil
}

// Validate checks a solution without mutating the challenge.
func (s *ChallengeService) Validate(ctx context.Context, challengeID, nonce string, counter uint64, payloadHash string) (*models.Challenge, error) {
	if _, err := uuid.Parse(challengeID); err != nil {
		return nil, common.ErrChallengeNotFound
	}

	c, err := s.repomanager.Challenges(s.db).GetByID(ctx, challengeID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("error loading challenge: %w", err)
	}

	switch {
	case c.IsUsed:
		return nil, common.ErrChallengeUsed
	case c.Expired(s.opts.now()):
		return nil, common.ErrChallengeExpired
	case c.Nonce != nonce:
		return nil, common.ErrNonceMismatch
	case c.PayloadHash != payloadHash:
		return nil, common.ErrPayloadHashMismatch
	}

	if !cryptox.MeetsDifficulty(cryptox.WorkHash(nonce, counter, payloadHash), c.Difficulty) {
		return nil, common.ErrInsufficientWork
	}
	return c, nil
}

// MarkUsed burns c inside the caller's transaction. Losing a race to
// another burn yields common.ErrChallengeUsed.
func (s *ChallengeService) MarkUsed(ctx context.Context, tx dbx.DBTX, c *models.Challenge) error {
	return s.repomanager.Challenges(tx).MarkUsed(ctx, c.ID)
}

// SweepExpired deletes every challenge past its expiry, used or not.
func (s *ChallengeService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Challenges(s.db).DeleteExpired(ctx, s.opts.now())
	if err != nil {
		return 0, fmt.Errorf("error sweeping challenges: %w", err)
	}
	return n, nil
}
