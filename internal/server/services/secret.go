package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/richmiles/in-the-event-of-my-death/internal/blobstore"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/repomanager"
)

// StateNotFound is reported by status reads for unknown credentials.
const StateNotFound models.SecretState = "not_found"

// CreateRequest carries an encrypted payload, its schedule, the two raw
// tokens minted by the client and the admission proof.
type CreateRequest struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte

	UnlockAt  time.Time
	ExpiresAt time.Time

	EditToken    string
	DecryptToken string

	Admission AdmissionProof
}

// SecretStatus is a read-only view. Secret is nil when Exists is false and
// never carries payload bytes.
type SecretStatus struct {
	Exists bool
	State  models.SecretState
	Secret *models.Secret
}

// RetrieveResult holds the payload only when State is available.
type RetrieveResult struct {
	State  models.SecretState
	Secret *models.Secret
}

// SecretService drives the secret lifecycle: create, edit, status,
// one-time retrieval and the clearing sweep.
type SecretService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cfg         *config.Config
	challenges  *ChallengeService
	tokens      *CapabilityTokenService
	opts        options
}

func NewSecretService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config,
	challenges *ChallengeService, tokens *CapabilityTokenService, opts ...Option) *SecretService {
	return &SecretService{
		db:          db,
		repomanager: m,
		cfg:         cfg,
		challenges:  challenges,
		tokens:      tokens,
		opts:        newOptions(opts),
	}
}

func validatePayload(r *CreateRequest) error {
	if len(r.Ciphertext) == 0 || len(r.IV) != cryptox.IVSize || len(r.AuthTag) != cryptox.AuthTagSize {
		return common.ErrInvalidPayload
	}
	if !common.IsHexToken(r.EditToken) || !common.IsHexToken(r.DecryptToken) {
		return common.ErrInvalidTokenValue
	}
	return nil
}

func (s *SecretService) validateSchedule(now, unlockAt, expiresAt time.Time) error {
	switch {
	case unlockAt.Before(now.Add(s.cfg.MinUnlock)):
		return common.ErrUnlockTooSoon
	case unlockAt.After(now.Add(s.cfg.MaxUnlock)):
		return common.ErrUnlockTooLate
	case expiresAt.Before(unlockAt.Add(s.cfg.MinExpiryGap)):
		return common.ErrExpiryGap
	}
	return nil
}

// admission is the outcome of a successful admission check: the spend to
// perform inside the create transaction.
type admission struct {
	challenge *models.Challenge
	token     *models.CapabilityToken
}

func (s *SecretService) admit(ctx context.Context, r *CreateRequest, now time.Time) (*admission, error) {
	size := int64(len(r.Ciphertext))

	switch p := r.Admission.(type) {
	case PowAdmission:
		c, err := s.challenges.Validate(ctx, p.ChallengeID, p.Nonce, p.Counter, p.PayloadHash)
		if err != nil {
			return nil, err
		}
		if cryptox.PayloadHash(r.Ciphertext, r.IV, r.AuthTag) != c.PayloadHash {
			return nil, common.ErrPayloadHashMismatch
		}
		if size > s.cfg.MaxCiphertextSize {
			return nil, common.ErrPayloadTooLarge
		}
		if c.Difficulty < s.challenges.ExpectedDifficulty(size) {
			return nil, common.ErrInsufficientDifficulty
		}
		if r.ExpiresAt.After(now.Add(s.cfg.MaxExpiry)) {
			return nil, common.ErrExpiryTooLate
		}
		return &admission{challenge: c}, nil

	case CapabilityAdmission:
		v, err := s.tokens.Validate(ctx, p.Token)
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			return nil, v.Reason
		}
		if size > v.Token.MaxCiphertextSize {
			return nil, common.ErrTokenLimitExceeded
		}
		if r.ExpiresAt.After(now.AddDate(0, 0, v.Token.MaxExpiryDays)) {
			return nil, common.ErrExpiryTooLate
		}
		return &admission{token: v.Token}, nil

	case nil:
		return nil, common.ErrAdmissionRequired
	}
	return nil, fmt.Errorf("unsupported admission proof %T", r.Admission)
}

// Create validates r, admits it and stores the secret. The challenge burn
// or token spend commits together with the row or not at all.
func (s *SecretService) Create(ctx context.Context, r *CreateRequest) (*models.Secret, error) {
	if err := validatePayload(r); err != nil {
		return nil, err
	}

	now := s.opts.now()
	if err := s.validateSchedule(now, r.UnlockAt, r.ExpiresAt); err != nil {
		return nil, err
	}

	adm, err := s.admit(ctx, r, now)
	if err != nil {
		return nil, err
	}

	editHash, err := s.opts.hasher.Hash(r.EditToken)
	if err != nil {
		return nil, fmt.Errorf("token hashing error: %w", err)
	}
	decryptHash, err := s.opts.hasher.Hash(r.DecryptToken)
	if err != nil {
		return nil, fmt.Errorf("token hashing error: %w", err)
	}

	secret := &models.Secret{
		ID:                 uuid.NewString(),
		Ciphertext:         r.Ciphertext,
		IV:                 r.IV,
		AuthTag:            r.AuthTag,
		CiphertextSize:     int64(len(r.Ciphertext)),
		UnlockAt:           r.UnlockAt,
		ExpiresAt:          r.ExpiresAt,
		CreatedAt:          now,
		EditTokenHash:      editHash,
		EditTokenPrefix:    cryptox.TokenPrefix(r.EditToken),
		DecryptTokenHash:   decryptHash,
		DecryptTokenPrefix: cryptox.TokenPrefix(r.DecryptToken),
	}

	if adm.token != nil && s.opts.blobs != nil && secret.CiphertextSize > s.cfg.InlinePayloadLimit {
		key := blobstore.NewObjectKey(now)
		if err := s.opts.blobs.Put(ctx, key, r.Ciphertext); err != nil {
			return nil, fmt.Errorf("blob store error: %w", err)
		}
		secret.ObjectKey = key
		secret.Ciphertext = nil
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Secrets(tx).Create(ctx, secret); err != nil {
			return fmt.Errorf("error creating secret: %w", err)
		}
		if adm.challenge != nil {
			return s.challenges.MarkUsed(ctx, tx, adm.challenge)
		}
		return s.tokens.Consume(ctx, tx, adm.token, secret.ID, now)
	})
	if err != nil {
		if secret.ObjectKey != "" {
			s.deleteBlob(ctx, secret.ObjectKey)
		}
		return nil, err
	}

	s.opts.logger.Info(ctx, "secret created", "secret_id", secret.ID, "size", secret.CiphertextSize)
	return secret, nil
}

func (s *SecretService) findByEditToken(ctx context.Context, raw string) (*models.Secret, error) {
	if !common.IsHexToken(raw) {
		return nil, common.ErrorNotFound
	}
	candidates, err := s.repomanager.Secrets(s.db).FindByEditPrefix(ctx, cryptox.TokenPrefix(raw))
	if err != nil {
		return nil, fmt.Errorf("error looking up secret: %w", err)
	}
	secret, ok := cryptox.MatchToken(s.opts.hasher, raw, candidates, func(s *models.Secret) string {
		return s.EditTokenHash
	})
	if !ok {
		return nil, common.ErrorNotFound
	}
	return secret, nil
}

func (s *SecretService) findByDecryptToken(ctx context.Context, raw string) (*models.Secret, error) {
	if !common.IsHexToken(raw) {
		return nil, common.ErrorNotFound
	}
	candidates, err := s.repomanager.Secrets(s.db).FindByDecryptPrefix(ctx, cryptox.TokenPrefix(raw))
	if err != nil {
		return nil, fmt.Errorf("error looking up secret: %w", err)
	}
	secret, ok := cryptox.MatchToken(s.opts.hasher, raw, candidates, func(s *models.Secret) string {
		return s.DecryptTokenHash
	})
	if !ok {
		return nil, common.ErrorNotFound
	}
	return secret, nil
}

// Edit moves the unlock time later and optionally extends the expiry. A
// zero newExpiresAt keeps the current expiry.
func (s *SecretService) Edit(ctx context.Context, rawEditToken string, newUnlockAt, newExpiresAt time.Time) (*models.Secret, error) {
	found, err := s.findByEditToken(ctx, rawEditToken)
	if err != nil {
		return nil, err
	}

	var updated *models.Secret
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Secrets(tx)
		cur, err := repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("error locking secret: %w", err)
		}

		now := s.opts.now()
		if cur.IsDeleted || cur.RetrievedAt != nil {
			return common.ErrorNotFound
		}
		if !now.Before(cur.UnlockAt) {
			return common.ErrAlreadyUnlocked
		}
		if !newUnlockAt.After(cur.UnlockAt) {
			return common.ErrUnlockNotLater
		}
		if newUnlockAt.After(now.Add(s.cfg.MaxUnlock)) {
			return common.ErrUnlockTooLate
		}

		expiresAt := cur.ExpiresAt
		if !newExpiresAt.IsZero() {
			if newExpiresAt.Before(cur.ExpiresAt) {
				return common.ErrExpiryShortened
			}
			if newExpiresAt.After(cur.ExpiresAt) && newExpiresAt.After(now.Add(s.cfg.MaxExpiry)) {
				return common.ErrExpiryTooLate
			}
			expiresAt = newExpiresAt
		}
		if expiresAt.Before(newUnlockAt.Add(s.cfg.MinExpiryGap)) {
			return common.ErrExpiryGap
		}

		if err := repo.UpdateSchedule(ctx, cur.ID, newUnlockAt, expiresAt); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorNotFound
			}
			return fmt.Errorf("error updating secret: %w", err)
		}

		cur.UnlockAt = newUnlockAt
		cur.ExpiresAt = expiresAt
		cur.Ciphertext, cur.IV, cur.AuthTag = nil, nil, nil
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.opts.logger.Info(ctx, "secret rescheduled", "secret_id", updated.ID)
	return updated, nil
}

// Status reports the state of the secret behind a decrypt token. Unknown
// and already retrieved tokens both read as not found.
func (s *SecretService) Status(ctx context.Context, rawDecryptToken string) (*SecretStatus, error) {
	secret, err := s.findByDecryptToken(ctx, rawDecryptToken)
	if errors.Is(err, common.ErrorNotFound) {
		return &SecretStatus{State: StateNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SecretStatus{Exists: true, State: secret.State(s.opts.now()), Secret: secret}, nil
}

// StatusByID is the public, token-free status read. Retrieved secrets stay
// visible here.
func (s *SecretService) StatusByID(ctx context.Context, id string) (*SecretStatus, error) {
	if _, err := uuid.Parse(id); err != nil {
		return &SecretStatus{State: StateNotFound}, nil
	}
	secret, err := s.repomanager.Secrets(s.db).GetByID(ctx, id)
	if errors.Is(err, common.ErrorNotFound) {
		return &SecretStatus{State: StateNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading secret: %w", err)
	}
	return &SecretStatus{Exists: true, State: secret.State(s.opts.now()), Secret: secret}, nil
}

// Retrieve hands out the payload exactly once. Pending and expired secrets
// are reported through the result without consuming anything; every
// caller after the first successful one gets common.ErrorNotFound.
func (s *SecretService) Retrieve(ctx context.Context, rawDecryptToken string) (*RetrieveResult, error) {
	found, err := s.findByDecryptToken(ctx, rawDecryptToken)
	if err != nil {
		return nil, err
	}

	var result *RetrieveResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Secrets(tx)
		cur, err := repo.GetForUpdate(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("error locking secret: %w", err)
		}
		if cur.IsDeleted || cur.RetrievedAt != nil {
			return common.ErrorNotFound
		}

		now := s.opts.now()
		state := cur.State(now)
		if state != models.StateAvailable {
			cur.Ciphertext, cur.IV, cur.AuthTag = nil, nil, nil
			result = &RetrieveResult{State: state, Secret: cur}
			return nil
		}

		if cur.ObjectKey != "" {
			if s.opts.blobs == nil {
				return fmt.Errorf("secret %s stored in object storage but no blob store configured: %w", cur.ID, common.ErrorInternal)
			}
			data, err := s.opts.blobs.Get(ctx, cur.ObjectKey)
			if err != nil {
				return fmt.Errorf("blob store error: %v: %w", err, common.ErrorInternal)
			}
			cur.Ciphertext = data
		}
		if !cur.HasPayload() {
			return fmt.Errorf("secret %s has no payload: %w", cur.ID, common.ErrorInternal)
		}

		if err := repo.MarkRetrieved(ctx, cur.ID, now); err != nil {
			return err
		}
		cur.RetrievedAt = &now
		cur.IsDeleted = true
		result = &RetrieveResult{State: models.StateAvailable, Secret: cur}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.State == models.StateAvailable {
		if result.Secret.ObjectKey != "" {
			s.deleteBlob(ctx, result.Secret.ObjectKey)
		}
		s.opts.logger.Info(ctx, "secret retrieved", "secret_id", result.Secret.ID)
	}
	return result, nil
}

// SweepClear releases payloads of expired and retrieved secrets and
// returns how many rows it cleared.
func (s *SecretService) SweepClear(ctx context.Context) (int, error) {
	cleared, err := s.repomanager.Secrets(s.db).ClearDue(ctx, s.opts.now())
	if err != nil {
		return 0, fmt.Errorf("error clearing secrets: %w", err)
	}
	for _, c := range cleared {
		if c.ObjectKey != "" {
			s.deleteBlob(ctx, c.ObjectKey)
		}
	}
	if len(cleared) > 0 {
		s.opts.logger.Info(ctx, "secrets cleared", "count", len(cleared))
	}
	return len(cleared), nil
}

func (s *SecretService) deleteBlob(ctx context.Context, key string) {
	if s.opts.blobs == nil {
		return
	}
	if err := s.opts.blobs.Delete(ctx, key); err != nil {
		s.opts.logger.Warn(ctx, "blob delete failed", "object_key", key, "error", err)
	}
}
