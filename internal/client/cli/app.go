package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/client/client"
	"github.com/richmiles/in-the-event-of-my-death/internal/client/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
)

var ErrUnexpected = errors.New("unexpected response")

// App runs the end-to-end smoke check against a deployed server.
type App struct {
	config *config.Config
	client client.Client
	logger logging.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewApp(c *config.Config, api client.Client, l logging.Logger) *App {
	return &App{config: c, client: api, logger: l, now: time.Now, sleep: sleepCtx}
}

// Report summarizes a successful run.
type Report struct {
	SecretID   string
	Difficulty int
	Counter    uint64
	SolveTime  time.Duration
	Status     string
}

// Run waits for the server to report healthy, then unless HealthOnly is set
// seals a random message, solves a challenge for it, creates a secret and
// confirms it is pending and not retrievable.
func (a *App) Run(ctx context.Context) (*Report, error) {
	if err := a.waitForHealth(ctx); err != nil {
		return nil, err
	}
	if a.config.HealthOnly {
		return &Report{}, nil
	}

	key := common.GenerateRandByteArray(32)
	defer common.WipeByteArray(key)

	message := fmt.Sprintf("smoke test at %s", a.now().UTC().Format(time.RFC3339))
	sealed, err := cryptox.Seal([]byte(message), key)
	if err != nil {
		return nil, fmt.Errorf("seal payload: %w", err)
	}
	payloadHash := cryptox.PayloadHash(sealed.Ciphertext, sealed.IV, sealed.AuthTag)

	ch, err := a.client.CreateChallenge(ctx, payloadHash, int64(len(sealed.Ciphertext)))
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	a.logger.Info(ctx, "challenge received", "challenge_id", ch.ChallengeID, "difficulty", ch.Difficulty)

	started := a.now()
	counter, err := cryptox.SolveWork(ctx, ch.Nonce, payloadHash, ch.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("solve challenge: %w", err)
	}
	solveTime := a.now().Sub(started)
	a.logger.Info(ctx, "challenge solved", "counter", counter, "elapsed", solveTime.String())

	editToken, err := cryptox.GenerateToken()
	if err != nil {
		return nil, err
	}
	decryptToken, err := cryptox.GenerateToken()
	if err != nil {
		return nil, err
	}

	now := a.now().UTC()
	created, err := a.client.CreateSecret(ctx, &client.CreateSecretInput{
		Ciphertext:   sealed.Ciphertext,
		IV:           sealed.IV,
		AuthTag:      sealed.AuthTag,
		UnlockAt:     now.Add(a.config.UnlockAfter),
		ExpiresAt:    now.Add(a.config.ExpireAfter),
		EditToken:    editToken,
		DecryptToken: decryptToken,
		PowProof: &client.PowProof{
			ChallengeID: ch.ChallengeID,
			Nonce:       ch.Nonce,
			Counter:     counter,
			PayloadHash: payloadHash,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create secret: %w", err)
	}
	a.logger.Info(ctx, "secret created", "secret_id", created.SecretID)

	st, err := a.client.Status(ctx, decryptToken)
	if err != nil {
		return nil, fmt.Errorf("secret status: %w", err)
	}
	if !st.Exists || st.Status != "pending" {
		return nil, fmt.Errorf("%w: status exists=%t status=%q", ErrUnexpected, st.Exists, st.Status)
	}

	if err := a.checkLocked(ctx, decryptToken); err != nil {
		return nil, err
	}

	return &Report{
		SecretID:   created.SecretID,
		Difficulty: ch.Difficulty,
		Counter:    counter,
		SolveTime:  solveTime,
		Status:     st.Status,
	}, nil
}

func (a *App) waitForHealth(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= a.config.HealthAttempts; attempt++ {
		if err = a.client.Health(ctx); err == nil {
			a.logger.Info(ctx, "health check passed", "attempt", attempt)
			return nil
		}
		a.logger.Debug(ctx, "health check failed", "attempt", attempt, "error", err)

		if attempt < a.config.HealthAttempts {
			if serr := a.sleep(ctx, a.config.HealthDelay); serr != nil {
				return serr
			}
		}
	}
	return fmt.Errorf("health check: %d attempts: %w", a.config.HealthAttempts, err)
}

// checkLocked expects the retrieve endpoint to refuse a pending secret.
func (a *App) checkLocked(ctx context.Context, decryptToken string) error {
	_, err := a.client.Retrieve(ctx, decryptToken)
	if err == nil {
		return fmt.Errorf("%w: pending secret was retrievable", ErrUnexpected)
	}

	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		return fmt.Errorf("retrieve pending secret: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
