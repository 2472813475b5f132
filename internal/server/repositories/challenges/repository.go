// Package challenges declares the repository contract for proof-of-work
// challenges.
package challenges

import (
	"context"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Challenge) error

	// GetByID returns common.ErrorNotFound for an unknown id.
	GetByID(ctx context.Context, id string) (*models.Challenge, error)

	// MarkUsed burns the challenge. A second burn fails with
	// common.ErrChallengeUsed.
	MarkUsed(ctx context.Context, id string) error

	// DeleteExpired removes every challenge with expires_at before now, used or
	// not, and reports how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
