// Package capabilitytokens declares the repository contract for prepaid
// capability tokens.
package capabilitytokens

import (
	"context"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, t *models.CapabilityToken) error

	// FindByPrefix returns tokens sharing the prefix. Consumed tokens are
	// included only when includeConsumed is set. Callers verify the hash.
	FindByPrefix(ctx context.Context, prefix string, includeConsumed bool) ([]*models.CapabilityToken, error)

	// Consume marks the token spent by secretID. A second consume fails
	// with common.ErrTokenConsumed.
	Consume(ctx context.Context, id, secretID string, at time.Time) error
}
