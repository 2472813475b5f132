// Package secrets declares the repository contract for stored secrets.
package secrets

import (
	"context"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
)

// ClearedSecret identifies a row whose payload a sweep just released.
type ClearedSecret struct {
	ID        string
	ObjectKey string
}

// Repository persists secrets. Rows are never hard-deleted; lifecycle
// markers only move forward.
type Repository interface {
	// Create inserts s including hashes, prefixes and payload columns.
	Create(ctx context.Context, s *models.Secret) error

	// FindByEditPrefix and FindByDecryptPrefix return the non-deleted
	// candidates sharing a token prefix, without payload bytes. Callers
	// must verify the full hash.
	FindByEditPrefix(ctx context.Context, prefix string) ([]*models.Secret, error)
	FindByDecryptPrefix(ctx context.Context, prefix string) ([]*models.Secret, error)

	// GetByID loads metadata by primary key, deleted rows included.
	GetByID(ctx context.Context, id string) (*models.Secret, error)

	// GetForUpdate loads the full row and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id string) (*models.Secret, error)

	// UpdateSchedule rewrites unlock and expiry of a not yet retrieved row.
	UpdateSchedule(ctx context.Context, id string, unlockAt, expiresAt time.Time) error

	// MarkRetrieved sets retrieved_at and is_deleted and nulls the payload.
	// It fails with common.ErrorNotFound if the row was already retrieved.
	MarkRetrieved(ctx context.Context, id string, at time.Time) error

	// ClearDue releases the payload of every uncleared row that expired or
	// was retrieved, stamping cleared_at once, in one statement.
	ClearDue(ctx context.Context, now time.Time) ([]ClearedSecret, error)
}
