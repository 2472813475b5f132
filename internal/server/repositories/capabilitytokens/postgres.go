// Package capabilitytokens provides a PostgreSQL-backed repository for
// capability tokens.
package capabilitytokens

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, t *models.CapabilityToken) error {
	query := `
		INSERT INTO capability_tokens (id, token_hash, token_prefix, tier, max_ciphertext_size, max_expiry_days,
			created_at, expires_at, payment_provider, payment_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.TokenHash, t.TokenPrefix, t.Tier, t.MaxCiphertextSize, t.MaxExpiryDays,
		t.CreatedAt, t.ExpiresAt, t.PaymentProvider, t.PaymentReference)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByPrefix(ctx context.Context, prefix string, includeConsumed bool) ([]*models.CapabilityToken, error) {
	query := `
		SELECT id, token_hash, token_prefix, tier, max_ciphertext_size, max_expiry_days,
			created_at, expires_at, consumed_at, consumed_by_secret_id, payment_provider, payment_reference
		FROM capability_tokens
		WHERE token_prefix = $1 AND ($2 OR consumed_at IS NULL)
	`
	rows, err := r.db.QueryContext(ctx, query, prefix, includeConsumed)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.CapabilityToken
	for rows.Next() {
		var (
			t          models.CapabilityToken
			consumedAt sql.NullTime
			consumedBy sql.NullString
			provider   sql.NullString
			reference  sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TokenHash, &t.TokenPrefix, &t.Tier, &t.MaxCiphertextSize, &t.MaxExpiryDays,
			&t.CreatedAt, &t.ExpiresAt, &consumedAt, &consumedBy, &provider, &reference); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if consumedAt.Valid {
			at := consumedAt.Time
			t.ConsumedAt = &at
		}
		t.ConsumedBySecretID = optional(consumedBy)
		t.PaymentProvider = optional(provider)
		t.PaymentReference = optional(reference)
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Consume(ctx context.Context, id, secretID string, at time.Time) error {
	query := `
		UPDATE capability_tokens
		SET consumed_at = $2, consumed_by_secret_id = $3
		WHERE id = $1 AND consumed_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at, secretID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectSingleRow(res, common.ErrTokenConsumed)
}

func optional(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
