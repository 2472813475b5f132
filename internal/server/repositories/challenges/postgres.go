// Package challenges provides a PostgreSQL-backed repository for
// proof-of-work challenges.
package challenges

import (
	"context"
	"database/sql"
	"errors"
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

func (r *PostgresRepository) Create(ctx context.Context, c *models.Challenge) error {
	query := `
		INSERT INTO pow_challenges (id, nonce, difficulty, payload_hash, ciphertext_size, expires_at, is_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Nonce, c.Difficulty, c.PayloadHash, c.CiphertextSize, c.ExpiresAt, c.IsUsed, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Challenge, error) {
	query := `
		SELECT id, nonce, difficulty, payload_hash, ciphertext_size, expires_at, is_used, created_at
		FROM pow_challenges
		WHERE id = $1
	`
	c := &models.Challenge{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Nonce, &c.Difficulty, &c.PayloadHash, &c.CiphertextSize, &c.ExpiresAt, &c.IsUsed, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string) error {
	query := `
		UPDATE pow_challenges
		SET is_used = TRUE
		WHERE id = $1 AND is_used = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectSingleRow(res, common.ErrChallengeUsed)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM pow_challenges
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}
