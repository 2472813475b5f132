// Package secrets provides a PostgreSQL-backed repository for secrets.
package secrets

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

const metaColumns = `id, object_key, ciphertext_size, unlock_at, expires_at, created_at,
		retrieved_at, cleared_at, is_deleted,
		edit_token_hash, edit_token_prefix, decrypt_token_hash, decrypt_token_prefix`

const fullColumns = metaColumns + `, ciphertext, iv, auth_tag`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSecret(row scanner, withPayload bool) (*models.Secret, error) {
	s := &models.Secret{}
	var (
		objectKey   sql.NullString
		retrievedAt sql.NullTime
		clearedAt   sql.NullTime
	)

	dest := []any{
		&s.ID, &objectKey, &s.CiphertextSize, &s.UnlockAt, &s.ExpiresAt, &s.CreatedAt,
		&retrievedAt, &clearedAt, &s.IsDeleted,
		&s.EditTokenHash, &s.EditTokenPrefix, &s.DecryptTokenHash, &s.DecryptTokenPrefix,
	}
	if withPayload {
		dest = append(dest, &s.Ciphertext, &s.IV, &s.AuthTag)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	s.ObjectKey = objectKey.String
	if retrievedAt.Valid {
		t := retrievedAt.Time
		s.RetrievedAt = &t
	}
	if clearedAt.Valid {
		t := clearedAt.Time
		s.ClearedAt = &t
	}
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Secret) error {
	query := `
		INSERT INTO secrets (id, ciphertext, iv, auth_tag, object_key, ciphertext_size,
			unlock_at, expires_at, created_at,
			edit_token_hash, edit_token_prefix, decrypt_token_hash, decrypt_token_prefix)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Ciphertext, s.IV, s.AuthTag, nullString(s.ObjectKey), s.CiphertextSize,
		s.UnlockAt, s.ExpiresAt, s.CreatedAt,
		s.EditTokenHash, s.EditTokenPrefix, s.DecryptTokenHash, s.DecryptTokenPrefix)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) findByPrefix(ctx context.Context, column, prefix string) ([]*models.Secret, error) {
	query := `SELECT ` + metaColumns + `
		FROM secrets
		WHERE ` + column + ` = $1 AND is_deleted = FALSE`

	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Secret
	for rows.Next() {
		s, err := scanSecret(rows, false)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) FindByEditPrefix(ctx context.Context, prefix string) ([]*models.Secret, error) {
	return r.findByPrefix(ctx, "edit_token_prefix", prefix)
}

func (r *PostgresRepository) FindByDecryptPrefix(ctx context.Context, prefix string) ([]*models.Secret, error) {
	return r.findByPrefix(ctx, "decrypt_token_prefix", prefix)
}

func (r *PostgresRepository) get(ctx context.Context, query, id string, withPayload bool) (*models.Secret, error) {
	s, err := scanSecret(r.db.QueryRowContext(ctx, query, id), withPayload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Secret, error) {
	query := `SELECT ` + metaColumns + `
		FROM secrets
		WHERE id = $1`
	return r.get(ctx, query, id, false)
}

func (r *PostgresRepository) GetForUpdate(ctx context.Context, id string) (*models.Secret, error) {
	query := `SELECT ` + fullColumns + `
		FROM secrets
		WHERE id = $1
		FOR UPDATE`
	return r.get(ctx, query, id, true)
}

func (r *PostgresRepository) UpdateSchedule(ctx context.Context, id string, unlockAt, expiresAt time.Time) error {
	query := `
		UPDATE secrets
		SET unlock_at = $2, expires_at = $3
		WHERE id = $1 AND retrieved_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, unlockAt, expiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectSingleRow(res, common.ErrorNotFound)
}

func (r *PostgresRepository) MarkRetrieved(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE secrets
		SET retrieved_at = $2, is_deleted = TRUE, ciphertext = NULL, iv = NULL, auth_tag = NULL
		WHERE id = $1 AND retrieved_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectSingleRow(res, common.ErrorNotFound)
}

func (r *PostgresRepository) ClearDue(ctx context.Context, now time.Time) ([]ClearedSecret, error) {
	query := `
		UPDATE secrets
		SET ciphertext = NULL, iv = NULL, auth_tag = NULL, cleared_at = $1
		WHERE cleared_at IS NULL AND (expires_at <= $1 OR retrieved_at IS NOT NULL)
		RETURNING id, object_key
	`
	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var cleared []ClearedSecret
	for rows.Next() {
		var (
			c   ClearedSecret
			key sql.NullString
		)
		if err := rows.Scan(&c.ID, &key); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		c.ObjectKey = key.String
		cleared = append(cleared, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cleared, nil
}
