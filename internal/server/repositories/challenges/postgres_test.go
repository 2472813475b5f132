package challenges

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &models.Challenge{
		ID: "c1", Nonce: "n", Difficulty: 18, PayloadHash: "ph", CiphertextSize: 100,
		ExpiresAt: now.Add(5 * time.Minute), CreatedAt: now,
	}

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+pow_challenges\b.*VALUES\s*\(\$1,.*\$8\)\s*$`).
		WithArgs("c1", "n", 18, "ph", int64(100), c.ExpiresAt, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+pow_challenges`).WillReturnError(errors.New("unique violation"))

	err := repo.Create(context.Background(), &models.Challenge{})
	assert.Regexp(t, `db error: .*unique violation`, err.Error())
}

func TestGetByID(t *testing.T) {
	q := `(?s)^\s*SELECT\s+id,\s*nonce,.*FROM\s+pow_challenges\s+WHERE\s+id\s*=\s*\$1\s*$`
	cols := []string{"id", "nonce", "difficulty", "payload_hash", "ciphertext_size", "expires_at", "is_used", "created_at"}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(q).WithArgs("c1").
			WillReturnRows(sqlmock.NewRows(cols).AddRow("c1", "n", 19, "ph", int64(150_000), now, true, now))

		c, err := repo.GetByID(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, 19, c.Difficulty)
		assert.Equal(t, int64(150_000), c.CiphertextSize)
		assert.True(t, c.IsUsed)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(q).WithArgs("c1").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "c1")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectQuery(q).WithArgs("c1").WillReturnError(errors.New("conn reset"))

		_, err := repo.GetByID(context.Background(), "c1")
		assert.Regexp(t, `db error: .*conn reset`, err.Error())
	})
}

func TestMarkUsed(t *testing.T) {
	q := `(?s)^\s*UPDATE\s+pow_challenges\s+SET\s+is_used\s*=\s*TRUE\s+WHERE\s+id\s*=\s*\$1\s+AND\s+is_used\s*=\s*FALSE\s*$`

	t.Run("first burn", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.MarkUsed(context.Background(), "c1"))
	})

	t.Run("double spend", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.MarkUsed(context.Background(), "c1"), common.ErrChallengeUsed)
	})
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)^\s*DELETE\s+FROM\s+pow_challenges\s+WHERE\s+expires_at\s*<\s*\$1\s*$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestDeleteExpired_RowsAffectedError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+pow_challenges`).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("ra")))

	_, err := repo.DeleteExpired(context.Background(), time.Now())
	assert.Regexp(t, `rows affected error: .*ra`, err.Error())
}
