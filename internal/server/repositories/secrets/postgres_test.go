package secrets

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var metaCols = []string{
	"id", "object_key", "ciphertext_size", "unlock_at", "expires_at", "created_at",
	"retrieved_at", "cleared_at", "is_deleted",
	"edit_token_hash", "edit_token_prefix", "decrypt_token_hash", "decrypt_token_prefix",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func sampleTimes() (time.Time, time.Time, time.Time) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return created, created.Add(time.Hour), created.Add(48 * time.Hour)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created, unlock, expires := sampleTimes()
	s := &models.Secret{
		ID: "s1", Ciphertext: []byte("ct"), IV: []byte("iv"), AuthTag: []byte("tag"),
		CiphertextSize: 2, UnlockAt: unlock, ExpiresAt: expires, CreatedAt: created,
		EditTokenHash: "eh", EditTokenPrefix: "ep", DecryptTokenHash: "dh", DecryptTokenPrefix: "dp",
	}

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+secrets\b.*VALUES\s*\(\$1,.*\$13\)\s*$`).
		WithArgs("s1", []byte("ct"), []byte("iv"), []byte("tag"), sql.NullString{}, int64(2),
			unlock, expires, created, "eh", "ep", "dh", "dp").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+secrets`).WillReturnError(errors.New("duplicate key"))

	err := repo.Create(context.Background(), &models.Secret{ID: "s1"})
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*duplicate key`), err.Error())
}

func TestFindByDecryptPrefix_ReturnsCandidates(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created, unlock, expires := sampleTimes()
	rows := sqlmock.NewRows(metaCols).
		AddRow("s1", nil, int64(10), unlock, expires, created, nil, nil, false, "eh1", "ep", "dh1", "dp").
		AddRow("s2", "secrets/2026/01/01/x", int64(20), unlock, expires, created, nil, nil, false, "eh2", "ep2", "dh2", "dp")

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+secrets\s+WHERE\s+decrypt_token_prefix\s*=\s*\$1\s+AND\s+is_deleted\s*=\s*FALSE$`).
		WithArgs("dp").
		WillReturnRows(rows)

	got, err := repo.FindByDecryptPrefix(context.Background(), "dp")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, "", got[0].ObjectKey)
	assert.Equal(t, "secrets/2026/01/01/x", got[1].ObjectKey)
	assert.Nil(t, got[0].Ciphertext)
	assert.Nil(t, got[0].RetrievedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEditPrefix_Empty(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+secrets\s+WHERE\s+edit_token_prefix\s*=\s*\$1\s+AND\s+is_deleted\s*=\s*FALSE`).
		WithArgs("ep").
		WillReturnRows(sqlmock.NewRows(metaCols))

	got, err := repo.FindByEditPrefix(context.Background(), "ep")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindByEditPrefix_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`edit_token_prefix`).WillReturnError(errors.New("db down"))

	_, err := repo.FindByEditPrefix(context.Background(), "ep")
	assert.Regexp(t, `db error: .*db down`, err.Error())
}

func TestGetByID_IncludesDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created, unlock, expires := sampleTimes()
	retrieved := unlock.Add(time.Minute)
	rows := sqlmock.NewRows(metaCols).
		AddRow("s1", nil, int64(10), unlock, expires, created, retrieved, nil, true, "eh", "ep", "dh", "dp")

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+secrets\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("s1").
		WillReturnRows(rows)

	got, err := repo.GetByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	require.NotNil(t, got.RetrievedAt)
	assert.True(t, got.RetrievedAt.Equal(retrieved))
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+secrets`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestGetForUpdate_LoadsPayload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created, unlock, expires := sampleTimes()
	cols := append(append([]string{}, metaCols...), "ciphertext", "iv", "auth_tag")
	rows := sqlmock.NewRows(cols).
		AddRow("s1", nil, int64(2), unlock, expires, created, nil, nil, false, "eh", "ep", "dh", "dp",
			[]byte("ct"), []byte("iv"), []byte("tag"))

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*ciphertext,\s*iv,\s*auth_tag\s+FROM\s+secrets\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("s1").
		WillReturnRows(rows)

	got, err := repo.GetForUpdate(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []byte("ct"), got.Ciphertext)
	assert.Equal(t, []byte("iv"), got.IV)
	assert.Equal(t, []byte("tag"), got.AuthTag)
}

func TestUpdateSchedule(t *testing.T) {
	_, unlock, expires := sampleTimes()
	q := `(?s)^\s*UPDATE\s+secrets\s+SET\s+unlock_at\s*=\s*\$2,\s*expires_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s+AND\s+retrieved_at\s+IS\s+NULL\s*$`

	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("s1", unlock, expires).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.UpdateSchedule(context.Background(), "s1", unlock, expires))
	})

	t.Run("no row", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("s1", unlock, expires).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.UpdateSchedule(context.Background(), "s1", unlock, expires), common.ErrorNotFound)
	})
}

func TestMarkRetrieved(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)^\s*UPDATE\s+secrets\s+SET\s+retrieved_at\s*=\s*\$2,\s*is_deleted\s*=\s*TRUE,\s*ciphertext\s*=\s*NULL,\s*iv\s*=\s*NULL,\s*auth_tag\s*=\s*NULL\s+WHERE\s+id\s*=\s*\$1\s+AND\s+retrieved_at\s+IS\s+NULL\s*$`

	t.Run("wins", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("s1", at).WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.MarkRetrieved(context.Background(), "s1", at))
	})

	t.Run("already retrieved", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("s1", at).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.MarkRetrieved(context.Background(), "s1", at), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()
		mock.ExpectExec(q).WithArgs("s1", at).WillReturnError(errors.New("boom"))
		err := repo.MarkRetrieved(context.Background(), "s1", at)
		assert.Regexp(t, `db error: .*boom`, err.Error())
	})
}

func TestClearDue(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)^\s*UPDATE\s+secrets\s+SET\s+ciphertext\s*=\s*NULL,\s*iv\s*=\s*NULL,\s*auth_tag\s*=\s*NULL,\s*cleared_at\s*=\s*\$1\s+WHERE\s+cleared_at\s+IS\s+NULL\s+AND\s+\(expires_at\s*<=\s*\$1\s+OR\s+retrieved_at\s+IS\s+NOT\s+NULL\)\s+RETURNING\s+id,\s*object_key\s*$`).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "object_key"}).
			AddRow("s1", nil).
			AddRow("s2", "secrets/2026/01/01/k"))

	got, err := repo.ClearDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []ClearedSecret{{ID: "s1"}, {ID: "s2", ObjectKey: "secrets/2026/01/01/k"}}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearDue_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+secrets`).WillReturnError(errors.New("boom"))

	_, err := repo.ClearDue(context.Background(), time.Now())
	assert.Regexp(t, `db error: .*boom`, err.Error())
}
