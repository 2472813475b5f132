package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/dbx"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/models"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/capabilitytokens"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/challenges"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/repositories/secrets"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

var testHasher = cryptox.NewHasher(cryptox.Params{Time: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32, SaltLen: 16})

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func defaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

func testConfig() *config.Config {
	cfg := defaultConfig()
	cfg.PowBaseDifficulty = 4
	cfg.PowSizeStep = 100
	cfg.PowMaxSizeBonus = 4
	return cfg
}

// fakeStore is an in-memory database shared by every repository the
// fake manager vends, whether bound to the pool or a transaction.
type fakeStore struct {
	mu         sync.Mutex
	secrets    map[string]*models.Secret
	challenges map[string]*models.Challenge
	tokens     map[string]*models.CapabilityToken

	createErr   error
	findErr     error
	markUsedErr error
	consumeErr  error
	clearErr    error

	// beforeLock runs at the start of GetForUpdate, outside the mutex.
	beforeLock func(id string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		secrets:    make(map[string]*models.Secret),
		challenges: make(map[string]*models.Challenge),
		tokens:     make(map[string]*models.CapabilityToken),
	}
}

type fakeRepoManager struct {
	st *fakeStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Secrets(dbx.DBTX) secrets.Repository       { return (*fakeSecrets)(m.st) }
func (m *fakeRepoManager) Challenges(dbx.DBTX) challenges.Repository { return (*fakeChallenges)(m.st) }
func (m *fakeRepoManager) CapabilityTokens(dbx.DBTX) capabilitytokens.Repository {
	return (*fakeTokens)(m.st)
}

func copySecret(s *models.Secret, withPayload bool) *models.Secret {
	c := *s
	if !withPayload {
		c.Ciphertext, c.IV, c.AuthTag = nil, nil, nil
	}
	return &c
}

type fakeSecrets fakeStore

func (f *fakeSecrets) Create(_ context.Context, s *models.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.secrets[s.ID] = copySecret(s, true)
	return nil
}

func (f *fakeSecrets) findByPrefix(prefix string, pick func(*models.Secret) string) ([]*models.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*models.Secret
	for _, s := range f.secrets {
		if !s.IsDeleted && pick(s) == prefix {
			out = append(out, copySecret(s, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSecrets) FindByEditPrefix(_ context.Context, prefix string) ([]*models.Secret, error) {
	return f.findByPrefix(prefix, func(s *models.Secret) string { return s.EditTokenPrefix })
}

func (f *fakeSecrets) FindByDecryptPrefix(_ context.Context, prefix string) ([]*models.Secret, error) {
	return f.findByPrefix(prefix, func(s *models.Secret) string { return s.DecryptTokenPrefix })
}

func (f *fakeSecrets) GetByID(_ context.Context, id string) (*models.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copySecret(s, false), nil
}

func (f *fakeSecrets) GetForUpdate(_ context.Context, id string) (*models.Secret, error) {
	if f.beforeLock != nil {
		f.beforeLock(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copySecret(s, true), nil
}

func (f *fakeSecrets) UpdateSchedule(_ context.Context, id string, unlockAt, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok || s.RetrievedAt != nil {
		return common.ErrorNotFound
	}
	s.UnlockAt, s.ExpiresAt = unlockAt, expiresAt
	return nil
}

func (f *fakeSecrets) MarkRetrieved(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.secrets[id]
	if !ok || s.RetrievedAt != nil {
		return common.ErrorNotFound
	}
	s.RetrievedAt = &at
	s.IsDeleted = true
	s.Ciphertext, s.IV, s.AuthTag = nil, nil, nil
	return nil
}

func (f *fakeSecrets) ClearDue(_ context.Context, now time.Time) ([]secrets.ClearedSecret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return nil, f.clearErr
	}
	var out []secrets.ClearedSecret
	for _, s := range f.secrets {
		if s.ClearedAt != nil || (now.Before(s.ExpiresAt) && s.RetrievedAt == nil) {
			continue
		}
		at := now
		s.ClearedAt = &at
		s.Ciphertext, s.IV, s.AuthTag = nil, nil, nil
		out = append(out, secrets.ClearedSecret{ID: s.ID, ObjectKey: s.ObjectKey})
	}
	return out, nil
}

type fakeChallenges fakeStore

func (f *fakeChallenges) Create(_ context.Context, c *models.Challenge) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cc := *c
	f.challenges[c.ID] = &cc
	return nil
}

func (f *fakeChallenges) GetByID(_ context.Context, id string) (*models.Challenge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.challenges[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cc := *c
	return &cc, nil
}

func (f *fakeChallenges) MarkUsed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markUsedErr != nil {
		return f.markUsedErr
	}
	c, ok := f.challenges[id]
	if !ok || c.IsUsed {
		return common.ErrChallengeUsed
	}
	c.IsUsed = true
	return nil
}

func (f *fakeChallenges) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, c := range f.challenges {
		if c.ExpiresAt.Before(now) {
			delete(f.challenges, id)
			n++
		}
	}
	return n, nil
}

type fakeTokens fakeStore

func (f *fakeTokens) Create(_ context.Context, t *models.CapabilityToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	tt := *t
	f.tokens[t.ID] = &tt
	return nil
}

func (f *fakeTokens) FindByPrefix(_ context.Context, prefix string, includeConsumed bool) ([]*models.CapabilityToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []*models.CapabilityToken
	for _, t := range f.tokens {
		if t.TokenPrefix == prefix && (includeConsumed || t.ConsumedAt == nil) {
			tt := *t
			out = append(out, &tt)
		}
	}
	return out, nil
}

func (f *fakeTokens) Consume(_ context.Context, id, secretID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return f.consumeErr
	}
	t, ok := f.tokens[id]
	if !ok || t.ConsumedAt != nil {
		return common.ErrTokenConsumed
	}
	t.ConsumedAt = &at
	t.ConsumedBySecretID = &secretID
	return nil
}

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

