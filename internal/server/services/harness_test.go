package services

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/richmiles/in-the-event-of-my-death/internal/blobstore"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/server/config"
	"github.com/stretchr/testify/require"
)

type harness struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	st    *fakeStore
	clock *testClock
	blobs *trackingStore
	cfg   *config.Config

	challenges *ChallengeService
	tokens     *CapabilityTokenService
	secrets    *SecretService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock := newSQLMockDB(t)
	h := &harness{
		db:    db,
		mock:  mock,
		st:    newFakeStore(),
		clock: newTestClock(),
		blobs: newTrackingStore(),
		cfg:   testConfig(),
	}
	rm := &fakeRepoManager{st: h.st}
	opts := []Option{WithClock(h.clock.Now), WithHasher(testHasher), WithBlobStore(h.blobs)}
	h.challenges = NewChallengeService(db, rm, h.cfg, opts...)
	h.tokens = NewCapabilityTokenService(db, rm, h.cfg, opts...)
	h.secrets = NewSecretService(db, rm, h.cfg, h.challenges, h.tokens, opts...)
	return h
}

// trackingStore records the keys written to the wrapped MemoryStore so
// tests can count live objects.
type trackingStore struct {
	*blobstore.MemoryStore
	mu   sync.Mutex
	keys map[string]struct{}
}

func newTrackingStore() *trackingStore {
	return &trackingStore{MemoryStore: blobstore.NewMemoryStore(), keys: make(map[string]struct{})}
}

func (s *trackingStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	return s.MemoryStore.Put(ctx, key, data)
}

func (s *trackingStore) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.keys {
		if _, err := s.Get(context.Background(), k); err == nil {
			n++
		}
	}
	return n
}

func (h *harness) expectTx(commit bool) {
	h.mock.ExpectBegin()
	if commit {
		h.mock.ExpectCommit()
	} else {
		h.mock.ExpectRollback()
	}
}

func (h *harness) expectationsMet(t *testing.T) {
	t.Helper()
	require.NoError(t, h.mock.ExpectationsWereMet())
}

type payload struct {
	ct, iv, tag []byte
}

func newPayload(size int) payload {
	return payload{
		ct:  bytes.Repeat([]byte{0xAB}, size),
		iv:  bytes.Repeat([]byte{0x01}, cryptox.IVSize),
		tag: bytes.Repeat([]byte{0x02}, cryptox.AuthTagSize),
	}
}

func (p payload) hash() string {
	return cryptox.PayloadHash(p.ct, p.iv, p.tag)
}

func mustToken(t *testing.T) string {
	t.Helper()
	raw, err := cryptox.GenerateToken()
	require.NoError(t, err)
	return raw
}

// solvedPow issues a challenge for p and solves it.
func (h *harness) solvedPow(t *testing.T, p payload) PowAdmission {
	t.Helper()
	ctx := context.Background()
	c, err := h.challenges.Generate(ctx, p.hash(), int64(len(p.ct)))
	require.NoError(t, err)
	counter, err := cryptox.SolveWork(ctx, c.Nonce, c.PayloadHash, c.Difficulty)
	require.NoError(t, err)
	return PowAdmission{ChallengeID: c.ID, Nonce: c.Nonce, Counter: counter, PayloadHash: c.PayloadHash}
}

type createdSecret struct {
	id      string
	edit    string
	decrypt string
	payload payload
}

func (h *harness) request(t *testing.T, p payload, adm AdmissionProof) (*CreateRequest, string, string) {
	t.Helper()
	edit, decrypt := mustToken(t), mustToken(t)
	now := h.clock.Now()
	return &CreateRequest{
		Ciphertext:   p.ct,
		IV:           p.iv,
		AuthTag:      p.tag,
		UnlockAt:     now.Add(time.Hour),
		ExpiresAt:    now.Add(48 * time.Hour),
		EditToken:    edit,
		DecryptToken: decrypt,
		Admission:    adm,
	}, edit, decrypt
}

// createPow stores a secret unlocking in one hour via proof of work.
func (h *harness) createPow(t *testing.T) createdSecret {
	t.Helper()
	p := newPayload(32)
	req, edit, decrypt := h.request(t, p, h.solvedPow(t, p))
	h.expectTx(true)
	s, err := h.secrets.Create(context.Background(), req)
	require.NoError(t, err)
	return createdSecret{id: s.ID, edit: edit, decrypt: decrypt, payload: p}
}

func (h *harness) issue(t *testing.T, tier string) string {
	t.Helper()
	_, raw, err := h.tokens.Issue(context.Background(), tier, nil, nil)
	require.NoError(t, err)
	return raw
}

