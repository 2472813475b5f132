// Package blobstore keeps ciphertexts too large to inline in the secrets
// table.
package blobstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richmiles/in-the-event-of-my-death/internal/common"
)

// Store is an opaque key/value object store. Get returns
// common.ErrorNotFound for a missing key; Delete of a missing key is not an
// error.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// NewObjectKey returns secrets/<yyyy>/<mm>/<dd>/<uuid> for the given day.
func NewObjectKey(now time.Time) string {
	d := now.UTC()
	return fmt.Sprintf("secrets/%04d/%02d/%02d/%s", d.Year(), d.Month(), d.Day(), uuid.New())
}

// MemoryStore is an in-process Store used as a test double for S3Store.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
