// Package services contains server-side business logic: proof-of-work
// challenges, capability tokens and the secret lifecycle. Services own
// transaction scope and vend repositories through a RepositoryManager.
package services

import (
	"time"

	"github.com/richmiles/in-the-event-of-my-death/internal/blobstore"
	"github.com/richmiles/in-the-event-of-my-death/internal/cryptox"
	"github.com/richmiles/in-the-event-of-my-death/internal/logging"
)

type options struct {
	now    func() time.Time
	hasher *cryptox.Hasher
	blobs  blobstore.Store
	logger logging.Logger
}

// Option customises a service at construction.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHasher replaces the default argon2id parameters.
func WithHasher(h *cryptox.Hasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithBlobStore enables out-of-row payload storage.
func WithBlobStore(s blobstore.Store) Option {
	return func(o *options) { o.blobs = s }
}

func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: logging.Nop{},
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.hasher == nil {
		o.hasher = cryptox.NewHasher(cryptox.DefaultParams)
	}
	return o
}
