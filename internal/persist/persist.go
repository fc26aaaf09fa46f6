// Package persist keeps timestamped JSON snapshots in a key-value store
// and discards them once they are older than a TTL. Every storage failure
// is logged and swallowed: the worst case is that no resume is available.
package persist

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"time"

	"github.com/abhisek/flashdrill/internal/clock"
)

// DefaultTTL is how long a snapshot stays valid.
const DefaultTTL = time.Hour

// KV is the durable storage port.
type KV interface {
	// Get returns the value for key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// record is the on-disk envelope.
type record struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store saves and restores snapshots with a staleness TTL.
type Store struct {
	kv    KV
	clock clock.Clock
	ttl   time.Duration
	log   *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for swallowed storage failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store over kv.
func New(kv KV, c clock.Clock, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		clock: c,
		ttl:   DefaultTTL,
		log:   log.New(io.Discard, "", 0),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// TTL returns the configured staleness bound.
func (s *Store) TTL() time.Duration { return s.ttl }

// Save writes v under key, stamped with the current time.
func (s *Store) Save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("warning: encode snapshot %q: %v", key, err)
		return
	}
	b, err := json.Marshal(record{
		Timestamp: clock.EpochMs(s.clock.Now()),
		Data:      data,
	})
	if err != nil {
		s.log.Printf("warning: encode snapshot %q: %v", key, err)
		return
	}
	if err := s.kv.Put(ctx, key, b); err != nil {
		s.log.Printf("warning: save snapshot %q: %v", key, err)
	}
}

// Restore decodes the snapshot under key into v and returns the time it
// was saved. ok is false when the snapshot is absent, unreadable or older
// than the TTL; stale and unreadable entries are deleted.
func (s *Store) Restore(ctx context.Context, key string, v any) (savedAt time.Time, ok bool) {
	b, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.log.Printf("warning: load snapshot %q: %v", key, err)
		return time.Time{}, false
	}
	if !found {
		return time.Time{}, false
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		s.log.Printf("warning: discard unreadable snapshot %q: %v", key, err)
		s.Clear(ctx, key)
		return time.Time{}, false
	}

	savedAt = time.UnixMilli(rec.Timestamp)
	if s.clock.Now().Sub(savedAt) > s.ttl {
		s.Clear(ctx, key)
		return time.Time{}, false
	}

	if err := json.Unmarshal(rec.Data, v); err != nil {
		s.log.Printf("warning: discard unreadable snapshot %q: %v", key, err)
		s.Clear(ctx, key)
		return time.Time{}, false
	}
	return savedAt, true
}

// Clear removes the snapshot under key.
func (s *Store) Clear(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Printf("warning: clear snapshot %q: %v", key, err)
	}
}
