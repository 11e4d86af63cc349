package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type entry[T any] struct {
	mu        sync.Mutex
	value     T
	createdAt time.Time
	// expires is unix nanos; read by the sweeper without holding mu.
	expires atomic.Int64
	deleted bool
}

// MemoryStore is the in-process Store. State is lost on restart.
type MemoryStore[T any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry[T]

	sweepRunning bool
}

var _ Store[struct{}] = &MemoryStore[struct{}]{}

type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	now func() time.Time
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) { o.now = now }
}

func NewMemoryStore[T any](ttl time.Duration, opts ...MemoryOption) *MemoryStore[T] {
	o := memoryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore[T]{
		ttl:     ttl,
		now:     o.now,
		entries: map[string]*entry[T]{},
	}
}

// acquire returns the live entry for id, replacing an expired one.
func (s *MemoryStore[T]) acquire(id string) *entry[T] {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok && e.expires.Load() > now.UnixNano() {
		return e
	}
	e = &entry[T]{createdAt: now}
	e.expires.Store(now.Add(s.ttl).UnixNano())
	s.entries[id] = e
	return e
}

// lockLive locks a live entry for id. An entry deleted between acquire and
// lock is skipped and a new one acquired.
func (s *MemoryStore[T]) lockLive(id string) *entry[T] {
	for {
		e := s.acquire(id)
		e.mu.Lock()
		if !e.deleted {
			return e
		}
		e.mu.Unlock()
	}
}

func (s *MemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	e := s.lockLive(id)
	defer e.mu.Unlock()
	return e.value, nil
}

func (s *MemoryStore[T]) Set(_ context.Context, id string, v T) error {
	e := s.lockLive(id)
	defer e.mu.Unlock()
	e.value = v
	e.expires.Store(s.now().Add(s.ttl).UnixNano())
	return nil
}

// Update runs fn on a copy of the current value and stores it when fn returns
// nil. Concurrent updates of the same id run one at a time.
func (s *MemoryStore[T]) Update(_ context.Context, id string, fn func(*T) error) error {
	e := s.lockLive(id)
	defer e.mu.Unlock()
	v := e.value
	if err := fn(&v); err != nil {
		return err
	}
	e.value = v
	e.expires.Store(s.now().Add(s.ttl).UnixNano())
	return nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		e.deleted = true
		e.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore[T]) Peek(_ context.Context, id string) (T, Meta, bool, error) {
	var zero T
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	exp := e.expires.Load()
	if e.deleted || exp <= s.now().UnixNano() {
		return zero, Meta{}, false, nil
	}
	return e.value, Meta{CreatedAt: e.createdAt, ExpiresAt: time.Unix(0, exp)}, true, nil
}

func (s *MemoryStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed. Entries
// busy in an Update are left for the next pass.
func (s *MemoryStore[T]) Sweep(now time.Time) int {
	if now.IsZero() {
		now = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.expires.Load() > now.UnixNano() {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		e.deleted = true
		e.mu.Unlock()
		delete(s.entries, id)
		removed++
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done. Calling it twice
// is a no-op.
func (s *MemoryStore[T]) StartSweeper(ctx context.Context, interval time.Duration) {
	if ctx == nil {
		panic("session: StartSweeper requires non-nil ctx")
	}
	if interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.sweepRunning {
		s.mu.Unlock()
		return
	}
	s.sweepRunning = true
	s.mu.Unlock()

	go s.runSweeper(ctx, interval)
}

func (s *MemoryStore[T]) runSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.sweepRunning = false
			s.mu.Unlock()
			return
		case now := <-ticker.C:
			if n := s.Sweep(now); n > 0 {
				log.Debug().Str("component", "session").Int("removed", n).Msg("swept expired sessions")
			}
		}
	}
}
