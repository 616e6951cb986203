// Package idempotency implements the in-process fingerprint -> first_sent_at
// mapping of spec §3/§9: a bounded concurrent map with a 24h TTL and lazy
// plus periodic eviction. Grounded on pkg/queue/events.go's batched,
// mutex-guarded event-recording pattern.
package idempotency

import (
	"sync"
	"time"
)

// DefaultWindow is the 24-hour idempotency window of spec §3.
const DefaultWindow = 24 * time.Hour

const defaultSweepInterval = time.Hour

// Store tracks which fingerprints have already been sent within the
// idempotency window.
type Store struct {
	mu      sync.Mutex
	entries map[string]time.Time // fingerprint -> first_sent_at
	window  time.Duration
	clock   func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the store's notion of "now", for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithWindow overrides the default 24h idempotency window.
func WithWindow(window time.Duration) Option {
	return func(s *Store) { s.window = window }
}

// New builds a Store and starts its periodic sweep goroutine.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]time.Time),
		window:  DefaultWindow,
		clock:   time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweep goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// SeenRecently reports whether fingerprint was first recorded less than the
// idempotency window ago. A stale entry found during the lookup is evicted
// lazily.
func (s *Store) SeenRecently(fingerprint string) bool {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	firstSeen, ok := s.entries[fingerprint]
	if !ok {
		return false
	}
	if now.Sub(firstSeen) >= s.window {
		delete(s.entries, fingerprint)
		return false
	}
	return true
}

// Record inserts fingerprint with first_sent_at = now if it is not already
// present (or has expired).
func (s *Store) Record(fingerprint string) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if firstSeen, ok := s.entries[fingerprint]; ok && now.Sub(firstSeen) < s.window {
		return
	}
	s.entries[fingerprint] = now
}

// Len reports the current number of tracked entries, stale or not. Exposed
// for tests and operational introspection.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for fp, firstSeen := range s.entries {
		if now.Sub(firstSeen) >= s.window {
			delete(s.entries, fp)
		}
	}
}
