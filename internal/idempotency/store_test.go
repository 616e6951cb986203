package idempotency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSeenRecently_UnknownFingerprint(t *testing.T) {
	s := New()
	defer s.Close()
	assert.False(t, s.SeenRecently("abc"))
}

func TestRecordThenSeenRecently(t *testing.T) {
	s := New()
	defer s.Close()

	s.Record("abc")
	assert.True(t, s.SeenRecently("abc"))
}

func TestSeenRecently_ExpiresAfterWindow(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithWindow(time.Hour))
	defer s.Close()

	s.Record("abc")
	assert.True(t, s.SeenRecently("abc"))

	clock.Advance(2 * time.Hour)
	assert.False(t, s.SeenRecently("abc"))
	assert.Equal(t, 0, s.Len())
}

func TestRecord_RefreshesExpiredEntry(t *testing.T) {
	clock := newFakeClock()
	s := New(WithClock(clock.Now), WithWindow(time.Hour))
	defer s.Close()

	s.Record("abc")
	clock.Advance(2 * time.Hour)
	s.Record("abc")

	assert.True(t, s.SeenRecently("abc"))
}
