package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// fakeClock lets tests advance time deterministically without sleeping.
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

func newTestLimiter(t *testing.T, globalLimit int, table DomainLimitTable) (*Limiter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	l := New(globalLimit, table, WithClock(clock.Now))
	t.Cleanup(l.Close)
	return l, clock
}

func TestWaitUntilAllowed_UnderLimitProceedsImmediately(t *testing.T) {
	table := DefaultDomainLimitTable()
	l, _ := newTestLimiter(t, DefaultGlobalPerSecondLimit, table)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.WaitUntilAllowed(ctx, "user@example.com"))
}

func TestDomainLimit_BlocksAtThreshold(t *testing.T) {
	table := DomainLimitTable{"default": 2, "gmail.com": 15}
	l, clock := newTestLimiter(t, 1000, table)

	l.RecordSend("example.com")
	l.RecordSend("example.com")

	wait := l.requiredWait("user@example.com")
	assert.Greater(t, wait, time.Duration(0))

	clock.Advance(domainWindow + time.Millisecond)
	assert.Equal(t, time.Duration(0), l.requiredWait("user@example.com"))
}

func TestGlobalLimit_BlocksAtThreshold(t *testing.T) {
	table := DefaultDomainLimitTable()
	l, clock := newTestLimiter(t, 2, table)

	l.RecordSend("a.com")
	l.RecordSend("b.com")

	wait := l.requiredWait("user@c.com")
	assert.Greater(t, wait, time.Duration(0))

	clock.Advance(globalWindow + time.Millisecond)
	assert.Equal(t, time.Duration(0), l.requiredWait("user@c.com"))
}

func TestCooldown_TakesPriorityOverWindow(t *testing.T) {
	table := DomainLimitTable{"default": 1000}
	l, clock := newTestLimiter(t, 1000, table)

	l.SetCooldown("example.com", 60*time.Second)
	wait := l.requiredWait("user@example.com")
	assert.InDelta(t, 60*time.Second, wait, float64(time.Second))

	clock.Advance(61 * time.Second)
	assert.Equal(t, time.Duration(0), l.requiredWait("user@example.com"))
}

func TestClearCooldown_UnblocksImmediately(t *testing.T) {
	l, _ := newTestLimiter(t, 1000, DomainLimitTable{"default": 1000})

	l.SetCooldown("example.com", time.Hour)
	require.Greater(t, l.requiredWait("user@example.com"), time.Duration(0))

	l.ClearCooldown("example.com")
	assert.Equal(t, time.Duration(0), l.requiredWait("user@example.com"))
}

func TestStats_ReportsWindowOccupancy(t *testing.T) {
	l, _ := newTestLimiter(t, 35, DefaultDomainLimitTable())

	l.RecordSend("gmail.com")
	l.RecordSend("gmail.com")

	s := l.Stats()
	assert.Equal(t, 2, s.GlobalSendsInWindow)
	assert.Equal(t, 2, s.Domains["gmail.com"].SendsInWindow)
	assert.Equal(t, 15, s.Domains["gmail.com"].PerMinuteLimit)
}

func TestDomainOf_UnknownOnMalformed(t *testing.T) {
	l, _ := newTestLimiter(t, 1000, DomainLimitTable{"default": 1000})
	assert.Equal(t, "unknown", domain.DomainOf("not-an-address"))
	assert.Equal(t, time.Duration(0), l.requiredWait("not-an-address"))
}

func TestWaitUntilAllowed_CancelledContext(t *testing.T) {
	l, _ := newTestLimiter(t, 1000, DomainLimitTable{"default": 1000})
	l.SetCooldown("example.com", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.WaitUntilAllowed(ctx, "user@example.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
