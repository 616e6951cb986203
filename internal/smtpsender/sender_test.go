package smtpsender

import (
	"context"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/bulkmailer/internal/domain"
	"github.com/relaycore/bulkmailer/internal/idempotency"
	"github.com/relaycore/bulkmailer/internal/ratelimit"
)

type scriptedTransport struct {
	responses []error
	calls     int
	lastRaw   []byte
}

func (t *scriptedTransport) Send(from string, to []string, raw []byte) error {
	t.lastRaw = raw
	if t.calls >= len(t.responses) {
		return nil
	}
	err := t.responses[t.calls]
	t.calls++
	return err
}

func newTestSender(t *testing.T, transport Transport) *Sender {
	t.Helper()
	limiter := ratelimit.New(1000, ratelimit.DefaultDomainLimitTable())
	t.Cleanup(limiter.Close)
	store := idempotency.New()
	t.Cleanup(store.Close)

	cfg := Config{
		From:         "Bulkmailer <noreply@example.com>",
		FromAddress:  "noreply@example.com",
		SenderDomain: "example.com",
	}
	return New(cfg, transport, limiter, store)
}

func TestSend_SuccessOnFirstAttempt(t *testing.T) {
	transport := &scriptedTransport{}
	s := newTestSender(t, transport)

	req := &domain.SendRequest{Recipient: "user@test.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	outcome := s.Send(context.Background(), req)

	require.Equal(t, domain.OutcomeSent, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, transport.calls)
}

func TestSend_IdempotentDuplicateSkipped(t *testing.T) {
	transport := &scriptedTransport{}
	s := newTestSender(t, transport)

	req := &domain.SendRequest{Recipient: "user@test.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	first := s.Send(context.Background(), req)
	require.Equal(t, domain.OutcomeSent, first.Kind)

	second := s.Send(context.Background(), req)
	assert.Equal(t, domain.OutcomeSkipped, second.Kind)
	assert.Equal(t, domain.SkipIdempotentDuplicate, second.SkipReason)
	assert.Equal(t, 1, transport.calls, "idempotent duplicate must not reach the transport")
}

func TestSend_HardBouncePermanent(t *testing.T) {
	transport := &scriptedTransport{
		responses: []error{&textproto.Error{Code: 550, Msg: "5.1.1 no such user"}},
	}
	s := newTestSender(t, transport)

	req := &domain.SendRequest{Recipient: "nobody@x.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	outcome := s.Send(context.Background(), req)

	assert.Equal(t, domain.OutcomePermanent, outcome.Kind)
	assert.Equal(t, 550, outcome.SMTPCode)
	assert.Equal(t, 1, transport.calls)
}

func TestSend_RateLimitedProviderTriggersCooldown(t *testing.T) {
	transport := &scriptedTransport{
		responses: []error{
			&textproto.Error{Code: 421, Msg: "4.7.0 try again later"},
			&textproto.Error{Code: 421, Msg: "4.7.0 try again later"},
			&textproto.Error{Code: 421, Msg: "4.7.0 try again later"},
		},
	}
	limiter := ratelimit.New(1000, ratelimit.DomainLimitTable{"default": 1000})
	defer limiter.Close()
	store := idempotency.New()
	defer store.Close()

	cfg := Config{From: "n@example.com", FromAddress: "n@example.com", SenderDomain: "example.com"}
	s := New(cfg, transport, limiter, store)

	req := &domain.SendRequest{Recipient: "u@gmail.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	outcome := s.Send(context.Background(), req)

	assert.Equal(t, domain.OutcomeRetryable, outcome.Kind)
	assert.Equal(t, MaxAttempts, outcome.Attempts)

	stats := limiter.Stats()
	cooldown := stats.Domains["gmail.com"].CooldownUntil
	assert.False(t, cooldown.IsZero())
	assert.WithinDuration(t, time.Now().Add(60*time.Second), cooldown, 5*time.Second)
}

func TestSend_TransientThenSuccess(t *testing.T) {
	transport := &scriptedTransport{
		responses: []error{&textproto.Error{Code: 451, Msg: "greylisted"}},
	}
	s := newTestSender(t, transport)

	req := &domain.SendRequest{Recipient: "user@test.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	start := time.Now()
	outcome := s.Send(context.Background(), req)
	elapsed := time.Since(start)

	require.Equal(t, domain.OutcomeSent, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
}

func TestSend_ConfigOverridesMaxAttempts(t *testing.T) {
	transport := &scriptedTransport{
		responses: []error{
			&textproto.Error{Code: 451, Msg: "greylisted"},
			&textproto.Error{Code: 451, Msg: "greylisted"},
		},
	}
	limiter := ratelimit.New(1000, ratelimit.DefaultDomainLimitTable())
	defer limiter.Close()
	store := idempotency.New()
	defer store.Close()

	cfg := Config{
		From:           "n@example.com",
		FromAddress:    "n@example.com",
		SenderDomain:   "example.com",
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
	s := New(cfg, transport, limiter, store)

	req := &domain.SendRequest{Recipient: "user@test.com", Subject: "hi", Body: "hello", ContentKind: domain.ContentText}
	outcome := s.Send(context.Background(), req)

	assert.Equal(t, domain.OutcomeRetryable, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, transport.calls)
}

func TestSend_HTMLBodyProducesMultipart(t *testing.T) {
	transport := &scriptedTransport{}
	s := newTestSender(t, transport)

	req := &domain.SendRequest{Recipient: "user@test.com", Subject: "hi", Body: "<html><body>hi</body></html>", ContentKind: domain.ContentHTML}
	outcome := s.Send(context.Background(), req)

	require.Equal(t, domain.OutcomeSent, outcome.Kind)
	assert.Contains(t, string(transport.lastRaw), "multipart/alternative")
}
