// Package smtpsender implements the SMTP Sender of spec §4.2: fingerprint
// and idempotency gating, rate-limit gating, header and body assembly,
// pre-send jitter, and a classification-driven attempt loop with backoff
// and domain cooldown. Grounded on internal/delivery/engine.go's
// processJob/handleError/calculateBackoff shape, generalized from a single
// isPermanentFailure string check into the full §4.2 classification table.
package smtpsender

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/relaycore/bulkmailer/internal/domain"
	"github.com/relaycore/bulkmailer/internal/errs"
	"github.com/relaycore/bulkmailer/internal/idempotency"
	"github.com/relaycore/bulkmailer/internal/metrics"
	"github.com/relaycore/bulkmailer/internal/ratelimit"
	"github.com/relaycore/bulkmailer/pkg/mail"
)

// Transport is the minimal surface the Sender needs from a pooled SMTP
// client, satisfied by pkg/mail.Transport.
type Transport interface {
	Send(from string, to []string, raw []byte) error
}

// Config carries the sender's envelope configuration.
type Config struct {
	From            string // display-name + address, used verbatim in the From header
	FromAddress     string // bare address, used for the SMTP MAIL FROM
	SenderDomain    string
	ReturnPath      string
	ReplyTo         string
	ListUnsubscribe string
	CustomHeaders   map[string]string

	// MaxAttempts, InitialBackoff, and MaxBackoff override spec §4.2's
	// defaults (MaxAttempts/InitialBackoff/MaxBackoff constants) when
	// positive, per the DeliveryConfig keys of spec §6.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return MaxAttempts
}

// Sender is the public `send(SendRequest) -> SendOutcome` operation of
// spec §4.2.
type Sender struct {
	cfg         Config
	transport   Transport
	rateLimiter *ratelimit.Limiter
	idempotency *idempotency.Store
	now         func() time.Time
}

// New builds a Sender wired to the given transport, rate limiter, and
// idempotency store.
func New(cfg Config, transport Transport, limiter *ratelimit.Limiter, store *idempotency.Store) *Sender {
	return &Sender{
		cfg:         cfg,
		transport:   transport,
		rateLimiter: limiter,
		idempotency: store,
		now:         time.Now,
	}
}

// Send executes the full pipeline for one SendRequest and returns exactly
// one SendOutcome, per spec §3's invariant.
func (s *Sender) Send(ctx context.Context, req *domain.SendRequest) domain.SendOutcome {
	req.WithFingerprint()
	dom := req.Domain()

	ctx = logx.ContextWithFields(ctx,
		logx.Field("recipient", req.Recipient),
		logx.Field("domain", dom),
		logx.Field("fingerprint", req.Fingerprint),
	)

	if s.idempotency.SeenRecently(req.Fingerprint) {
		logx.WithContext(ctx).Info("skipping idempotent duplicate")
		metrics.SkippedTotal.Inc(dom)
		return domain.Skipped(domain.SkipIdempotentDuplicate)
	}

	start := time.Now()
	waitStart := time.Now()
	if err := s.rateLimiter.WaitUntilAllowed(ctx, req.Recipient); err != nil {
		metrics.RateLimiterWaitSeconds.Observe(int64(time.Since(waitStart).Seconds()), dom)
		return domain.Retryable(errs.ClassifyTransport(err), 0, 0)
	}
	metrics.RateLimiterWaitSeconds.Observe(int64(time.Since(waitStart).Seconds()), dom)

	if err := sleepCtx(ctx, preSendJitter(dom)); err != nil {
		return domain.Retryable(errs.ClassifyTransport(err), 0, 0)
	}

	maxAttempts := s.cfg.maxAttempts()
	var lastErr *errs.Error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		headers, err := BuildHeaders(HeaderOptions{
			SenderDomain:    s.cfg.SenderDomain,
			From:            s.cfg.From,
			To:              req.Recipient,
			Subject:         req.Subject,
			ReturnPath:      s.cfg.ReturnPath,
			ReplyTo:         s.cfg.ReplyTo,
			ListUnsubscribe: s.cfg.ListUnsubscribe,
			CustomHeaders:   s.cfg.CustomHeaders,
		}, s.now())
		if err != nil {
			return domain.Permanent(errs.ClassifyInternal(err), 0)
		}

		raw, err := buildMessage(headers, req)
		if err != nil {
			return domain.Permanent(errs.ClassifyInternal(err), 0)
		}

		sendErr := s.transport.Send(s.cfg.FromAddress, []string{req.Recipient}, raw)
		if sendErr == nil {
			s.idempotency.Record(req.Fingerprint)
			s.rateLimiter.RecordSend(dom)
			metrics.SentTotal.Inc(dom)
			metrics.DeliveryDuration.ObserveFloat(time.Since(start).Seconds(), dom)
			logx.WithContext(ctx).Infow("message sent", logx.Field("attempts", attempt))
			return domain.Sent(headers.MessageID, attempt)
		}

		code := mail.SMTPCode(sendErr)
		classified := errs.ClassifySMTP(code, sendErr)
		lastErr = classified

		if classified.TriggersCooldown() {
			s.rateLimiter.SetCooldown(dom, 60*time.Second)
		}

		if !classified.Retryable() || attempt == maxAttempts {
			break
		}

		metrics.RetriedTotal.Inc(dom, classified.Kind.String())
		logx.WithContext(ctx).Infof("send attempt %d failed, retrying: %v", attempt, classified)
		if err := sleepCtx(ctx, backoffDuration(attempt, s.cfg.InitialBackoff, s.cfg.MaxBackoff)); err != nil {
			return domain.Retryable(errs.ClassifyTransport(err), attempt, classified.SMTPCode)
		}
	}

	return s.terminalOutcome(dom, lastErr, maxAttempts)
}

func (s *Sender) terminalOutcome(dom string, classified *errs.Error, maxAttempts int) domain.SendOutcome {
	if classified == nil {
		classified = errs.ClassifyInternal(fmt.Errorf("send loop exited without an error"))
	}
	if classified.Kind == errs.KindSmtpPermanent {
		metrics.FailedTotal.Inc(dom, classified.Kind.String())
		return domain.Permanent(classified, classified.SMTPCode)
	}
	metrics.FailedTotal.Inc(dom, classified.Kind.String())
	return domain.Retryable(classified, maxAttempts, classified.SMTPCode)
}
