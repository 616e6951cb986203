// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/relaycore/bulkmailer/internal/config"
	"github.com/relaycore/bulkmailer/internal/drainer"
	"github.com/relaycore/bulkmailer/internal/idempotency"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
	"github.com/relaycore/bulkmailer/internal/ratelimit"
	"github.com/relaycore/bulkmailer/internal/smtpsender"
	"github.com/relaycore/bulkmailer/internal/workerpool"
	"github.com/relaycore/bulkmailer/pkg/mail"
)

// ServiceContext wires every component of spec §2's data flow — Queue
// Adapter, Rate Limiter, Idempotency Store, SMTP Sender, Worker Pool,
// Drainer — as explicit dependencies constructed once at process entry and
// threaded downward, per spec §9's design note against hidden singletons.
type ServiceContext struct {
	Config config.Config

	Adapter     queueadapter.Adapter
	RateLimiter *ratelimit.Limiter
	Idempotency *idempotency.Store
	Transport   *mail.Transport
	Sender      *smtpsender.Sender
	WorkerPool  *workerpool.Pool
	Drainer     *drainer.Drainer

	goqiteAdapter *queueadapter.GoqiteAdapter
}

// NewServiceContext builds and wires the full dependency graph from c.
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	adapter, goqiteAdapter, err := newAdapter(c.Queue)
	if err != nil {
		return nil, fmt.Errorf("build queue adapter: %w", err)
	}

	domainLimits := ratelimit.DefaultDomainLimitTable()
	for domain, limit := range c.RateLimit.DomainLimits {
		domainLimits[domain] = limit
	}
	globalLimit := c.RateLimit.GlobalPerSecond
	if globalLimit <= 0 {
		globalLimit = ratelimit.DefaultGlobalPerSecondLimit
	}
	limiter := ratelimit.New(globalLimit, domainLimits)

	window := time.Duration(c.Delivery.IdempotencyWindowMs) * time.Millisecond
	var idempotencyOpts []idempotency.Option
	if window > 0 {
		idempotencyOpts = append(idempotencyOpts, idempotency.WithWindow(window))
	}
	idempotencyStore := idempotency.New(idempotencyOpts...)

	transportCfg := mail.TransportConfig{
		Host:            c.SMTP.Host,
		Port:            c.SMTP.Port,
		Username:        c.SMTP.Username,
		Password:        c.SMTP.Password,
		MaxConnections:  c.SMTP.MaxConnections,
		MaxMessages:     c.SMTP.MaxMessages,
		ConnectTimeout:  time.Duration(c.SMTP.ConnectTimeoutMs) * time.Millisecond,
		GreetingTimeout: time.Duration(c.SMTP.GreetingTimeoutMs) * time.Millisecond,
		SocketTimeout:   time.Duration(c.SMTP.SocketTimeoutMs) * time.Millisecond,
	}
	transport := mail.NewTransport(transportCfg)

	senderDomain := "example.com"
	if idx := domainOf(c.SMTP.From); idx != "" {
		senderDomain = idx
	}
	fromHeader := mail.Config{FromEmail: c.SMTP.From, FromName: c.SMTP.FromName}.FromHeader()

	sender := smtpsender.New(smtpsender.Config{
		From:            fromHeader,
		FromAddress:     c.SMTP.From,
		SenderDomain:    senderDomain,
		ReturnPath:      c.SMTP.ReturnPath,
		ReplyTo:         c.SMTP.ReplyTo,
		ListUnsubscribe: c.SMTP.ListUnsubscribe,
		CustomHeaders:   c.SMTP.CustomHeaders,
		MaxAttempts:     c.Delivery.MaxAttempts,
		InitialBackoff:  time.Duration(c.Delivery.InitialRetryMs) * time.Millisecond,
		MaxBackoff:      time.Duration(c.Delivery.MaxRetryMs) * time.Millisecond,
	}, transport, limiter, idempotencyStore)

	pool := workerpool.New(sender, adapter, c.Drainer.MaxConcurrency)
	drain := drainer.New(adapter, pool, c.Drainer.BatchSize, c.Drainer.EmptyPollThreshold)

	return &ServiceContext{
		Config:        c,
		Adapter:       adapter,
		RateLimiter:   limiter,
		Idempotency:   idempotencyStore,
		Transport:     transport,
		Sender:        sender,
		WorkerPool:    pool,
		Drainer:       drain,
		goqiteAdapter: goqiteAdapter,
	}, nil
}

func newAdapter(c config.QueueConfig) (queueadapter.Adapter, *queueadapter.GoqiteAdapter, error) {
	switch c.Backend {
	case "sqs":
		adapter, err := queueadapter.NewSQSAdapter(context.Background(), queueadapter.SQSConfig{
			Region:                   c.SQS.Region,
			QueueURL:                 c.SQS.QueueURL,
			DeadLetterURL:            c.SQS.DeadLetterURL,
			AccessKey:                c.SQS.AccessKey,
			SecretKey:                c.SQS.SecretKey,
			VisibilityTimeoutSeconds: c.SQS.VisibilityTimeoutSeconds,
		})
		return adapter, nil, err
	default:
		adapter, err := queueadapter.NewGoqiteAdapter(queueadapter.GoqiteConfig{
			DSN:               c.Goqite.DSN,
			QueueName:         c.Goqite.QueueName,
			DeadLetterName:    c.Goqite.DeadLetterName,
			VisibilityTimeout: time.Duration(c.Goqite.VisibilityTimeoutMs) * time.Millisecond,
		})
		return adapter, adapter, err
	}
}

func domainOf(address string) string {
	for i := len(address) - 1; i >= 0; i-- {
		if address[i] == '@' {
			return address[i+1:]
		}
	}
	return ""
}

// Close releases process-lifetime resources (pooled SMTP connections, the
// rate limiter's and idempotency store's maintenance goroutines, and the
// goqite backend's database handle when selected).
func (s *ServiceContext) Close() {
	s.Transport.Close()
	s.RateLimiter.Close()
	s.Idempotency.Close()
	if s.goqiteAdapter != nil {
		s.goqiteAdapter.Close()
	}
}
