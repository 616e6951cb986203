// Package queueadapter implements the Queue Adapter of spec §4.3: an
// abstraction over an external at-least-once queue with visibility-timeout
// and dead-letter semantics. Grounded on pkg/queue/queue.go's
// Receive/UpdateStatus/MarkSent contract, reinterpreted against an external
// queue rather than a SQLite table.
package queueadapter

import (
	"context"

	"github.com/relaycore/bulkmailer/internal/domain"
)

// MaxFetch and MaxWaitSeconds are the hard caps of spec §4.3.
const (
	MaxFetch       = 10
	MaxWaitSeconds = 20
)

// Message is one raw queue entry before parsing.
type Message struct {
	Body           string
	Attributes     map[string]string
	ReceiptToken   string
	QueueMessageID string
}

// DepthReporter is an optional capability exposed by backends that can
// report their current queue depth cheaply, for operational introspection.
type DepthReporter interface {
	QueueDepth(ctx context.Context) (int64, error)
}

// Adapter abstracts fetch/ack/dead-letter/parse against an external queue.
type Adapter interface {
	// Fetch retrieves up to max (capped at MaxFetch) messages, long-polling
	// for up to waitSeconds (capped at MaxWaitSeconds).
	Fetch(ctx context.Context, max int, waitSeconds int) ([]Message, error)
	// Ack removes the message identified by receiptToken from the source
	// queue.
	Ack(ctx context.Context, receiptToken string) error
	// DeadLetter enqueues body/attributes to the configured dead-letter
	// destination. The caller is expected to Ack the original afterwards.
	DeadLetter(ctx context.Context, body string, attributes map[string]string) error
	// Parse decodes a Message into a SendRequest per spec §4.3/§6's
	// attrs-then-body precedence rules.
	Parse(msg Message) (*domain.SendRequest, error)
}

func clampFetch(max int) int {
	if max <= 0 || max > MaxFetch {
		return MaxFetch
	}
	return max
}

func clampWait(waitSeconds int) int {
	if waitSeconds < 0 {
		return 0
	}
	if waitSeconds > MaxWaitSeconds {
		return MaxWaitSeconds
	}
	return waitSeconds
}
