// Package workerpool implements the Worker Pool of spec §4.4: chunked,
// bounded-concurrency dispatch of a fetched batch to the Sender, with a
// deadline guard that refuses work too close to the invocation deadline.
// Grounded on internal/delivery/engine.go's worker()/RoutineGroup pattern,
// reshaped from "N long-running pollers" into "N-wide chunked fan-out per
// batch".
package workerpool

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/rescue"
	"github.com/zeromicro/go-zero/core/threading"

	"github.com/relaycore/bulkmailer/internal/domain"
	"github.com/relaycore/bulkmailer/internal/errs"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
)

// DefaultMaxConcurrency and MaxMaxConcurrency are spec §4.4's default and
// cap for MAX_CONCURRENCY.
const (
	DefaultMaxConcurrency = 10
	MaxMaxConcurrency     = 50

	// deadlineGuard is the "< 5s remaining" refusal threshold of spec §4.4/§5.
	deadlineGuard = 5 * time.Second
)

// Sender is the minimal surface the pool needs from the SMTP Sender.
type Sender interface {
	Send(ctx context.Context, req *domain.SendRequest) domain.SendOutcome
}

// OutcomeForMessage pairs a dispatched message with its outcome, so the
// Drainer can partition ack_list/retry_list and drive dead-lettering.
type OutcomeForMessage struct {
	Message queueadapter.Message
	Request *domain.SendRequest
	Outcome domain.SendOutcome
}

// Pool dispatches batches to a Sender with bounded concurrency.
type Pool struct {
	sender         Sender
	adapter        queueadapter.Adapter
	maxConcurrency int
}

// New builds a Pool. maxConcurrency <= 0 uses DefaultMaxConcurrency; values
// above MaxMaxConcurrency are clamped.
func New(sender Sender, adapter queueadapter.Adapter, maxConcurrency int) *Pool {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if maxConcurrency > MaxMaxConcurrency {
		maxConcurrency = MaxMaxConcurrency
	}
	return &Pool{sender: sender, adapter: adapter, maxConcurrency: maxConcurrency}
}

// Dispatch parses and sends every message in batch, chunked into groups of
// maxConcurrency processed fully in parallel, one chunk at a time. Messages
// in a chunk entered after the deadline guard trips are marked
// Retryable{timeout} without attempting a send. The context handed to the
// Sender is cancelled at deadline, so its waits and sleeps end there.
func (p *Pool) Dispatch(ctx context.Context, batch []queueadapter.Message, deadline time.Time) []OutcomeForMessage {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	results := make([]OutcomeForMessage, 0, len(batch))

	for start := 0; start < len(batch); start += p.maxConcurrency {
		end := min(start+p.maxConcurrency, len(batch))
		chunk := batch[start:end]

		if time.Until(deadline) < deadlineGuard {
			for _, msg := range chunk {
				results = append(results, p.timeoutOutcome(msg))
			}
			continue
		}

		results = append(results, p.dispatchChunk(ctx, chunk)...)
	}

	return results
}

func (p *Pool) dispatchChunk(ctx context.Context, chunk []queueadapter.Message) []OutcomeForMessage {
	chunkResults := make([]OutcomeForMessage, len(chunk))
	group := threading.NewRoutineGroup()

	for i, msg := range chunk {
		i, msg := i, msg
		group.RunSafe(func() {
			completed := false
			defer rescue.Recover(func() {
				if completed {
					return
				}
				chunkResults[i] = OutcomeForMessage{
					Message: msg,
					Outcome: domain.Permanent(errs.ClassifyInternal(errPanic), 0),
				}
			})
			chunkResults[i] = p.dispatchOne(ctx, msg)
			completed = true
		})
	}

	group.Wait()
	return chunkResults
}

func (p *Pool) dispatchOne(ctx context.Context, msg queueadapter.Message) OutcomeForMessage {
	req, err := p.adapter.Parse(msg)
	if err != nil {
		logx.WithContext(ctx).Errorf("dropping malformed message %s: %v", msg.QueueMessageID, err)
		return OutcomeForMessage{
			Message: msg,
			Outcome: domain.Permanent(errs.Parse(err), 0),
		}
	}

	req.ReceiptToken = msg.ReceiptToken
	req.QueueMessageID = msg.QueueMessageID

	outcome := p.sender.Send(ctx, req)
	return OutcomeForMessage{Message: msg, Request: req, Outcome: outcome}
}

func (p *Pool) timeoutOutcome(msg queueadapter.Message) OutcomeForMessage {
	return OutcomeForMessage{
		Message: msg,
		Outcome: domain.Retryable(errs.ClassifyTransport(errDeadlineExceeded), 0, 0),
	}
}

var errDeadlineExceeded = deadlineExceededError{}
var errPanic = panicError{}

type deadlineExceededError struct{}

func (deadlineExceededError) Error() string { return "dispatch refused: deadline too close" }

type panicError struct{}

func (panicError) Error() string { return "panic during send" }
