// Package drainer implements the Drainer of spec §4.5: a deadline-bounded
// poll loop over the Queue Adapter feeding the Worker Pool, plus an
// event-driven batch entry point. Grounded on internal/delivery/engine.go's
// worker() adaptive-backoff loop, reshaped from a per-worker poll loop into
// the single-Drainer poll loop spec §4.5 describes.
package drainer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/syncx"

	"github.com/relaycore/bulkmailer/internal/domain"
	"github.com/relaycore/bulkmailer/internal/metrics"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
	"github.com/relaycore/bulkmailer/internal/workerpool"
)

const (
	// BatchSize is spec §4.5's default BATCH_SIZE, used when New receives a
	// non-positive value.
	BatchSize = 10

	// EmptyPollThreshold is spec §4.5's default EMPTY_POLL_THRESHOLD, used
	// when New receives a non-positive value.
	EmptyPollThreshold = 3

	// drainBuffer is the fixed 5 s margin before the deadline that ends the
	// poll loop (spec §4.5). It is not read from DrainerConfig.DrainBufferMs.
	drainBuffer = 5 * time.Second

	emptyPollSleep = time.Second
	batchBreather  = 100 * time.Millisecond
	errorCooldown  = 2 * time.Second
)

// StoppedReason enumerates why Drain returned.
type StoppedReason string

const (
	StoppedQueueEmpty StoppedReason = "queue_empty"
	StoppedTimeout    StoppedReason = "timeout"
)

// Summary is the result of one Drain invocation, per spec §4.5/§6.
type Summary struct {
	Processed      int
	Failed         int
	Permanent      int
	StoppedReason  StoppedReason
	ElapsedSeconds float64
}

// BatchResult partitions outcomes for the event-driven entry point: ack_list
// holds messages whose terminal outcome requires an Ack (Sent/Skipped/
// Permanent, with Permanent additionally dead-lettered); retry_list holds
// messages left unacked so the queue's visibility timeout redelivers them.
type BatchResult struct {
	AckList   []workerpool.OutcomeForMessage
	RetryList []workerpool.OutcomeForMessage
	Summary   Summary
}

// Drainer owns the poll loop and the event-driven batch entry point.
type Drainer struct {
	adapter            queueadapter.Adapter
	pool               *workerpool.Pool
	batchSize          int
	emptyPollThreshold int
	running            *syncx.AtomicBool
	deadLetterCount    atomic.Int64
}

// New builds a Drainer wired to adapter and pool. batchSize <= 0 uses
// BatchSize (clamped to queueadapter.MaxFetch); emptyPollThreshold <= 0 uses
// EmptyPollThreshold, per spec §6's DrainerConfig keys.
func New(adapter queueadapter.Adapter, pool *workerpool.Pool, batchSize, emptyPollThreshold int) *Drainer {
	if batchSize <= 0 {
		batchSize = BatchSize
	}
	if batchSize > queueadapter.MaxFetch {
		batchSize = queueadapter.MaxFetch
	}
	if emptyPollThreshold <= 0 {
		emptyPollThreshold = EmptyPollThreshold
	}
	return &Drainer{
		adapter:            adapter,
		pool:               pool,
		batchSize:          batchSize,
		emptyPollThreshold: emptyPollThreshold,
		running:            syncx.NewAtomicBool(),
	}
}

// DeadLetterCount reports how many messages this Drainer has routed to the
// dead-letter destination since process start. Exposed for operational
// introspection; it is a process-lifetime counter, not a queue-wide total.
func (d *Drainer) DeadLetterCount() int64 {
	return d.deadLetterCount.Load()
}

// Drain runs the polling loop described in spec §4.5 until the deadline
// nears or d.emptyPollThreshold consecutive empty polls occur.
func (d *Drainer) Drain(ctx context.Context, deadline time.Time) Summary {
	if !d.running.CompareAndSwap(false, true) {
		return Summary{StoppedReason: StoppedTimeout}
	}
	defer d.running.Set(false)

	start := time.Now()
	summary := Summary{}
	emptyPolls := 0

	for time.Until(deadline) > drainBuffer && emptyPolls < d.emptyPollThreshold {
		wait := clampWaitSeconds(int(time.Until(deadline).Seconds()) - 1)

		messages, err := d.adapter.Fetch(ctx, d.batchSize, wait)
		if err != nil {
			logx.WithContext(ctx).Errorf("queue fetch failed: %v", err)
			sleepOrDone(ctx, errorCooldown)
			continue
		}

		if len(messages) == 0 {
			emptyPolls++
			metrics.DrainBatchSize.Observe(0, string(StoppedQueueEmpty))
			sleepOrDone(ctx, emptyPollSleep)
			continue
		}
		emptyPolls = 0
		metrics.DrainBatchSize.Observe(int64(len(messages)), "")

		results := d.pool.Dispatch(ctx, messages, deadline)
		d.applyOutcomes(ctx, results, &summary)

		sleepOrDone(ctx, batchBreather)
	}

	summary.StoppedReason = StoppedQueueEmpty
	if emptyPolls < d.emptyPollThreshold {
		summary.StoppedReason = StoppedTimeout
	}
	summary.ElapsedSeconds = time.Since(start).Seconds()
	return summary
}

// DrainBatch is the event-driven entry point of spec §4.5: it skips
// fetching and dispatches a pre-fetched batch once, partitioning outcomes
// into ack_list/retry_list for the caller to report partial-batch failures
// upstream.
func (d *Drainer) DrainBatch(ctx context.Context, messages []queueadapter.Message, deadline time.Time) BatchResult {
	start := time.Now()
	results := d.pool.Dispatch(ctx, messages, deadline)

	var summary Summary
	batch := BatchResult{}
	d.applyOutcomes(ctx, results, &summary)

	for _, r := range results {
		if r.Outcome.RequiresAck() {
			batch.AckList = append(batch.AckList, r)
		} else {
			batch.RetryList = append(batch.RetryList, r)
		}
	}

	summary.ElapsedSeconds = time.Since(start).Seconds()
	batch.Summary = summary
	return batch
}

// applyOutcomes acks/dead-letters messages per spec §4.4/§7 and updates
// summary counters.
func (d *Drainer) applyOutcomes(ctx context.Context, results []workerpool.OutcomeForMessage, summary *Summary) {
	for _, r := range results {
		summary.Processed++

		switch r.Outcome.Kind {
		case domain.OutcomeSent, domain.OutcomeSkipped:
			d.ack(ctx, r.Message.ReceiptToken)
		case domain.OutcomePermanent:
			summary.Failed++
			summary.Permanent++
			dom := "unknown"
			if r.Request != nil {
				dom = r.Request.Domain()
			}
			d.deadLetterThenAck(ctx, dom, r.Message)
		case domain.OutcomeRetryable:
			summary.Failed++
			// No action: the queue's visibility timeout redelivers it.
		}
	}
}

func (d *Drainer) ack(ctx context.Context, receiptToken string) {
	if receiptToken == "" {
		return
	}
	if err := d.adapter.Ack(ctx, receiptToken); err != nil {
		logx.WithContext(ctx).Errorf("ack failed: %v", err)
	}
}

func (d *Drainer) deadLetterThenAck(ctx context.Context, dom string, msg queueadapter.Message) {
	if err := d.adapter.DeadLetter(ctx, msg.Body, msg.Attributes); err != nil {
		logx.WithContext(ctx).Errorf("dead-letter send failed: %v", err)
		return
	}
	d.deadLetterCount.Add(1)
	metrics.DeadLetteredTotal.Inc(dom, "permanent")
	d.ack(ctx, msg.ReceiptToken)
}

func clampWaitSeconds(wait int) int {
	if wait < 0 {
		return 0
	}
	if wait > queueadapter.MaxWaitSeconds {
		return queueadapter.MaxWaitSeconds
	}
	return wait
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
