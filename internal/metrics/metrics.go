// Package metrics exposes the delivery engine's counters, histograms, and
// gauges, grounded verbatim on pkg/delivery/metrics.go and
// internal/mjml/metrics.go's metric.NewCounterVec/HistogramVec/GaugeVec
// shape, relabeled for bulkmailer's domain.
package metrics

import "github.com/zeromicro/go-zero/core/metric"

var (
	SentTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "sent_total",
		Help:      "Total messages sent successfully",
		Labels:    []string{"domain"},
	})

	SkippedTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "skipped_total",
		Help:      "Total messages skipped as idempotent duplicates",
		Labels:    []string{"domain"},
	})

	RetriedTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "retried_total",
		Help:      "Total send retries across all attempts",
		Labels:    []string{"domain", "reason"},
	})

	FailedTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "failed_total",
		Help:      "Total messages whose attempt loop ended in failure, permanent or retryable",
		Labels:    []string{"domain", "reason"},
	})

	DeadLetteredTotal = metric.NewCounterVec(&metric.CounterVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "dead_lettered_total",
		Help:      "Total messages routed to the dead-letter destination",
		Labels:    []string{"domain", "reason"},
	})

	DeliveryDuration = metric.NewHistogramVec(&metric.HistogramVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "delivery",
		Name:      "duration_seconds",
		Help:      "End-to-end send duration in seconds, including retries",
		Labels:    []string{"domain"},
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	RateLimiterWaitSeconds = metric.NewHistogramVec(&metric.HistogramVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "ratelimit",
		Name:      "wait_seconds",
		Help:      "Time spent blocked in waitUntilAllowed",
		Labels:    []string{"domain"},
		Buckets:   []float64{0, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	})

	QueueDepth = metric.NewGaugeVec(&metric.GaugeVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Most recently observed queue depth",
		Labels:    []string{"queue"},
	})

	DrainBatchSize = metric.NewHistogramVec(&metric.HistogramVecOpts{
		Namespace: "bulkmailer",
		Subsystem: "drainer",
		Name:      "batch_size",
		Help:      "Number of messages fetched per poll",
		Labels:    []string{"stopped_reason"},
		Buckets:   []float64{0, 1, 5, 10},
	})
)
