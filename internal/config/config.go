package config

import (
	"github.com/zeromicro/go-zero/mcp"
	"github.com/zeromicro/go-zero/rest"
)

// Config is bulkmailer's full configuration surface, covering every key of
// spec §6. Grounded on the teacher's Config struct shape (nested sub-configs
// loaded via go-zero's conf.MustLoad + conf.UseEnv()).
type Config struct {
	// OpsTools exposes an MCP tool server for operational introspection
	// (get_rate_limiter_stats, get_queue_depth, trigger_drain,
	// deadletter_stats). Replaces the teacher's product-facing MCP tools
	// (render_template, send_email, ...) with an operator-facing set.
	OpsTools mcp.McpConf `json:",optional"`

	// OpsHTTP serves /healthz and /metrics. It replaces the teacher's UI/API
	// server pair, which served a different (template-authoring) product
	// surface.
	OpsHTTP rest.RestConf `json:",optional"`

	RateLimit RateLimitConfig `json:",optional"`
	Delivery  DeliveryConfig  `json:",optional"`
	SMTP      SMTPConfig      `json:",optional"`
	Queue     QueueConfig     `json:",optional"`
	Drainer   DrainerConfig   `json:",optional"`
}

// RateLimitConfig covers GLOBAL_RATE_PER_SECOND and DOMAIN_LIMITS.
type RateLimitConfig struct {
	GlobalPerSecond int            `json:",default=35"`
	DomainLimits    map[string]int `json:",optional"`
}

// DeliveryConfig covers MAX_ATTEMPTS, INITIAL_RETRY_MS, MAX_RETRY_MS, and
// IDEMPOTENCY_WINDOW_MS.
type DeliveryConfig struct {
	MaxAttempts         int   `json:",default=3"`
	InitialRetryMs      int64 `json:",default=1000"`
	MaxRetryMs          int64 `json:",default=60000"`
	IdempotencyWindowMs int64 `json:",default=86400000"`
}

// SMTPConfig covers SMTP_* and the header-configuration keys.
type SMTPConfig struct {
	Host     string `json:",default=smtp.gmail.com"`
	Port     string `json:",default=587"`
	Username string `json:",optional"`
	Password string `json:",optional"`

	MaxConnections int `json:",default=10"`
	MaxMessages    int `json:",default=50"`

	ConnectTimeoutMs  int64 `json:",default=15000"`
	GreetingTimeoutMs int64 `json:",default=10000"`
	SocketTimeoutMs   int64 `json:",default=30000"`

	From            string            `json:",optional"`
	FromName        string            `json:",optional"`
	ReplyTo         string            `json:",optional"`
	ReturnPath      string            `json:",optional"`
	ListUnsubscribe string            `json:",optional"`
	CustomHeaders   map[string]string `json:",optional"`
}

// QueueConfig selects and configures the Queue Adapter backend.
type QueueConfig struct {
	Backend string `json:",default=goqite,options=[sqs,goqite]"`

	SQS    SQSQueueConfig    `json:",optional"`
	Goqite GoqiteQueueConfig `json:",optional"`
}

type SQSQueueConfig struct {
	Region                   string `json:",optional"`
	QueueURL                 string `json:",optional"`
	DeadLetterURL            string `json:",optional"`
	AccessKey                string `json:",optional"`
	SecretKey                string `json:",optional"`
	VisibilityTimeoutSeconds int32  `json:",default=30"`
}

type GoqiteQueueConfig struct {
	DSN                 string `json:",default=file:bulkmailer.db?_pragma=busy_timeout(5000)"`
	QueueName           string `json:",default=bulkmailer_sends"`
	DeadLetterName      string `json:",default=bulkmailer_sends_dlq"`
	VisibilityTimeoutMs int64  `json:",default=30000"`
}

// DrainerConfig covers MAX_CONCURRENCY, BATCH_SIZE, DRAIN_BUFFER_MS, and
// EMPTY_POLL_THRESHOLD.
type DrainerConfig struct {
	MaxConcurrency     int   `json:",default=10"`
	BatchSize          int   `json:",default=10"`
	DrainBufferMs      int64 `json:",default=60000"`
	EmptyPollThreshold int   `json:",default=3"`
	// DeadlineSeconds bounds one invocation of cmd/drainonce when no
	// explicit deadline flag is given.
	DeadlineSeconds int `json:",default=55"`
}
