package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/mcp"

	"github.com/relaycore/bulkmailer/internal/drainer"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
	"github.com/relaycore/bulkmailer/internal/ratelimit"
)

// Typed argument structs — the SDK auto-generates JSON schema from these.

type rateLimiterStatsArgs struct{}

type queueDepthArgs struct{}

type triggerDrainArgs struct {
	TimeoutSeconds int `json:"timeoutSeconds,omitempty" jsonschema:"how long to run the drain loop for, default 55"`
}

type deadLetterStatsArgs struct{}

// RegisterMCPTools registers the ops tool surface: read-only introspection
// plus a manual drain trigger. There is no auto-replay tool for
// dead-lettered messages — replay is an operator decision, made outside
// this process.
func RegisterMCPTools(s mcp.McpServer, limiter *ratelimit.Limiter, adapter queueadapter.Adapter, d *drainer.Drainer) {
	registerRateLimiterStatsTool(s, limiter)
	registerQueueDepthTool(s, adapter)
	registerTriggerDrainTool(s, d)
	registerDeadLetterStatsTool(s, d)
}

func registerRateLimiterStatsTool(s mcp.McpServer, limiter *ratelimit.Limiter) {
	tool := &mcp.Tool{
		Name:        "get_rate_limiter_stats",
		Description: "Report the rate limiter's current global and per-domain window occupancy and any active cooldowns.",
	}

	mcp.AddTool(s, tool, func(ctx context.Context, req *mcp.CallToolRequest, args rateLimiterStatsArgs) (*mcp.CallToolResult, any, error) {
		stats := limiter.Stats()
		return jsonResult(stats)
	})
}

func registerQueueDepthTool(s mcp.McpServer, adapter queueadapter.Adapter) {
	tool := &mcp.Tool{
		Name:        "get_queue_depth",
		Description: "Report the approximate number of messages waiting in the send queue.",
	}

	mcp.AddTool(s, tool, func(ctx context.Context, req *mcp.CallToolRequest, args queueDepthArgs) (*mcp.CallToolResult, any, error) {
		reporter, ok := adapter.(queueadapter.DepthReporter)
		if !ok {
			return nil, nil, fmt.Errorf("queue backend does not support depth reporting")
		}
		depth, err := reporter.QueueDepth(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("queue depth: %w", err)
		}
		return jsonResult(map[string]any{"depth": depth})
	})
}

func registerTriggerDrainTool(s mcp.McpServer, d *drainer.Drainer) {
	tool := &mcp.Tool{
		Name:        "trigger_drain",
		Description: "Manually run one deadline-bounded drain pass over the send queue and report a summary.",
	}

	mcp.AddTool(s, tool, func(ctx context.Context, req *mcp.CallToolRequest, args triggerDrainArgs) (*mcp.CallToolResult, any, error) {
		timeout := time.Duration(args.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 55 * time.Second
		}
		summary := d.Drain(ctx, time.Now().Add(timeout))
		return jsonResult(summary)
	})
}

func registerDeadLetterStatsTool(s mcp.McpServer, d *drainer.Drainer) {
	tool := &mcp.Tool{
		Name:        "deadletter_stats",
		Description: "Report how many messages this process has routed to the dead-letter destination. Read-only — this tool never replays dead-lettered messages.",
	}

	mcp.AddTool(s, tool, func(ctx context.Context, req *mcp.CallToolRequest, args deadLetterStatsArgs) (*mcp.CallToolResult, any, error) {
		return jsonResult(map[string]any{"dead_lettered_count": d.DeadLetterCount()})
	})
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(resultJSON)},
		},
	}, nil, nil
}
