package server

import "github.com/zeromicro/go-zero/mcp"

// Config holds the ops surface configuration: an MCP tool server exposing
// operational introspection (rate-limiter stats, queue depth, dead-letter
// counts) and a manual drain trigger, per SPEC_FULL.md's supplemented
// operability surface.
type Config struct {
	mcp.McpConf
}
