package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/mcp"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/relaycore/bulkmailer/internal/drainer"
	"github.com/relaycore/bulkmailer/internal/errorx"
	"github.com/relaycore/bulkmailer/internal/queueadapter"
	"github.com/relaycore/bulkmailer/internal/ratelimit"
)

// Server wraps the ops REST surface (health + Prometheus metrics) and the
// ops MCP tool server, the operational counterpart to the Drainer service
// that actually moves mail.
type Server struct {
	config Config
	rest   *rest.Server
	mcp    mcp.McpServer
}

// New creates the ops Server. restConf configures the plain HTTP surface;
// c configures the MCP tool surface.
func New(c Config, restConf rest.RestConf, limiter *ratelimit.Limiter, adapter queueadapter.Adapter, d *drainer.Drainer) (*Server, error) {
	mcpServer := mcp.NewMcpServer(c.McpConf)
	RegisterMCPTools(mcpServer, limiter, adapter, d)

	restServer := rest.MustNewServer(restConf)
	restServer.AddRoute(rest.Route{
		Method: http.MethodGet,
		Path:   "/healthz",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ok"))
		},
	})
	restServer.AddRoute(rest.Route{
		Method:  http.MethodGet,
		Path:    "/metrics",
		Handler: promhttp.Handler().ServeHTTP,
	})
	restServer.AddRoute(rest.Route{
		Method:  http.MethodGet,
		Path:    "/queue/depth",
		Handler: queueDepthHandler(adapter),
	})

	return &Server{config: c, rest: restServer, mcp: mcpServer}, nil
}

// Start starts the REST and MCP surfaces. Intended to be run in its own
// goroutine by the caller (service.ServiceGroup handles this).
func (s *Server) Start() {
	go s.rest.Start()
	s.mcp.Start()
}

// Stop stops both surfaces.
func (s *Server) Stop() {
	s.rest.Stop()
	s.mcp.Stop()
}

// queueDepthHandler is the REST counterpart to the get_queue_depth MCP tool,
// for operators scraping over plain HTTP instead of MCP.
func queueDepthHandler(adapter queueadapter.Adapter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reporter, ok := adapter.(queueadapter.DepthReporter)
		if !ok {
			httpx.ErrorCtx(r.Context(), w, errorx.ErrNotFound("queue backend does not support depth reporting"))
			return
		}
		depth, err := reporter.QueueDepth(r.Context())
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, errorx.ErrInternal(err.Error()))
			return
		}
		httpx.OkJsonCtx(r.Context(), w, map[string]any{"depth": depth})
	}
}
