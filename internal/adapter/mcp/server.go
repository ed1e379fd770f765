// Package mcp exposes the tool registry over the Model Context Protocol.
// Every tools/call passes the guard pipeline before the handler runs, so
// MCP callers get exactly the same policy treatment as HTTP callers.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/brainstem-ai/brainstem/internal/adapter/otel"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/service"
)

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name    string
	Version string
	// Addr is the listen address for standalone streamable HTTP mode.
	// Leave empty when the server is mounted on an existing router.
	Addr string
	// Caller is the identity attributed to MCP invocations when the
	// transport carries no authentication (stdio, local mounts).
	Caller string
	// APIKey protects the standalone listener. Empty disables the
	// check; the gateway mount authenticates via the shared keyring
	// middleware instead.
	APIKey string
	// CallTimeout bounds a single tool invocation. Zero means no bound
	// beyond the caller's context.
	CallTimeout time.Duration
}

// ToolCatalog is the registry surface the server needs.
type ToolCatalog interface {
	List() []tool.Spec
	Invoke(ctx context.Context, name string, args map[string]any) (*tool.Result, error)
}

// Evaluator is the guard surface: one verdict per invocation.
type Evaluator interface {
	Evaluate(ctx context.Context, req guard.Request) (guard.AuditEntry, error)
}

// AdmissionLimiter gates invocations per caller.
type AdmissionLimiter interface {
	Check(caller string) (remaining int, retryAfter float64, allowed bool)
}

// AuditReader exposes recent guard decisions for the audit resource.
type AuditReader interface {
	AuditLog(ctx context.Context, limit int) ([]guard.AuditEntry, error)
	PendingApprovals() []service.PendingApproval
}

// NodeSnapshotter exposes the known-node view for the nodes resource.
type NodeSnapshotter interface {
	Snapshot(ctx context.Context) ([]node.Info, error)
}

// HealthReader exposes per-provider circuit breaker state.
type HealthReader interface {
	Snapshot() []resilience.ProviderHealth
}

// ServerDeps are the collaborators injected into the server. Nil fields
// degrade gracefully: the affected tool or resource reports an error
// instead of panicking.
type ServerDeps struct {
	Catalog ToolCatalog
	Guard   Evaluator
	Limiter AdmissionLimiter
	Audit   AuditReader
	Nodes   NodeSnapshotter
	Health  HealthReader
	Metrics *otel.Metrics
}

// Server wraps an mcp-go server with the guard-wrapped tool catalog and
// BrainStem observability resources.
type Server struct {
	cfg  ServerConfig
	deps ServerDeps

	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer builds the MCP server and registers all catalog tools and
// resources. Tools present in the catalog at construction time are
// exposed; register tools before creating the server.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	if cfg.Caller == "" {
		cfg.Caller = "planner"
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithResourceCapabilities(true, true),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving streamable HTTP on the configured address. It
// returns immediately; serve errors are logged.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return fmt.Errorf("mcp server: no listen address configured")
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	slog.Info("mcp server listening", "addr", s.cfg.Addr, "auth", s.cfg.APIKey != "")
	return nil
}

// Stop gracefully shuts down the standalone HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns an http.Handler speaking streamable HTTP, for
// mounting on the gateway router.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer, mcpserver.WithStateLess(true))
}

// ServeStdio serves MCP over stdin/stdout and blocks until the peer
// disconnects. Used by the serve command so a planner can spawn the
// gateway as a subprocess.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcpServer)
}
