package mcp

import (
	"context"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
	"github.com/brainstem-ai/brainstem/internal/middleware"
)

// registerTools exposes every catalog tool over MCP, wrapped in the
// admission and guard pipeline.
func (s *Server) registerTools() {
	if s.deps.Catalog == nil {
		return
	}
	specs := s.deps.Catalog.List()
	tools := make([]mcpserver.ServerTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, mcpserver.ServerTool{
			Tool:    mcplib.NewToolWithRawSchema(spec.Name, spec.Description, spec.InputSchema),
			Handler: s.toolHandler(spec),
		})
	}
	s.mcpServer.AddTools(tools...)
}

// toolHandler wraps one catalog tool in the full invocation pipeline:
// rate limit, guard evaluation, then schema-validated dispatch. Policy
// rejections surface as tool-level error results, not protocol errors,
// so callers see the reason.
func (s *Server) toolHandler(spec tool.Spec) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
		// On the gateway mount the auth middleware has already resolved
		// the caller; fall back to the configured identity for stdio
		// and unauthenticated transports.
		caller := middleware.CallerFromContext(ctx)
		if caller == "" {
			caller = s.cfg.Caller
		}
		args := req.GetArguments()
		start := time.Now()

		if s.deps.Limiter != nil {
			if _, retryAfter, allowed := s.deps.Limiter.Check(caller); !allowed {
				if s.deps.Metrics != nil {
					s.deps.Metrics.RateLimited.Add(ctx, 1,
						metric.WithAttributes(attribute.String("tool", spec.Name)))
				}
				return mcplib.NewToolResultError(
					"rate limit exceeded, retry after " + formatSeconds(retryAfter)), nil
			}
		}

		if s.deps.Guard != nil {
			entry, err := s.deps.Guard.Evaluate(ctx, requestFor(spec, caller, args))
			if s.deps.Metrics != nil {
				s.deps.Metrics.GuardDecisions.Add(ctx, 1, metric.WithAttributes(
					attribute.String("decision", string(entry.Decision)),
					attribute.String("tool", spec.Name),
				))
			}
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
		}

		callCtx := ctx
		if s.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
			defer cancel()
		}

		res, err := s.deps.Catalog.Invoke(callCtx, spec.Name, args)
		if s.deps.Metrics != nil {
			attrs := metric.WithAttributes(attribute.String("tool", spec.Name))
			s.deps.Metrics.ToolCalls.Add(ctx, 1, attrs)
			s.deps.Metrics.ToolCallDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			if err != nil || (res != nil && res.IsError) {
				s.deps.Metrics.ToolCallErrors.Add(ctx, 1, attrs)
			}
		}
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		return toCallToolResult(res), nil
	}
}

// requestFor reduces an invocation to a guard request, lifting the
// conventional cmd/command and path arguments so rules can scope on them.
func requestFor(spec tool.Spec, caller string, args map[string]any) guard.Request {
	req := guard.Request{
		Tool:     spec.Name,
		Caller:   caller,
		Access:   spec.Access,
		RiskHint: spec.BaseRisk,
	}
	if cmd, ok := args["cmd"].(string); ok && cmd != "" {
		req.Command = cmd
	} else if cmd, ok := args["command"].(string); ok {
		req.Command = cmd
	}
	if path, ok := args["path"].(string); ok {
		req.Path = path
	}
	return req
}

// toCallToolResult converts a transport-independent tool result into the
// MCP wire form.
func toCallToolResult(res *tool.Result) *mcplib.CallToolResult {
	if res == nil {
		return mcplib.NewToolResultText("")
	}
	out := &mcplib.CallToolResult{IsError: res.IsError}
	for _, c := range res.Content {
		out.Content = append(out.Content, mcplib.TextContent{Type: "text", Text: c.Text})
	}
	if len(out.Content) == 0 {
		out.Content = []mcplib.Content{mcplib.TextContent{Type: "text", Text: ""}}
	}
	return out
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second))
	if d < time.Second {
		d = time.Second
	}
	return d.Round(time.Second).String()
}
