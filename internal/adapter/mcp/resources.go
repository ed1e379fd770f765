package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers the observability resources: recent guard
// decisions, pending approvals, the node registry view, and provider
// breaker health.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"brainstem://guard/decisions",
			"Guard Decisions",
			mcplib.WithResourceDescription("Most recent guard audit entries"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleDecisionsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"brainstem://guard/approvals",
			"Pending Approvals",
			mcplib.WithResourceDescription("Tool invocations blocked on a human decision"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleApprovalsResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"brainstem://nodes",
			"Node Registry",
			mcplib.WithResourceDescription("Known nodes in the mesh"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleNodesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"brainstem://health",
			"Provider Health",
			mcplib.WithResourceDescription("Per-provider circuit breaker state"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleHealthResource,
	)
}

// decisionsResourceLimit caps how many audit entries a resource read returns.
const decisionsResourceLimit = 100

func (s *Server) handleDecisionsResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Audit == nil {
		return jsonResourceError(req.Params.URI, "audit reader not configured"), nil
	}
	entries, err := s.deps.Audit.AuditLog(ctx, decisionsResourceLimit)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, entries)
}

func (s *Server) handleApprovalsResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Audit == nil {
		return jsonResourceError(req.Params.URI, "audit reader not configured"), nil
	}
	return jsonResource(req.Params.URI, s.deps.Audit.PendingApprovals())
}

func (s *Server) handleNodesResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Nodes == nil {
		return jsonResourceError(req.Params.URI, "node registry not configured"), nil
	}
	nodes, err := s.deps.Nodes.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, nodes)
}

func (s *Server) handleHealthResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Health == nil {
		return jsonResourceError(req.Params.URI, "health tracker not configured"), nil
	}
	return jsonResource(req.Params.URI, s.deps.Health.Snapshot())
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func jsonResourceError(uri, msg string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     `{"error":"` + msg + `"}`,
		},
	}
}
