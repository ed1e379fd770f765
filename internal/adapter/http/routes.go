package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the gateway API on the given chi router. The
// protocol endpoint and the WebSocket feed are mounted only when their
// handlers are configured.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.GetHealth)
	r.Get("/.well-known/node.json", h.GetNodeCard)

	r.Get("/providers", h.ListProviders)
	r.Get("/health/providers", h.ProviderHealth)

	r.Get("/registry/nodes", h.ListNodes)
	r.Post("/registry/sync", h.SyncNodes)

	r.Get("/guard/decisions", h.ListDecisions)
	r.Get("/guard/approvals", h.ListApprovals)
	r.Post("/guard/approvals/{id}", h.ResolveApproval)

	r.Get("/sessions", h.ListSessions)
	r.Get("/memory/tiers", h.MemoryTierCounts)

	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}
	if h.MCP != nil {
		// Streamable HTTP speaks GET and DELETE as well as POST.
		r.Handle("/mcp", h.MCP)
	}
}
