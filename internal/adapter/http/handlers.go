package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/brainstem-ai/brainstem/internal/adapter/ws"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/port/observe"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// GuardAPI is the guard surface the handlers need.
type GuardAPI interface {
	AuditLog(ctx context.Context, limit int) ([]guard.AuditEntry, error)
	AuditCount(ctx context.Context) (int64, error)
	PendingApprovals() []service.PendingApproval
	ResolveApproval(id string, approve bool) bool
}

// NodeAPI is the node registry surface the handlers need.
type NodeAPI interface {
	Self() node.Info
	Discover(ctx context.Context, f node.Filter) ([]node.Info, error)
	MergeNodes(ctx context.Context, remote []node.Info) (accepted, rejected int, err error)
}

// HealthAPI exposes per-provider circuit state.
type HealthAPI interface {
	Snapshot() []resilience.ProviderHealth
}

// VaultAPI exposes the credential catalog, never the secrets.
type VaultAPI interface {
	Providers() []string
	Redacted(provider string) string
}

// Handlers carries the collaborators behind the HTTP surface. Sessions
// and Memory are optional providers; endpoints backed by a nil field
// return empty results.
type Handlers struct {
	Guard    GuardAPI
	Nodes    NodeAPI
	Health   HealthAPI
	Vault    VaultAPI
	Sessions observe.SessionLister
	Memory   observe.MemoryTiers
	Hub      *ws.Hub
	MCP      http.Handler
	Version  string
}

// ---------------------------------------------------------------------------
// Health and providers
// ---------------------------------------------------------------------------

type healthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	NodeID      string `json:"node_id,omitempty"`
	Connections int    `json:"ws_connections"`
	Time        string `json:"time"`
}

// GetHealth reports liveness plus basic gateway identity.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: h.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if h.Nodes != nil {
		resp.NodeID = h.Nodes.Self().ID
	}
	if h.Hub != nil {
		resp.Connections = h.Hub.ConnectionCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

type providerEntry struct {
	Name   string `json:"name"`
	Secret string `json:"secret"` // redacted preview, never the raw value
}

// ListProviders returns the providers with vault credentials, with
// redacted secret previews.
func (h *Handlers) ListProviders(w http.ResponseWriter, _ *http.Request) {
	out := []providerEntry{}
	if h.Vault != nil {
		for _, name := range h.Vault.Providers() {
			out = append(out, providerEntry{Name: name, Secret: h.Vault.Redacted(name)})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// ProviderHealth returns the circuit breaker snapshot per provider.
func (h *Handlers) ProviderHealth(w http.ResponseWriter, _ *http.Request) {
	if h.Health == nil {
		writeJSON(w, http.StatusOK, []resilience.ProviderHealth{})
		return
	}
	snap := h.Health.Snapshot()
	if snap == nil {
		snap = []resilience.ProviderHealth{}
	}
	writeJSON(w, http.StatusOK, snap)
}

// ---------------------------------------------------------------------------
// Node registry
// ---------------------------------------------------------------------------

// ListNodes returns known nodes, optionally filtered by role, minimum
// trust tier, and capability query parameters.
func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	if h.Nodes == nil {
		writeError(w, http.StatusServiceUnavailable, "node registry unavailable")
		return
	}
	f := node.Filter{
		Role:       node.Role(r.URL.Query().Get("role")),
		MinTrust:   node.TrustTier(r.URL.Query().Get("min_trust")),
		Capability: r.URL.Query().Get("capability"),
	}
	nodes, err := h.Nodes.Discover(r.Context(), f)
	if err != nil {
		writeDomainError(w, err, "node discovery failed")
		return
	}
	if nodes == nil {
		nodes = []node.Info{}
	}
	writeJSON(w, http.StatusOK, nodes)
}

type syncRequest struct {
	Nodes []node.Info `json:"nodes"`
}

type syncResponse struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

// SyncNodes merges a peer's registry snapshot under last-writer-wins
// and reports how many records were accepted.
func (h *Handlers) SyncNodes(w http.ResponseWriter, r *http.Request) {
	if h.Nodes == nil {
		writeError(w, http.StatusServiceUnavailable, "node registry unavailable")
		return
	}
	req, ok := readJSON[syncRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	accepted, rejected, err := h.Nodes.MergeNodes(r.Context(), req.Nodes)
	if err != nil {
		writeDomainError(w, err, "registry sync failed")
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Accepted: accepted, Rejected: rejected})
}

// GetNodeCard advertises this node's identity, a la agent cards: role,
// trust tier, capabilities, and reachable endpoints.
func (h *Handlers) GetNodeCard(w http.ResponseWriter, _ *http.Request) {
	if h.Nodes == nil {
		writeError(w, http.StatusServiceUnavailable, "node registry unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.Nodes.Self())
}

// ---------------------------------------------------------------------------
// Guard observability
// ---------------------------------------------------------------------------

const (
	defaultDecisionLimit = 100
	maxDecisionLimit     = 1000
)

type decisionsResponse struct {
	Entries []guard.AuditEntry `json:"entries"`
	Total   int64              `json:"total"`
}

// ListDecisions returns the most recent guard audit entries, newest
// last, bounded by the limit query parameter.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	if h.Guard == nil {
		writeError(w, http.StatusServiceUnavailable, "guard unavailable")
		return
	}
	limit := defaultDecisionLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDecisionLimit)
	}

	entries, err := h.Guard.AuditLog(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if entries == nil {
		entries = []guard.AuditEntry{}
	}
	total, err := h.Guard.AuditCount(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionsResponse{Entries: entries, Total: total})
}

// ListApprovals returns invocations currently blocked on a human
// decision, oldest first.
func (h *Handlers) ListApprovals(w http.ResponseWriter, _ *http.Request) {
	if h.Guard == nil {
		writeError(w, http.StatusServiceUnavailable, "guard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, h.Guard.PendingApprovals())
}

type approvalRequest struct {
	Approve bool `json:"approve"`
}

// ResolveApproval approves or denies a pending invocation by id.
func (h *Handlers) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	if h.Guard == nil {
		writeError(w, http.StatusServiceUnavailable, "guard unavailable")
		return
	}
	id := urlParam(r, "id")
	req, ok := readJSON[approvalRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	if !h.Guard.ResolveApproval(id, req.Approve) {
		writeError(w, http.StatusNotFound, "no pending approval with that id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": req.Approve})
}

// ---------------------------------------------------------------------------
// Optional providers
// ---------------------------------------------------------------------------

// ListSessions returns active planner sessions, or an empty list when
// no session provider is plugged in.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil {
		writeJSON(w, http.StatusOK, []observe.Session{})
		return
	}
	sessions, err := h.Sessions.Sessions(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if sessions == nil {
		sessions = []observe.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// MemoryTierCounts returns per-tier memory entry counts, or an empty
// list when no memory provider is plugged in.
func (h *Handlers) MemoryTierCounts(w http.ResponseWriter, r *http.Request) {
	if h.Memory == nil {
		writeJSON(w, http.StatusOK, []observe.TierCount{})
		return
	}
	counts, err := h.Memory.TierCounts(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if counts == nil {
		counts = []observe.TierCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}
