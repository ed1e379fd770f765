package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	bshttp "github.com/brainstem-ai/brainstem/internal/adapter/http"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/port/observe"
	"github.com/brainstem-ai/brainstem/internal/resilience"
	"github.com/brainstem-ai/brainstem/internal/service"
)

// --- Mocks ---

type mockGuard struct {
	entries  []guard.AuditEntry
	pending  []service.PendingApproval
	resolved map[string]bool
}

func (m *mockGuard) AuditLog(_ context.Context, limit int) ([]guard.AuditEntry, error) {
	if limit > 0 && limit < len(m.entries) {
		return m.entries[len(m.entries)-limit:], nil
	}
	return m.entries, nil
}

func (m *mockGuard) AuditCount(_ context.Context) (int64, error) {
	return int64(len(m.entries)), nil
}

func (m *mockGuard) PendingApprovals() []service.PendingApproval {
	return m.pending
}

func (m *mockGuard) ResolveApproval(id string, approve bool) bool {
	if m.resolved == nil {
		return false
	}
	if _, ok := m.resolved[id]; !ok {
		return false
	}
	m.resolved[id] = approve
	return true
}

type mockNodes struct {
	self     node.Info
	nodes    []node.Info
	accepted int
	rejected int

	lastFilter node.Filter
	lastMerge  []node.Info
}

func (m *mockNodes) Self() node.Info { return m.self }

func (m *mockNodes) Discover(_ context.Context, f node.Filter) ([]node.Info, error) {
	m.lastFilter = f
	out := []node.Info{}
	for _, n := range m.nodes {
		if f.Matches(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *mockNodes) MergeNodes(_ context.Context, remote []node.Info) (int, int, error) {
	m.lastMerge = remote
	return m.accepted, m.rejected, nil
}

type mockHealth struct {
	snap []resilience.ProviderHealth
}

func (m *mockHealth) Snapshot() []resilience.ProviderHealth { return m.snap }

type mockVault struct {
	providers map[string]string
}

func (m *mockVault) Providers() []string {
	out := make([]string, 0, len(m.providers))
	for name := range m.providers {
		out = append(out, name)
	}
	return out
}

func (m *mockVault) Redacted(provider string) string { return m.providers[provider] }

type mockSessions struct {
	sessions []observe.Session
}

func (m *mockSessions) Sessions(_ context.Context) ([]observe.Session, error) {
	return m.sessions, nil
}

func newRouter(h *bshttp.Handlers) http.Handler {
	r := chi.NewRouter()
	bshttp.MountRoutes(r, h)
	return r
}

func doGET(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	return v
}

// --- Tests ---

func TestGetHealth(t *testing.T) {
	router := newRouter(&bshttp.Handlers{
		Nodes:   &mockNodes{self: node.Info{ID: "node-1", Role: node.RoleCore}},
		Version: "0.3.0",
	})

	rec := doGET(t, router, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[map[string]any](t, rec)
	if resp["status"] != "ok" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["node_id"] != "node-1" {
		t.Errorf("node_id = %v", resp["node_id"])
	}
	if resp["version"] != "0.3.0" {
		t.Errorf("version = %v", resp["version"])
	}
}

func TestListProviders(t *testing.T) {
	router := newRouter(&bshttp.Handlers{
		Vault: &mockVault{providers: map[string]string{"openai": "sk***89"}},
	})

	rec := doGET(t, router, "/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	entries := decode[[]map[string]string](t, rec)
	if len(entries) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(entries))
	}
	if entries[0]["name"] != "openai" || entries[0]["secret"] != "sk***89" {
		t.Errorf("unexpected entry: %v", entries[0])
	}
}

func TestProviderHealth(t *testing.T) {
	router := newRouter(&bshttp.Handlers{
		Health: &mockHealth{snap: []resilience.ProviderHealth{
			{Provider: "openai", State: resilience.StateClosed},
			{Provider: "anthropic", State: resilience.StateOpen, Failures: 5},
		}},
	})

	rec := doGET(t, router, "/health/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	snap := decode[[]resilience.ProviderHealth](t, rec)
	if len(snap) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(snap))
	}
}

func TestProviderHealthEmptyWithoutTracker(t *testing.T) {
	rec := doGET(t, newRouter(&bshttp.Handlers{}), "/health/providers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("body = %q, want empty array", body)
	}
}

func TestListNodesWithFilter(t *testing.T) {
	nodes := &mockNodes{nodes: []node.Info{
		{ID: "edge-1", Role: node.RoleEdge, Trust: node.TierStandard},
		{ID: "core-1", Role: node.RoleCore, Trust: node.TierTrusted},
	}}
	router := newRouter(&bshttp.Handlers{Nodes: nodes})

	rec := doGET(t, router, "/registry/nodes?role=core&min_trust=trusted")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[[]node.Info](t, rec)
	if len(got) != 1 || got[0].ID != "core-1" {
		t.Errorf("filtered nodes = %v", got)
	}
	if nodes.lastFilter.Role != node.RoleCore {
		t.Errorf("filter role = %q", nodes.lastFilter.Role)
	}
}

func TestSyncNodes(t *testing.T) {
	nodes := &mockNodes{accepted: 2, rejected: 1}
	router := newRouter(&bshttp.Handlers{Nodes: nodes})

	body := map[string]any{"nodes": []node.Info{
		{ID: "a", Role: node.RoleEdge, Trust: node.TierUntrusted, LastSeen: time.Now()},
		{ID: "b", Role: node.RoleCore, Trust: node.TierTrusted, LastSeen: time.Now()},
	}}
	rec := doJSON(t, router, http.MethodPost, "/registry/sync", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decode[map[string]int](t, rec)
	if resp["accepted"] != 2 || resp["rejected"] != 1 {
		t.Errorf("sync response = %v", resp)
	}
	if len(nodes.lastMerge) != 2 {
		t.Errorf("merged %d nodes, want 2", len(nodes.lastMerge))
	}
}

func TestSyncNodesRejectsInvalidBody(t *testing.T) {
	router := newRouter(&bshttp.Handlers{Nodes: &mockNodes{}})

	req := httptest.NewRequest(http.MethodPost, "/registry/sync", bytes.NewReader([]byte("not-json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetNodeCard(t *testing.T) {
	self := node.Info{
		ID:           "node-1",
		Role:         node.RoleCore,
		Trust:        node.TierTrusted,
		Capabilities: []string{"echo", "shell_exec"},
		Endpoints:    []node.Endpoint{{Protocol: "http", Address: "http://localhost:8080"}},
	}
	router := newRouter(&bshttp.Handlers{Nodes: &mockNodes{self: self}})

	rec := doGET(t, router, "/.well-known/node.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	card := decode[node.Info](t, rec)
	if card.ID != "node-1" || len(card.Capabilities) != 2 {
		t.Errorf("card = %+v", card)
	}
}

func TestListDecisions(t *testing.T) {
	g := &mockGuard{entries: []guard.AuditEntry{
		{ID: "e1", Tool: "echo", Decision: guard.DecisionAllow},
		{ID: "e2", Tool: "shell_exec", Decision: guard.DecisionDeny, Risk: guard.RiskHigh},
	}}
	router := newRouter(&bshttp.Handlers{Guard: g})

	rec := doGET(t, router, "/guard/decisions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decode[struct {
		Entries []guard.AuditEntry `json:"entries"`
		Total   int64              `json:"total"`
	}](t, rec)
	if len(resp.Entries) != 2 || resp.Total != 2 {
		t.Errorf("entries = %d, total = %d", len(resp.Entries), resp.Total)
	}
}

func TestListDecisionsLimit(t *testing.T) {
	g := &mockGuard{entries: []guard.AuditEntry{
		{ID: "e1"}, {ID: "e2"}, {ID: "e3"},
	}}
	router := newRouter(&bshttp.Handlers{Guard: g})

	rec := doGET(t, router, "/guard/decisions?limit=2")
	resp := decode[struct {
		Entries []guard.AuditEntry `json:"entries"`
		Total   int64              `json:"total"`
	}](t, rec)
	if len(resp.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(resp.Entries))
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}

	rec = doGET(t, router, "/guard/decisions?limit=nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", rec.Code)
	}
}

func TestApprovalFlow(t *testing.T) {
	g := &mockGuard{
		pending: []service.PendingApproval{
			{ID: "ap-1", Tool: "shell_exec", Risk: guard.RiskCritical},
		},
		resolved: map[string]bool{"ap-1": false},
	}
	router := newRouter(&bshttp.Handlers{Guard: g})

	rec := doGET(t, router, "/guard/approvals")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	pending := decode[[]service.PendingApproval](t, rec)
	if len(pending) != 1 || pending[0].ID != "ap-1" {
		t.Fatalf("pending = %v", pending)
	}

	rec = doJSON(t, router, http.MethodPost, "/guard/approvals/ap-1", map[string]bool{"approve": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d", rec.Code)
	}
	if !g.resolved["ap-1"] {
		t.Error("approval was not recorded")
	}

	rec = doJSON(t, router, http.MethodPost, "/guard/approvals/ghost", map[string]bool{"approve": true})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown approval: status = %d, want 404", rec.Code)
	}
}

func TestListSessions(t *testing.T) {
	// Without a provider the endpoint degrades to an empty list.
	rec := doGET(t, newRouter(&bshttp.Handlers{}), "/sessions")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("no provider: status = %d, body = %q", rec.Code, rec.Body.String())
	}

	router := newRouter(&bshttp.Handlers{
		Sessions: &mockSessions{sessions: []observe.Session{{ID: "s1", Caller: "planner"}}},
	})
	rec = doGET(t, router, "/sessions")
	sessions := decode[[]observe.Session](t, rec)
	if len(sessions) != 1 || sessions[0].ID != "s1" {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestMemoryTiersEmptyWithoutProvider(t *testing.T) {
	rec := doGET(t, newRouter(&bshttp.Handlers{}), "/memory/tiers")
	if rec.Code != http.StatusOK || rec.Body.String() != "[]\n" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}
