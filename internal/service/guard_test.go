package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
)

// fakeStore is an in-memory database.Store for service tests.
type fakeStore struct {
	mu    sync.Mutex
	audit []guard.AuditEntry
	nodes map[string]node.Info

	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{nodes: map[string]node.Info{}}
}

func (f *fakeStore) AppendAudit(_ context.Context, entry guard.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, limit int) ([]guard.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.audit
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	cp := make([]guard.AuditEntry, len(out))
	copy(cp, out)
	return cp, nil
}

func (f *fakeStore) CountAudit(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.audit)), nil
}

func (f *fakeStore) UpsertNode(_ context.Context, n node.Info) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.ID] = n
	return nil
}

func (f *fakeStore) GetNode(_ context.Context, id string) (*node.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	cp := n
	return &cp, nil
}

func (f *fakeStore) ListNodes(_ context.Context) ([]node.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]node.Info, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) DeleteNode(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[id]; !ok {
		return fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	delete(f.nodes, id)
	return nil
}

func newTestGuard(t *testing.T, cfg GuardConfig) (*GuardService, *fakeStore) {
	t.Helper()
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = t.TempDir()
	}
	store := newFakeStore()
	svc, err := NewGuardService(cfg, store, nil)
	if err != nil {
		t.Fatalf("NewGuardService: %v", err)
	}
	return svc, store
}

func TestEvaluateAllowsLowRiskTool(t *testing.T) {
	svc, store := newTestGuard(t, GuardConfig{Profile: "core-safe"})

	entry, err := svc.Evaluate(context.Background(), guard.Request{Tool: "echo", Caller: "local"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if entry.Decision != guard.DecisionAllow {
		t.Fatalf("decision = %s, want allow", entry.Decision)
	}
	if entry.Risk != guard.RiskLow {
		t.Fatalf("risk = %s, want low", entry.Risk)
	}
	if n, _ := store.CountAudit(context.Background()); n != 1 {
		t.Fatalf("audit entries = %d, want 1", n)
	}
}

func TestEvaluateSandboxDeniesNetworkCommand(t *testing.T) {
	svc, store := newTestGuard(t, GuardConfig{Profile: "core-safe"})

	req := guard.Request{
		Tool:    "shell_exec",
		Caller:  "edge-7",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "curl evil.com",
	}
	entry, err := svc.Evaluate(context.Background(), req)
	if !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied", err)
	}
	if entry.Decision != guard.DecisionDeny {
		t.Fatalf("decision = %s, want deny", entry.Decision)
	}
	if !entry.Risk.AtLeast(guard.RiskHigh) {
		t.Fatalf("risk = %s, want >= high", entry.Risk)
	}

	entries, _ := store.ListAudit(context.Background(), 0)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(entries))
	}
}

func TestEvaluateAllowlistedCommandDowngradesRisk(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{Profile: "core-safe"})

	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "local",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "git status",
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if entry.Decision != guard.DecisionAllow {
		t.Fatalf("decision = %s, want allow", entry.Decision)
	}
	if entry.Risk != guard.RiskMedium {
		t.Fatalf("risk = %s, want medium (downgraded from high)", entry.Risk)
	}
}

func TestEvaluateUnmatchedHighRiskRequiresApproval(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{Profile: "core-safe", ApprovalTimeout: 30 * time.Millisecond})

	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "local",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "rm -rf build",
	})
	if !errors.Is(err, domain.ErrApprovalTimeout) {
		t.Fatalf("err = %v, want ErrApprovalTimeout", err)
	}
	if entry.Decision != guard.DecisionRequireApproval {
		t.Fatalf("decision = %s, want require_approval", entry.Decision)
	}
	if entry.Approval != guard.ApprovalTimeout {
		t.Fatalf("approval = %s, want timeout", entry.Approval)
	}
}

func TestEvaluateApprovalApproved(t *testing.T) {
	svc, store := newTestGuard(t, GuardConfig{Profile: "core-safe", ApprovalTimeout: 2 * time.Second})

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if pending := svc.PendingApprovals(); len(pending) == 1 {
				svc.ResolveApproval(pending[0].ID, true)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "local",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "make deploy",
	})
	if err != nil {
		t.Fatalf("Evaluate after approval: %v", err)
	}
	if entry.Approval != guard.ApprovalApproved {
		t.Fatalf("approval = %s, want approved", entry.Approval)
	}

	// The resolved approval is recorded on the same single entry.
	entries, _ := store.ListAudit(context.Background(), 0)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want exactly 1", len(entries))
	}
	if entries[0].Approval != guard.ApprovalApproved {
		t.Fatalf("stored approval = %s, want approved", entries[0].Approval)
	}
}

func TestEvaluateApprovalDenied(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{Profile: "core-safe", ApprovalTimeout: 2 * time.Second})

	go func() {
		deadline := time.Now().Add(time.Second)
		for time.Now().Before(deadline) {
			if pending := svc.PendingApprovals(); len(pending) == 1 {
				svc.ResolveApproval(pending[0].ID, false)
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "local",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "make deploy",
	})
	if !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied", err)
	}
	if entry.Approval != guard.ApprovalDenied {
		t.Fatalf("approval = %s, want denied", entry.Approval)
	}
}

func TestResolveApprovalUnknownID(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{Profile: "core-safe"})

	if svc.ResolveApproval("no-such-id", true) {
		t.Fatal("resolving unknown approval should return false")
	}
}

func TestEvaluateCriticalAlwaysRequiresApproval(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{
		Profile:         "brain-trusted",
		ApprovalTimeout: 30 * time.Millisecond,
		RiskOverrides:   map[string]guard.RiskLevel{"shell_exec": guard.RiskCritical},
	})

	// brain-trusted allows shell_exec by rule, but critical risk still
	// escalates to approval.
	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "brain-1",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "systemctl restart motors",
	})
	if !errors.Is(err, domain.ErrApprovalTimeout) {
		t.Fatalf("err = %v, want ErrApprovalTimeout", err)
	}
	if entry.Decision != guard.DecisionRequireApproval {
		t.Fatalf("decision = %s, want require_approval", entry.Decision)
	}
	if entry.Risk != guard.RiskCritical {
		t.Fatalf("risk = %s, want critical", entry.Risk)
	}
}

func TestAuditEntryCountMatchesEvaluations(t *testing.T) {
	svc, store := newTestGuard(t, GuardConfig{Profile: "core-safe", ApprovalTimeout: 20 * time.Millisecond})

	requests := []guard.Request{
		{Tool: "echo", Caller: "local"},
		{Tool: "shell_exec", Caller: "local", Access: []guard.AccessKind{guard.AccessCommand}, Command: "curl x.com"},
		{Tool: "shell_exec", Caller: "local", Access: []guard.AccessKind{guard.AccessCommand}, Command: "ls"},
		{Tool: "shell_exec", Caller: "local", Access: []guard.AccessKind{guard.AccessCommand}, Command: "rm -rf /"},
		{Tool: "sense", Caller: "edge-7"},
	}
	for _, req := range requests {
		svc.Evaluate(context.Background(), req)
	}

	if n, _ := store.CountAudit(context.Background()); n != int64(len(requests)) {
		t.Fatalf("audit entries = %d, want %d (one per evaluation)", n, len(requests))
	}
}

func TestEvaluateFailsClosedWhenAuditUnavailable(t *testing.T) {
	svc, store := newTestGuard(t, GuardConfig{Profile: "core-safe"})
	store.mu.Lock()
	store.appendErr = errors.New("disk full")
	store.mu.Unlock()

	_, err := svc.Evaluate(context.Background(), guard.Request{Tool: "echo", Caller: "local"})
	if err == nil {
		t.Fatal("expected error when the audit log cannot be written")
	}
}

func TestUseProfileUnknown(t *testing.T) {
	svc, _ := newTestGuard(t, GuardConfig{Profile: "core-safe"})

	if err := svc.UseProfile("no-such-profile"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRulesDirProfileOverlay(t *testing.T) {
	dir := t.TempDir()
	profileYAML := `name: field-ops
description: Custom profile for field operations.
sandbox: [net]
rules:
  - specifier: {tool: "*"}
    decision: allow
`
	if err := os.WriteFile(filepath.Join(dir, "field-ops.yaml"), []byte(profileYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, _ := newTestGuard(t, GuardConfig{Profile: "field-ops", RulesDir: dir})

	if got := svc.ActiveProfile().Name; got != "field-ops" {
		t.Fatalf("active profile = %q, want field-ops", got)
	}

	// Custom profile allows network commands that core-safe would deny.
	entry, err := svc.Evaluate(context.Background(), guard.Request{
		Tool:    "shell_exec",
		Caller:  "local",
		Access:  []guard.AccessKind{guard.AccessCommand},
		Command: "curl http://base-station/status",
	})
	if err != nil {
		t.Fatalf("Evaluate under field-ops: %v", err)
	}
	if entry.Decision != guard.DecisionAllow {
		t.Fatalf("decision = %s, want allow", entry.Decision)
	}

	// Presets remain available alongside the overlay.
	names := map[string]bool{}
	for _, p := range svc.Profiles() {
		names[p.Name] = true
	}
	for _, want := range []string{"core-safe", "edge-readonly", "brain-trusted", "field-ops"} {
		if !names[want] {
			t.Errorf("profile %q missing after overlay", want)
		}
	}
}

func TestReloadRulesPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ops.yaml")
	write := func(decision string) {
		t.Helper()
		content := fmt.Sprintf(`name: ops
sandbox: [net]
rules:
  - specifier: {tool: "echo"}
    decision: %s
`, decision)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("allow")
	svc, _ := newTestGuard(t, GuardConfig{Profile: "ops", RulesDir: dir})

	if _, err := svc.Evaluate(context.Background(), guard.Request{Tool: "echo", Caller: "local"}); err != nil {
		t.Fatalf("echo should be allowed before reload: %v", err)
	}

	write("deny")
	if err := svc.ReloadRules(); err != nil {
		t.Fatalf("ReloadRules: %v", err)
	}

	if _, err := svc.Evaluate(context.Background(), guard.Request{Tool: "echo", Caller: "local"}); !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("err = %v, want ErrDenied after reload", err)
	}
}

func TestRequestForMapsArguments(t *testing.T) {
	defs := Builtins(BuiltinDeps{})
	var shellSpec, fileSpec *guard.Request
	for _, def := range defs {
		switch def.Spec.Name {
		case "shell_exec":
			req := RequestFor(def.Spec, "edge-7", map[string]any{"cmd": "ls -la"})
			shellSpec = &req
		case "file_write":
			req := RequestFor(def.Spec, "edge-7", map[string]any{"path": "/etc/passwd", "content": "x"})
			fileSpec = &req
		}
	}

	if shellSpec == nil || fileSpec == nil {
		t.Fatal("builtin specs missing")
	}
	if shellSpec.Command != "ls -la" {
		t.Fatalf("command = %q", shellSpec.Command)
	}
	if shellSpec.Caller != "edge-7" {
		t.Fatalf("caller = %q", shellSpec.Caller)
	}
	if len(shellSpec.Access) != 1 || shellSpec.Access[0] != guard.AccessCommand {
		t.Fatalf("access = %v", shellSpec.Access)
	}
	if fileSpec.Path != "/etc/passwd" {
		t.Fatalf("path = %q", fileSpec.Path)
	}
}
