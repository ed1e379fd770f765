package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/brainstem-ai/brainstem/internal/adapter/ws"
	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/tool"
	"github.com/brainstem-ai/brainstem/internal/port/broadcast"
	"github.com/brainstem-ai/brainstem/internal/port/database"
	"github.com/brainstem-ai/brainstem/internal/sandbox"
)

// GuardConfig configures the guard engine.
type GuardConfig struct {
	// Profile is the active guard profile name. Defaults to "core-safe".
	Profile string
	// RulesDir holds additional YAML profiles loaded over the presets.
	RulesDir string
	// ScratchDir is where scratch_fs-confined writes must land.
	ScratchDir string
	// ApprovalTimeout bounds how long an invocation may block on a
	// human decision. Defaults to 60 seconds.
	ApprovalTimeout time.Duration
	// RiskOverrides pins per-tool risk levels over the access-kind
	// baseline.
	RiskOverrides map[string]guard.RiskLevel
}

// GuardService is the decision point every tool invocation passes
// through: sandbox check, risk classification, profile rules, optional
// human approval, and exactly one audit entry per evaluation.
type GuardService struct {
	store           database.Store
	hub             broadcast.Broadcaster
	risk            guard.RiskTable
	approvalTimeout time.Duration
	scratchDir      string
	rulesDir        string
	now             func() time.Time

	mu       sync.RWMutex
	profiles map[string]guard.Profile
	active   guard.Profile
	box      *sandbox.Sandbox

	pendingMu sync.Mutex
	pending   map[string]*pendingApproval
}

// PendingApproval describes one invocation blocked on a human decision.
type PendingApproval struct {
	ID          string          `json:"id"`
	Caller      string          `json:"caller"`
	Tool        string          `json:"tool"`
	Command     string          `json:"command,omitempty"`
	Path        string          `json:"path,omitempty"`
	Risk        guard.RiskLevel `json:"risk"`
	Reason      string          `json:"reason,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
}

type pendingApproval struct {
	info PendingApproval
	ch   chan bool
}

// NewGuardService builds the guard engine with the three preset
// profiles plus any YAML profiles found under cfg.RulesDir, and
// activates cfg.Profile.
func NewGuardService(cfg GuardConfig, store database.Store, hub broadcast.Broadcaster) (*GuardService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: guard requires an audit store", domain.ErrValidation)
	}
	if cfg.Profile == "" {
		cfg.Profile = "core-safe"
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 60 * time.Second
	}

	s := &GuardService{
		store:           store,
		hub:             hub,
		risk:            guard.RiskTable{Tools: cfg.RiskOverrides},
		approvalTimeout: cfg.ApprovalTimeout,
		scratchDir:      cfg.ScratchDir,
		rulesDir:        cfg.RulesDir,
		now:             time.Now,
		profiles:        map[string]guard.Profile{},
		pending:         map[string]*pendingApproval{},
	}

	if err := s.loadProfiles(); err != nil {
		return nil, err
	}
	if err := s.UseProfile(cfg.Profile); err != nil {
		return nil, err
	}
	return s, nil
}

// loadProfiles rebuilds the profile set: presets first, rules-dir
// profiles overlaid by name.
func (s *GuardService) loadProfiles() error {
	profiles := map[string]guard.Profile{}
	for _, name := range guard.PresetNames() {
		p, _ := guard.PresetByName(name)
		profiles[name] = p
	}

	if s.rulesDir != "" {
		loaded, err := guard.LoadFromDirectory(s.rulesDir)
		if err != nil {
			return fmt.Errorf("load guard profiles: %w", err)
		}
		for _, p := range loaded {
			profiles[p.Name] = p
		}
	}

	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

// UseProfile activates a profile by name and rebuilds the sandbox from
// its declared access profiles.
func (s *GuardService) UseProfile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[name]
	if !ok {
		return fmt.Errorf("%w: guard profile %q", domain.ErrNotFound, name)
	}
	boxProfiles, err := sandbox.ParseAll(p.Sandbox)
	if err != nil {
		return fmt.Errorf("profile %q: %w", name, err)
	}

	s.active = p
	s.box = sandbox.New(s.scratchDir, boxProfiles...)
	slog.Info("guard profile activated", "profile", name, "sandbox", p.Sandbox)
	return nil
}

// Sandbox returns the sandbox built from the active profile. Tools that
// enforce path confinement themselves share this instance.
func (s *GuardService) Sandbox() *sandbox.Sandbox {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.box
}

// ActiveProfile returns the profile currently governing evaluations.
func (s *GuardService) ActiveProfile() guard.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Profiles lists all loaded profiles sorted by name.
func (s *GuardService) Profiles() []guard.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]guard.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReloadRules re-reads the rules directory over the presets. The active
// profile is re-resolved by name so edits to it take effect; if it
// disappeared the previous set is kept.
func (s *GuardService) ReloadRules() error {
	s.mu.RLock()
	activeName := s.active.Name
	old := s.profiles
	s.mu.RUnlock()

	if err := s.loadProfiles(); err != nil {
		return err
	}
	if err := s.UseProfile(activeName); err != nil {
		s.mu.Lock()
		s.profiles = old
		s.mu.Unlock()
		return fmt.Errorf("reload dropped active profile %q: %w", activeName, err)
	}
	return nil
}

// WatchRules reloads profiles whenever a YAML file in the rules
// directory changes. Returns immediately; the watcher stops when ctx is
// cancelled. No-op without a rules directory.
func (s *GuardService) WatchRules(ctx context.Context) error {
	if s.rulesDir == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch guard rules: %w", err)
	}
	if err := watcher.Add(s.rulesDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch guard rules %s: %w", s.rulesDir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				ext := strings.ToLower(filepath.Ext(ev.Name))
				if ext != ".yaml" && ext != ".yml" {
					continue
				}
				if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				if err := s.ReloadRules(); err != nil {
					slog.Error("reload guard rules", "file", ev.Name, "error", err)
					continue
				}
				slog.Info("guard rules reloaded", "file", ev.Name)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("guard rules watcher", "error", err)
			}
		}
	}()
	return nil
}

// RequestFor reduces one tool invocation to a guard request. The
// command and path details come from the conventional argument names so
// rules can scope on them.
func RequestFor(spec tool.Spec, caller string, args map[string]any) guard.Request {
	req := guard.Request{
		Tool:     spec.Name,
		Caller:   caller,
		Access:   spec.Access,
		RiskHint: spec.BaseRisk,
	}
	if cmd := stringArg(args, "cmd"); cmd != "" {
		req.Command = cmd
	} else {
		req.Command = stringArg(args, "command")
	}
	req.Path = stringArg(args, "path")
	return req
}

// Evaluate runs the full guard pipeline for one invocation and appends
// exactly one audit entry recording the outcome. A nil error means the
// invocation may proceed; denied, approval-denied, and approval-timeout
// outcomes return sentinel-wrapped errors.
func (s *GuardService) Evaluate(ctx context.Context, req guard.Request) (guard.AuditEntry, error) {
	s.mu.RLock()
	profile := s.active
	box := s.box
	s.mu.RUnlock()

	risk := s.risk.Classify(req)

	var verdict guard.Verdict
	if reason, denied := sandboxDenial(box, req); denied {
		verdict = guard.Verdict{
			Decision:  guard.DecisionDeny,
			Risk:      risk,
			Profile:   profile.Name,
			RuleIndex: -1,
			Reason:    "sandbox: " + reason,
		}
	} else {
		verdict = profile.Apply(req, risk)
	}

	entry := guard.AuditEntry{
		ID:       uuid.NewString(),
		Time:     s.now().UTC(),
		Caller:   req.Caller,
		Tool:     req.Tool,
		Access:   req.Access,
		Decision: verdict.Decision,
		Risk:     verdict.Risk,
		Profile:  verdict.Profile,
		Reason:   verdict.Reason,
	}

	if verdict.Decision == guard.DecisionRequireApproval {
		entry.Approval = s.awaitApproval(ctx, req, entry)
	}

	// The entry must land even when the caller's context is already
	// dead (cancelled mid-approval, client gone).
	if err := s.store.AppendAudit(context.WithoutCancel(ctx), entry); err != nil {
		return entry, fmt.Errorf("append audit entry: %w", err)
	}
	s.broadcastDecision(ctx, entry)

	switch {
	case entry.Decision == guard.DecisionDeny:
		return entry, fmt.Errorf("%w: %s", domain.ErrDenied, entry.Reason)
	case entry.Approval == guard.ApprovalTimeout:
		return entry, fmt.Errorf("%w: tool %q", domain.ErrApprovalTimeout, req.Tool)
	case entry.Decision == guard.DecisionRequireApproval && entry.Approval != guard.ApprovalApproved:
		return entry, fmt.Errorf("%w: approval denied for tool %q", domain.ErrDenied, req.Tool)
	}
	return entry, nil
}

// sandboxDenial checks every declared access kind against the sandbox,
// reporting the first denial.
func sandboxDenial(box *sandbox.Sandbox, req guard.Request) (string, bool) {
	if box == nil {
		return "", false
	}
	for _, kind := range req.Access {
		detail := ""
		switch kind {
		case guard.AccessCommand:
			detail = req.Command
		case guard.AccessFileRead, guard.AccessFileWrite:
			detail = req.Path
		}
		if res := box.CheckAccess(kind, detail); !res.Allowed {
			return res.Reason, true
		}
	}
	return "", false
}

// awaitApproval blocks until a human resolves the request, the timeout
// expires, or the caller's context ends. First response wins; the
// channel has buffer 1 so only the first write lands.
func (s *GuardService) awaitApproval(ctx context.Context, req guard.Request, entry guard.AuditEntry) guard.ApprovalOutcome {
	p := &pendingApproval{
		info: PendingApproval{
			ID:          entry.ID,
			Caller:      req.Caller,
			Tool:        req.Tool,
			Command:     req.Command,
			Path:        req.Path,
			Risk:        entry.Risk,
			Reason:      entry.Reason,
			RequestedAt: s.now().UTC(),
		},
		ch: make(chan bool, 1),
	}

	s.pendingMu.Lock()
	s.pending[entry.ID] = p
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, entry.ID)
		s.pendingMu.Unlock()
	}()

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventApprovalRequested, ws.ApprovalRequestedEvent{
			ApprovalID: p.info.ID,
			Caller:     p.info.Caller,
			Tool:       p.info.Tool,
			Command:    p.info.Command,
			Path:       p.info.Path,
			Risk:       p.info.Risk,
			Reason:     p.info.Reason,
		})
	}
	slog.Info("approval requested",
		"approval_id", p.info.ID,
		"caller", req.Caller,
		"tool", req.Tool,
		"risk", entry.Risk,
		"timeout", s.approvalTimeout,
	)

	var outcome guard.ApprovalOutcome
	select {
	case approved := <-p.ch:
		if approved {
			outcome = guard.ApprovalApproved
		} else {
			outcome = guard.ApprovalDenied
		}
	case <-time.After(s.approvalTimeout):
		slog.Warn("approval timed out, denying", "approval_id", p.info.ID, "tool", req.Tool)
		outcome = guard.ApprovalTimeout
	case <-ctx.Done():
		outcome = guard.ApprovalDenied
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventApprovalResolved, ws.ApprovalResolvedEvent{
			ApprovalID: p.info.ID,
			Tool:       p.info.Tool,
			Outcome:    outcome,
		})
	}
	return outcome
}

// ResolveApproval is called from the HTTP handler when a user approves
// or denies a pending invocation. Returns false when nothing was
// pending under the id.
func (s *GuardService) ResolveApproval(id string, approve bool) bool {
	s.pendingMu.Lock()
	p, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case p.ch <- approve:
		return true
	default:
		return false
	}
}

// PendingApprovals lists invocations currently blocked on a decision,
// oldest first.
func (s *GuardService) PendingApprovals() []PendingApproval {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	out := make([]PendingApproval, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// AuditLog returns audit entries in append order, restricted to the
// most recent limit when limit > 0.
func (s *GuardService) AuditLog(ctx context.Context, limit int) ([]guard.AuditEntry, error) {
	return s.store.ListAudit(ctx, limit)
}

// AuditCount returns the total number of audit entries.
func (s *GuardService) AuditCount(ctx context.Context) (int64, error) {
	return s.store.CountAudit(ctx)
}

func (s *GuardService) broadcastDecision(ctx context.Context, entry guard.AuditEntry) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, ws.EventGuardDecision, ws.GuardDecisionEvent{
		EntryID:  entry.ID,
		Caller:   entry.Caller,
		Tool:     entry.Tool,
		Decision: entry.Decision,
		Risk:     entry.Risk,
		Profile:  entry.Profile,
		Reason:   entry.Reason,
	})
}
