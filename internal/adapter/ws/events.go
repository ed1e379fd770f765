package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/brainstem-ai/brainstem/internal/domain/guard"
)

// Event type constants for WebSocket messages.
const (
	EventGuardDecision     = "guard.decision"
	EventApprovalRequested = "guard.approval.requested"
	EventApprovalResolved  = "guard.approval.resolved"
	EventNodeUpdated       = "registry.node.updated"
	EventNodeRemoved       = "registry.node.removed"
)

// GuardDecisionEvent is broadcast after every guard evaluation.
type GuardDecisionEvent struct {
	EntryID  string          `json:"entry_id"`
	Caller   string          `json:"caller"`
	Tool     string          `json:"tool"`
	Decision guard.Decision  `json:"decision"`
	Risk     guard.RiskLevel `json:"risk"`
	Profile  string          `json:"profile"`
	Reason   string          `json:"reason,omitempty"`
}

// ApprovalRequestedEvent is broadcast when an invocation blocks on a
// human decision.
type ApprovalRequestedEvent struct {
	ApprovalID string          `json:"approval_id"`
	Caller     string          `json:"caller"`
	Tool       string          `json:"tool"`
	Command    string          `json:"command,omitempty"`
	Path       string          `json:"path,omitempty"`
	Risk       guard.RiskLevel `json:"risk"`
	Reason     string          `json:"reason,omitempty"`
}

// ApprovalResolvedEvent is broadcast when a pending approval is decided
// or times out.
type ApprovalResolvedEvent struct {
	ApprovalID string                `json:"approval_id"`
	Tool       string                `json:"tool"`
	Outcome    guard.ApprovalOutcome `json:"outcome"`
}

// NodeUpdatedEvent is broadcast when a node registers or heartbeats.
type NodeUpdatedEvent struct {
	NodeID string `json:"node_id"`
	Role   string `json:"role"`
	Trust  string `json:"trust"`
}

// NodeRemovedEvent is broadcast when a node deregisters or is evicted.
type NodeRemovedEvent struct {
	NodeID string `json:"node_id"`
	Reason string `json:"reason"` // "deregistered" or "stale"
}

// BroadcastEvent marshals a typed event and broadcasts it to every
// connected client.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
