// Package observe defines narrow read-only ports for subsystems that
// live outside the execution core (session tracking, memory tiers).
// The HTTP surface exposes them when a provider is plugged in and
// degrades to empty results otherwise.
package observe

import (
	"context"
	"time"
)

// Session is one active planner session as reported by the session
// subsystem.
type Session struct {
	ID         string    `json:"id"`
	Caller     string    `json:"caller"`
	StartedAt  time.Time `json:"started_at"`
	LastActive time.Time `json:"last_active"`
}

// SessionLister reports active sessions.
type SessionLister interface {
	Sessions(ctx context.Context) ([]Session, error)
}

// TierCount is the entry count of one memory tier.
type TierCount struct {
	Tier  string `json:"tier"`
	Count int64  `json:"count"`
}

// MemoryTiers reports per-tier entry counts from the memory subsystem.
type MemoryTiers interface {
	TierCounts(ctx context.Context) ([]TierCount, error)
}
