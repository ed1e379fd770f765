// Package node defines the domain model for execution nodes tracked by the
// node registry: their role in the mesh, trust tier, reachable endpoints,
// and advertised capabilities.
package node

import (
	"fmt"
	"time"

	"github.com/brainstem-ai/brainstem/internal/domain"
)

// Role places a node in the planning/execution split.
type Role string

const (
	RoleBrain Role = "brain" // planning layer
	RoleCore  Role = "core"  // execution layer
	RoleEdge  Role = "edge"  // peripheral device or low-trust worker
)

// TrustTier is a coarse classification of how much a node's claims are
// trusted without further verification.
type TrustTier string

const (
	TierUntrusted TrustTier = "untrusted"
	TierStandard  TrustTier = "standard"
	TierTrusted   TrustTier = "trusted"
	TierSystem    TrustTier = "system"
)

// tierRank orders tiers for minimum-trust filters.
var tierRank = map[TrustTier]int{
	TierUntrusted: 0,
	TierStandard:  1,
	TierTrusted:   2,
	TierSystem:    3,
}

// Rank returns the ordinal of a trust tier. Unknown tiers rank lowest.
func (t TrustTier) Rank() int {
	return tierRank[t]
}

// Endpoint is one (protocol, address) pair a node can be reached on.
type Endpoint struct {
	Protocol string `json:"protocol"` // "mcp", "http", "nats"
	Address  string `json:"address"`
}

// Info is the registry record for one execution node. Created on
// registration, updated on heartbeat, removed on deregistration or
// staleness eviction.
type Info struct {
	ID           string            `json:"id"`
	Role         Role              `json:"role"`
	Trust        TrustTier         `json:"trust"`
	Endpoints    []Endpoint        `json:"endpoints,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	LastSeen     time.Time         `json:"last_seen"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Filter selects nodes during discovery. All set predicates must match.
type Filter struct {
	Role       Role      `json:"role,omitempty"`
	MinTrust   TrustTier `json:"min_trust,omitempty"`
	Capability string    `json:"capability,omitempty"`
}

// Matches reports whether the node satisfies every set predicate.
func (f Filter) Matches(n Info) bool {
	if f.Role != "" && n.Role != f.Role {
		return false
	}
	if f.MinTrust != "" && n.Trust.Rank() < f.MinTrust.Rank() {
		return false
	}
	if f.Capability != "" && !n.HasCapability(f.Capability) {
		return false
	}
	return true
}

// HasCapability reports whether the node advertises the capability.
func (n Info) HasCapability(cap string) bool {
	for _, c := range n.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// NewerThan reports whether this record supersedes other under
// last-writer-wins: strictly newer last_seen only.
func (n Info) NewerThan(other Info) bool {
	return n.LastSeen.After(other.LastSeen)
}

// validRoles is the set of recognized roles.
var validRoles = map[Role]bool{
	RoleBrain: true,
	RoleCore:  true,
	RoleEdge:  true,
}

// validTiers is the set of recognized trust tiers.
var validTiers = map[TrustTier]bool{
	TierUntrusted: true,
	TierStandard:  true,
	TierTrusted:   true,
	TierSystem:    true,
}

// Validate checks that the node record has all required fields. Returns a
// domain.ErrValidation-wrapped error on failure.
func (n *Info) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: node id is required", domain.ErrValidation)
	}
	if !validRoles[n.Role] {
		return fmt.Errorf("%w: node %s: unknown role %q", domain.ErrValidation, n.ID, n.Role)
	}
	if !validTiers[n.Trust] {
		return fmt.Errorf("%w: node %s: unknown trust tier %q", domain.ErrValidation, n.ID, n.Trust)
	}
	for i, ep := range n.Endpoints {
		if ep.Protocol == "" || ep.Address == "" {
			return fmt.Errorf("%w: node %s: endpoint[%d] needs protocol and address", domain.ErrValidation, n.ID, i)
		}
	}
	return nil
}
