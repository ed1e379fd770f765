// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
)

// Store is the port interface for durable state: the append-only audit
// log and the node registry catalog.
type Store interface {
	// Audit log. Entries are append-only; ListAudit returns entries in
	// append order, restricted to the most recent limit when limit > 0.
	AppendAudit(ctx context.Context, entry guard.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]guard.AuditEntry, error)
	CountAudit(ctx context.Context) (int64, error)

	// Nodes
	UpsertNode(ctx context.Context, n node.Info) error
	GetNode(ctx context.Context, id string) (*node.Info, error)
	ListNodes(ctx context.Context) ([]node.Info, error)
	DeleteNode(ctx context.Context, id string) error
}
