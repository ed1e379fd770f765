package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/guard"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
)

// Store implements database.Store on SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- Audit log ---

func (s *Store) AppendAudit(ctx context.Context, entry guard.AuditEntry) error {
	access, err := json.Marshal(entry.Access)
	if err != nil {
		return fmt.Errorf("marshal access kinds: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, time, caller, tool, access, decision, risk, profile, reason, approval)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Time, entry.Caller, entry.Tool, string(access),
		string(entry.Decision), string(entry.Risk), entry.Profile, entry.Reason, string(entry.Approval),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]guard.AuditEntry, error) {
	query := `SELECT id, time, caller, tool, access, decision, risk, profile, reason, approval
	          FROM audit_log ORDER BY seq ASC`
	args := []any{}
	if limit > 0 {
		// Most recent N, still returned in append order.
		query = `SELECT id, time, caller, tool, access, decision, risk, profile, reason, approval
		         FROM (SELECT * FROM audit_log ORDER BY seq DESC LIMIT ?) ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []guard.AuditEntry
	for rows.Next() {
		var e guard.AuditEntry
		var access, decision, risk, approval string
		if err := rows.Scan(&e.ID, &e.Time, &e.Caller, &e.Tool, &access,
			&decision, &risk, &e.Profile, &e.Reason, &approval); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(access), &e.Access); err != nil {
			return nil, fmt.Errorf("unmarshal access kinds: %w", err)
		}
		e.Decision = guard.Decision(decision)
		e.Risk = guard.RiskLevel(risk)
		e.Approval = guard.ApprovalOutcome(approval)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CountAudit(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// --- Nodes ---

func (s *Store) UpsertNode(ctx context.Context, n node.Info) error {
	endpoints, err := json.Marshal(n.Endpoints)
	if err != nil {
		return fmt.Errorf("marshal endpoints: %w", err)
	}
	capabilities, err := json.Marshal(n.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO nodes (id, role, trust, endpoints, capabilities, last_seen, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   role = excluded.role,
		   trust = excluded.trust,
		   endpoints = excluded.endpoints,
		   capabilities = excluded.capabilities,
		   last_seen = excluded.last_seen,
		   metadata = excluded.metadata`,
		n.ID, string(n.Role), string(n.Trust), string(endpoints), string(capabilities), n.LastSeen, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", n.ID, err)
	}
	return nil
}

func (s *Store) GetNode(ctx context.Context, id string) (*node.Info, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, role, trust, endpoints, capabilities, last_seen, metadata
		 FROM nodes WHERE id = ?`, id)

	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

func (s *Store) ListNodes(ctx context.Context) ([]node.Info, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, trust, endpoints, capabilities, last_seen, metadata
		 FROM nodes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []node.Info
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func (s *Store) DeleteNode(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: node %s", domain.ErrNotFound, id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*node.Info, error) {
	var n node.Info
	var role, trust, endpoints, capabilities, metadata string
	if err := row.Scan(&n.ID, &role, &trust, &endpoints, &capabilities, &n.LastSeen, &metadata); err != nil {
		return nil, err
	}
	n.Role = node.Role(role)
	n.Trust = node.TrustTier(trust)
	if err := json.Unmarshal([]byte(endpoints), &n.Endpoints); err != nil {
		return nil, fmt.Errorf("unmarshal endpoints: %w", err)
	}
	if err := json.Unmarshal([]byte(capabilities), &n.Capabilities); err != nil {
		return nil, fmt.Errorf("unmarshal capabilities: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &n, nil
}
