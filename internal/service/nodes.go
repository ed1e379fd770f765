package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/brainstem-ai/brainstem/internal/adapter/ws"
	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/port/broadcast"
	"github.com/brainstem-ai/brainstem/internal/port/database"
	"github.com/brainstem-ai/brainstem/internal/port/messagequeue"
)

// NodeConfig configures the node registry service.
type NodeConfig struct {
	// Self is this gateway's own registry record. Optional; when set it
	// is registered at startup and refreshed by the sweeper.
	Self node.Info
	// HeartbeatInterval is the sweeper period. Defaults to 30 seconds.
	HeartbeatInterval time.Duration
	// StaleAfter is how long a silent node survives before eviction.
	// Defaults to 5 minutes.
	StaleAfter time.Duration
}

// NodeService maintains the durable catalog of execution nodes:
// registration, discovery, heartbeats, staleness eviction, and
// last-writer-wins merges of snapshots received from peer gateways.
type NodeService struct {
	store      database.Store
	bus        messagequeue.Queue    // optional
	hub        broadcast.Broadcaster // optional
	self       node.Info
	hbInterval time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewNodeService builds the registry service. bus and hub may be nil
// for standalone gateways.
func NewNodeService(cfg NodeConfig, store database.Store, bus messagequeue.Queue, hub broadcast.Broadcaster) (*NodeService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: node registry requires a store", domain.ErrValidation)
	}
	if cfg.Self.ID != "" {
		if err := cfg.Self.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	return &NodeService{
		store:      store,
		bus:        bus,
		hub:        hub,
		self:       cfg.Self,
		hbInterval: cfg.HeartbeatInterval,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
	}, nil
}

// Self returns this gateway's own registry record.
func (s *NodeService) Self() node.Info {
	return s.self
}

// Register validates and upserts a node record. Re-registering an
// existing id refreshes it; announcement retries are expected and must
// not fail.
func (s *NodeService) Register(ctx context.Context, n node.Info) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.LastSeen.IsZero() {
		n.LastSeen = s.now().UTC()
	}
	if err := s.store.UpsertNode(ctx, n); err != nil {
		return fmt.Errorf("register node %s: %w", n.ID, err)
	}

	slog.Info("node registered", "node_id", n.ID, "role", n.Role, "trust", n.Trust)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventNodeUpdated, ws.NodeUpdatedEvent{
			NodeID: n.ID,
			Role:   string(n.Role),
			Trust:  string(n.Trust),
		})
	}
	return nil
}

// Deregister removes a node and tells peer gateways to drop it too.
func (s *NodeService) Deregister(ctx context.Context, id string) error {
	if err := s.store.DeleteNode(ctx, id); err != nil {
		return err
	}

	slog.Info("node deregistered", "node_id", id)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventNodeRemoved, ws.NodeRemovedEvent{NodeID: id, Reason: "deregistered"})
	}
	if s.bus != nil {
		payload, err := json.Marshal(messagequeue.NodeLeavePayload{Origin: s.self.ID, NodeID: id})
		if err == nil {
			if err := s.bus.Publish(ctx, messagequeue.SubjectNodeLeave, payload); err != nil {
				slog.Warn("publish node leave", "node_id", id, "error", err)
			}
		}
	}
	return nil
}

// Get returns one node record by id.
func (s *NodeService) Get(ctx context.Context, id string) (*node.Info, error) {
	return s.store.GetNode(ctx, id)
}

// Discover lists nodes matching the filter, sorted by id.
func (s *NodeService) Discover(ctx context.Context, f node.Filter) ([]node.Info, error) {
	all, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]node.Info, 0, len(all))
	for _, n := range all {
		if f.Matches(n) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Heartbeat refreshes a node's last_seen timestamp. Unknown nodes must
// re-register; a heartbeat never creates a record.
func (s *NodeService) Heartbeat(ctx context.Context, id string) error {
	n, err := s.store.GetNode(ctx, id)
	if err != nil {
		return err
	}
	n.LastSeen = s.now().UTC()
	return s.store.UpsertNode(ctx, *n)
}

// EvictStale removes every node whose last_seen is older than the
// staleness window and returns how many were evicted. The gateway's own
// record is exempt; the sweeper refreshes it.
func (s *NodeService) EvictStale(ctx context.Context) (int, error) {
	all, err := s.store.ListNodes(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().UTC().Add(-s.staleAfter)
	evicted := 0
	for _, n := range all {
		if n.ID == s.self.ID || !n.LastSeen.Before(cutoff) {
			continue
		}
		if err := s.store.DeleteNode(ctx, n.ID); err != nil {
			slog.Warn("evict stale node", "node_id", n.ID, "error", err)
			continue
		}
		evicted++
		slog.Info("node evicted as stale", "node_id", n.ID, "last_seen", n.LastSeen)
		if s.hub != nil {
			s.hub.BroadcastEvent(ctx, ws.EventNodeRemoved, ws.NodeRemovedEvent{NodeID: n.ID, Reason: "stale"})
		}
	}
	return evicted, nil
}

// MergeNodes folds a peer gateway's snapshot into the local registry
// under last-writer-wins: a remote record replaces the local one only
// when strictly newer. Invalid records and this gateway's own record
// are rejected. Returns how many records were accepted and rejected.
func (s *NodeService) MergeNodes(ctx context.Context, remote []node.Info) (accepted, rejected int, err error) {
	for _, rn := range remote {
		if rn.ID == s.self.ID {
			rejected++
			continue
		}
		if verr := rn.Validate(); verr != nil {
			slog.Warn("merge rejected invalid node record", "node_id", rn.ID, "error", verr)
			rejected++
			continue
		}

		local, gerr := s.store.GetNode(ctx, rn.ID)
		switch {
		case gerr == nil:
			if !rn.NewerThan(*local) {
				rejected++
				continue
			}
		case !isNotFound(gerr):
			return accepted, rejected, gerr
		}

		if uerr := s.store.UpsertNode(ctx, rn); uerr != nil {
			return accepted, rejected, fmt.Errorf("merge node %s: %w", rn.ID, uerr)
		}
		accepted++
	}
	return accepted, rejected, nil
}

// Snapshot returns the full registry sorted by id.
func (s *NodeService) Snapshot(ctx context.Context) ([]node.Info, error) {
	all, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

// StartSweeper registers the gateway's own record and then, every
// heartbeat interval, refreshes it, evicts stale nodes, and announces
// the registry snapshot to peers. Stops when ctx is cancelled.
func (s *NodeService) StartSweeper(ctx context.Context) {
	if s.self.ID != "" {
		if err := s.Register(ctx, s.self); err != nil {
			slog.Error("register self", "node_id", s.self.ID, "error", err)
		}
	}

	go func() {
		ticker := time.NewTicker(s.hbInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *NodeService) sweep(ctx context.Context) {
	if s.self.ID != "" {
		if err := s.Heartbeat(ctx, s.self.ID); err != nil {
			// Own record may have been wiped by an operator; re-register.
			if err := s.Register(ctx, s.self); err != nil {
				slog.Error("refresh self registration", "error", err)
			}
		}
	}
	if _, err := s.EvictStale(ctx); err != nil {
		slog.Error("evict stale nodes", "error", err)
	}
	s.Announce(ctx)
}

// Announce publishes the full registry snapshot for peer gateways.
// No-op without a message bus.
func (s *NodeService) Announce(ctx context.Context) {
	if s.bus == nil {
		return
	}
	nodes, err := s.Snapshot(ctx)
	if err != nil {
		slog.Error("snapshot registry for announce", "error", err)
		return
	}
	payload, err := json.Marshal(messagequeue.NodeAnnouncePayload{Origin: s.self.ID, Nodes: nodes})
	if err != nil {
		slog.Error("marshal registry announce", "error", err)
		return
	}
	if err := s.bus.Publish(ctx, messagequeue.SubjectNodeAnnounce, payload); err != nil {
		slog.Warn("publish registry announce", "error", err)
	}
}

// ListenAnnouncements subscribes to peer snapshots and departure
// notices, merging them into the local registry. Returns the combined
// cancel for both subscriptions.
func (s *NodeService) ListenAnnouncements(ctx context.Context) (func(), error) {
	if s.bus == nil {
		return func() {}, nil
	}

	cancelAnnounce, err := s.bus.Subscribe(ctx, messagequeue.SubjectNodeAnnounce, func(ctx context.Context, subject string, data []byte) error {
		var payload messagequeue.NodeAnnouncePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", subject, err)
		}
		if payload.Origin == s.self.ID {
			return nil // own announcement echoed back
		}
		accepted, rejected, err := s.MergeNodes(ctx, payload.Nodes)
		if err != nil {
			return err
		}
		slog.Debug("merged peer snapshot",
			"origin", payload.Origin,
			"accepted", accepted,
			"rejected", rejected,
		)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectNodeAnnounce, err)
	}

	cancelLeave, err := s.bus.Subscribe(ctx, messagequeue.SubjectNodeLeave, func(ctx context.Context, subject string, data []byte) error {
		var payload messagequeue.NodeLeavePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", subject, err)
		}
		if payload.Origin == s.self.ID || payload.NodeID == s.self.ID {
			return nil
		}
		if err := s.store.DeleteNode(ctx, payload.NodeID); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	})
	if err != nil {
		cancelAnnounce()
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectNodeLeave, err)
	}

	return func() {
		cancelAnnounce()
		cancelLeave()
	}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
