package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brainstem-ai/brainstem/internal/domain"
	"github.com/brainstem-ai/brainstem/internal/domain/node"
	"github.com/brainstem-ai/brainstem/internal/port/messagequeue"
)

// fakeQueue is an in-memory messagequeue.Queue for service tests.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		published: map[string][][]byte{},
		handlers:  map[string]messagequeue.Handler{},
	}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.handlers, subject)
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) deliver(t *testing.T, subject string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	q.mu.Lock()
	h := q.handlers[subject]
	q.mu.Unlock()
	if h == nil {
		t.Fatalf("no handler subscribed on %s", subject)
	}
	if err := h(context.Background(), subject, data); err != nil {
		t.Fatalf("handler %s: %v", subject, err)
	}
}

func (q *fakeQueue) publishedOn(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[subject]
}

func testNode(id string, role node.Role, seen time.Time) node.Info {
	return node.Info{
		ID:       id,
		Role:     role,
		Trust:    node.TierStandard,
		LastSeen: seen,
	}
}

func newTestNodes(t *testing.T, cfg NodeConfig, bus messagequeue.Queue) (*NodeService, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc, err := NewNodeService(cfg, store, bus, nil)
	if err != nil {
		t.Fatalf("NewNodeService: %v", err)
	}
	return svc, store
}

func TestRegisterStampsLastSeen(t *testing.T) {
	svc, store := newTestNodes(t, NodeConfig{}, nil)

	n := testNode("edge-7", node.RoleEdge, time.Time{})
	if err := svc.Register(context.Background(), n); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := store.GetNode(context.Background(), "edge-7")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.LastSeen.IsZero() {
		t.Fatal("LastSeen not stamped on register")
	}
}

func TestRegisterRejectsInvalidRecord(t *testing.T) {
	svc, _ := newTestNodes(t, NodeConfig{}, nil)

	err := svc.Register(context.Background(), node.Info{ID: "x", Role: "pilot", Trust: node.TierStandard})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRegisterIsIdempotentUpsert(t *testing.T) {
	svc, store := newTestNodes(t, NodeConfig{}, nil)

	n := testNode("edge-7", node.RoleEdge, time.Now())
	if err := svc.Register(context.Background(), n); err != nil {
		t.Fatalf("first register: %v", err)
	}
	n.Capabilities = []string{"camera"}
	if err := svc.Register(context.Background(), n); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, _ := store.GetNode(context.Background(), "edge-7")
	if !got.HasCapability("camera") {
		t.Fatal("re-register did not refresh the record")
	}
}

func TestHeartbeatUnknownNode(t *testing.T) {
	svc, _ := newTestNodes(t, NodeConfig{}, nil)

	if err := svc.Heartbeat(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestHeartbeatRefreshesLastSeen(t *testing.T) {
	svc, store := newTestNodes(t, NodeConfig{}, nil)

	base := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	if err := svc.Register(context.Background(), testNode("edge-7", node.RoleEdge, time.Time{})); err != nil {
		t.Fatal(err)
	}

	svc.now = func() time.Time { return base.Add(time.Minute) }
	if err := svc.Heartbeat(context.Background(), "edge-7"); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	got, _ := store.GetNode(context.Background(), "edge-7")
	if !got.LastSeen.Equal(base.Add(time.Minute)) {
		t.Fatalf("LastSeen = %v, want %v", got.LastSeen, base.Add(time.Minute))
	}
}

func TestDiscoverFilters(t *testing.T) {
	svc, _ := newTestNodes(t, NodeConfig{}, nil)
	ctx := context.Background()

	edge := testNode("edge-7", node.RoleEdge, time.Now())
	edge.Capabilities = []string{"camera"}
	core := testNode("core-1", node.RoleCore, time.Now())
	core.Trust = node.TierTrusted
	brain := testNode("brain-1", node.RoleBrain, time.Now())
	brain.Trust = node.TierSystem

	for _, n := range []node.Info{edge, core, brain} {
		if err := svc.Register(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.Discover(ctx, node.Filter{Role: node.RoleEdge})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(got) != 1 || got[0].ID != "edge-7" {
		t.Fatalf("role filter = %v", got)
	}

	got, _ = svc.Discover(ctx, node.Filter{MinTrust: node.TierTrusted})
	if len(got) != 2 {
		t.Fatalf("trust filter returned %d nodes, want 2", len(got))
	}
	// Sorted by id.
	if got[0].ID != "brain-1" || got[1].ID != "core-1" {
		t.Fatalf("discover order = %v", []string{got[0].ID, got[1].ID})
	}

	got, _ = svc.Discover(ctx, node.Filter{Capability: "camera"})
	if len(got) != 1 || got[0].ID != "edge-7" {
		t.Fatalf("capability filter = %v", got)
	}
}

func TestEvictStaleSparesSelfAndFresh(t *testing.T) {
	self := testNode("core-1", node.RoleCore, time.Now())
	svc, store := newTestNodes(t, NodeConfig{Self: self, StaleAfter: time.Minute}, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	stale := testNode("edge-old", node.RoleEdge, base.Add(-2*time.Minute))
	fresh := testNode("edge-new", node.RoleEdge, base.Add(-10*time.Second))
	selfOld := testNode("core-1", node.RoleCore, base.Add(-time.Hour))
	for _, n := range []node.Info{stale, fresh, selfOld} {
		if err := store.UpsertNode(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	evicted, err := svc.EvictStale(ctx)
	if err != nil {
		t.Fatalf("EvictStale: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, err := store.GetNode(ctx, "edge-old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("stale node survived eviction")
	}
	if _, err := store.GetNode(ctx, "edge-new"); err != nil {
		t.Fatal("fresh node was evicted")
	}
	if _, err := store.GetNode(ctx, "core-1"); err != nil {
		t.Fatal("self record must never be evicted")
	}
}

func TestMergeNodesLastWriterWins(t *testing.T) {
	self := testNode("core-1", node.RoleCore, time.Now())
	svc, store := newTestNodes(t, NodeConfig{Self: self}, nil)
	ctx := context.Background()

	base := time.Date(2026, 2, 11, 10, 0, 0, 0, time.UTC)

	local := testNode("edge-7", node.RoleEdge, base)
	local.Capabilities = []string{"camera"}
	if err := store.UpsertNode(ctx, local); err != nil {
		t.Fatal(err)
	}

	newer := testNode("edge-7", node.RoleEdge, base.Add(time.Minute))
	newer.Capabilities = []string{"camera", "lidar"}
	older := testNode("edge-9", node.RoleEdge, base.Add(-time.Minute))
	invalid := node.Info{ID: "edge-bad", Role: "pilot", Trust: node.TierStandard, LastSeen: base}
	selfCopy := testNode("core-1", node.RoleCore, base.Add(time.Hour))

	accepted, rejected, err := svc.MergeNodes(ctx, []node.Info{newer, older, invalid, selfCopy})
	if err != nil {
		t.Fatalf("MergeNodes: %v", err)
	}
	if accepted != 2 {
		t.Fatalf("accepted = %d, want 2 (newer edge-7, unseen edge-9)", accepted)
	}
	if rejected != 2 {
		t.Fatalf("rejected = %d, want 2 (invalid record, own record)", rejected)
	}

	got, _ := store.GetNode(ctx, "edge-7")
	if !got.HasCapability("lidar") {
		t.Fatal("newer remote record did not replace local")
	}

	// Replaying the same snapshot accepts nothing: equal timestamps are
	// not strictly newer.
	accepted, _, err = svc.MergeNodes(ctx, []node.Info{newer, older})
	if err != nil {
		t.Fatalf("replay MergeNodes: %v", err)
	}
	if accepted != 0 {
		t.Fatalf("replay accepted = %d, want 0", accepted)
	}
}

func TestDeregisterPublishesLeave(t *testing.T) {
	self := testNode("core-1", node.RoleCore, time.Now())
	bus := newFakeQueue()
	svc, _ := newTestNodes(t, NodeConfig{Self: self}, bus)
	ctx := context.Background()

	if err := svc.Register(ctx, testNode("edge-7", node.RoleEdge, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := svc.Deregister(ctx, "edge-7"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	msgs := bus.publishedOn(messagequeue.SubjectNodeLeave)
	if len(msgs) != 1 {
		t.Fatalf("leave messages = %d, want 1", len(msgs))
	}
	var payload messagequeue.NodeLeavePayload
	if err := json.Unmarshal(msgs[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.NodeID != "edge-7" || payload.Origin != "core-1" {
		t.Fatalf("leave payload = %+v", payload)
	}

	if err := svc.Deregister(ctx, "edge-7"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second deregister err = %v, want ErrNotFound", err)
	}
}

func TestAnnouncePublishesSnapshot(t *testing.T) {
	self := testNode("core-1", node.RoleCore, time.Now())
	bus := newFakeQueue()
	svc, _ := newTestNodes(t, NodeConfig{Self: self}, bus)
	ctx := context.Background()

	if err := svc.Register(ctx, self); err != nil {
		t.Fatal(err)
	}
	if err := svc.Register(ctx, testNode("edge-7", node.RoleEdge, time.Now())); err != nil {
		t.Fatal(err)
	}

	svc.Announce(ctx)

	msgs := bus.publishedOn(messagequeue.SubjectNodeAnnounce)
	if len(msgs) != 1 {
		t.Fatalf("announce messages = %d, want 1", len(msgs))
	}
	if err := messagequeue.Validate(messagequeue.SubjectNodeAnnounce, msgs[0]); err != nil {
		t.Fatalf("announce payload fails schema: %v", err)
	}
	var payload messagequeue.NodeAnnouncePayload
	if err := json.Unmarshal(msgs[0], &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Origin != "core-1" || len(payload.Nodes) != 2 {
		t.Fatalf("announce payload = %+v", payload)
	}
}

func TestListenAnnouncementsMergesPeerSnapshots(t *testing.T) {
	self := testNode("core-1", node.RoleCore, time.Now())
	bus := newFakeQueue()
	svc, store := newTestNodes(t, NodeConfig{Self: self}, bus)
	ctx := context.Background()

	cancel, err := svc.ListenAnnouncements(ctx)
	if err != nil {
		t.Fatalf("ListenAnnouncements: %v", err)
	}
	defer cancel()

	peerNode := testNode("edge-12", node.RoleEdge, time.Now())
	bus.deliver(t, messagequeue.SubjectNodeAnnounce, messagequeue.NodeAnnouncePayload{
		Origin: "core-2",
		Nodes:  []node.Info{peerNode},
	})

	if _, err := store.GetNode(ctx, "edge-12"); err != nil {
		t.Fatalf("peer node not merged: %v", err)
	}

	// Own echoes are ignored even when they carry unknown nodes.
	bus.deliver(t, messagequeue.SubjectNodeAnnounce, messagequeue.NodeAnnouncePayload{
		Origin: "core-1",
		Nodes:  []node.Info{testNode("edge-99", node.RoleEdge, time.Now())},
	})
	if _, err := store.GetNode(ctx, "edge-99"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("own announcement echo must be ignored")
	}

	// Leave notices drop the node locally.
	bus.deliver(t, messagequeue.SubjectNodeLeave, messagequeue.NodeLeavePayload{
		Origin: "core-2",
		NodeID: "edge-12",
	})
	if _, err := store.GetNode(ctx, "edge-12"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("leave notice did not remove the node")
	}
}
