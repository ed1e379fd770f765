package messagequeue

import "github.com/brainstem-ai/brainstem/internal/domain/node"

// NodeAnnouncePayload is the schema for registry.announce messages: one
// gateway's full view of the node registry. Receivers merge it with
// last-writer-wins semantics.
type NodeAnnouncePayload struct {
	Origin string      `json:"origin"` // announcing gateway's node id
	Nodes  []node.Info `json:"nodes"`
}

// NodeLeavePayload is the schema for registry.leave messages.
type NodeLeavePayload struct {
	Origin string `json:"origin"`
	NodeID string `json:"node_id"`
}
