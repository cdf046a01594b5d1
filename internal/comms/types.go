// Package comms defines the wire types shared between the daemon and any UI
// observing the agent graph: a point-in-time topology snapshot and a feed of
// discrete lifecycle events.
package comms

import "time"

// NodeState is the lifecycle state of an agent node within a Topology.
type NodeState string

const (
	NodeRunning NodeState = "running"
	NodeIdle    NodeState = "idle"
	NodeStopped NodeState = "stopped"
)

// Node is one running (or recently running) agent in a topology snapshot.
type Node struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	State NodeState `json:"state"`
	Model string    `json:"model,omitempty"`
}

// EdgeKind distinguishes a parent/child spawn relationship from a symmetric
// peer relationship between two running agents.
type EdgeKind string

const (
	EdgeParentChild EdgeKind = "parent_child"
	EdgePeer        EdgeKind = "peer"
)

// Edge is a directed relationship between two nodes. For EdgeKind peer, From
// and To are interchangeable; the relationship is symmetric.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Topology is a snapshot-in-time of the running agent graph. Edges of kind
// parent_child form a forest: every non-root node has exactly one incoming
// parent_child edge. Edges of kind peer are symmetric and may connect any
// two running agents regardless of ancestry.
type Topology struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// EventKind enumerates the kinds of lifecycle events the comms feed carries.
type EventKind string

const (
	EventAgentMessage    EventKind = "agent_message"
	EventAgentSpawned    EventKind = "agent_spawned"
	EventAgentTerminated EventKind = "agent_terminated"
	EventTaskPosted      EventKind = "task_posted"
	EventTaskClaimed     EventKind = "task_claimed"
	EventTaskCompleted   EventKind = "task_completed"
)

// CommsEvent is one entry in the append-only comms feed. Consumers poll for
// the most recent N entries and deduplicate by ID, since a reconnecting
// subscriber may observe overlapping pages.
type CommsEvent struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Kind       EventKind `json:"kind"`
	SourceID   string    `json:"source_id,omitempty"`
	SourceName string    `json:"source_name,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	TargetName string    `json:"target_name,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// CommsSendRequest asks that a message be delivered from one running agent
// to another.
type CommsSendRequest struct {
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
	Message     string `json:"message"`
}

// CommsTaskRequest posts a task to the agent graph, optionally pre-assigned
// to a specific agent.
type CommsTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
}
