// Package facilitator implements the Facilitator: it reads public chat and
// agent heartbeats, maintains the agent registry, decides whether each
// user utterance requires delegation, and drives the task lifecycle
// (§4.2).
package facilitator

import (
	"sort"
	"sync"
	"time"
)

// defaultStaleAfter is the presence sweep window (§4.2): an agent with no
// heartbeat in this long is dropped from the registry.
const defaultStaleAfter = 30 * time.Second

// facilitatorAgentID is the Facilitator's own identity on the heartbeat
// topic. It is never a valid registry entry (§4.2: "The Facilitator's own
// identity is never an assignable agent") — the Facilitator publishes a
// heartbeat on the same wildcard it subscribes to, so without this
// exclusion its own heartbeat would self-register as a delegable agent.
const facilitatorAgentID = "facilitator"

// AgentInfo is one registry entry: an agent the Facilitator currently
// believes is online and delegable to.
type AgentInfo struct {
	ID            string
	Description   string
	LastHeartbeat time.Time
}

// Registry is the Facilitator's sole source of truth for "who can be
// delegated to." It is process-local, in-memory, and single-owner — state
// is volatile per process, reconstructed entirely from heartbeats, and is
// never persisted across restarts.
type Registry struct {
	mu         sync.Mutex
	agents     map[string]*AgentInfo
	staleAfter time.Duration
}

// NewRegistry returns an empty Registry. staleAfter <= 0 uses the 30s
// default from §4.2.
func NewRegistry(staleAfter time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Registry{
		agents:     make(map[string]*AgentInfo),
		staleAfter: staleAfter,
	}
}

// Upsert records a heartbeat for agentID, refreshing its description and
// last-seen timestamp. A heartbeat from facilitatorAgentID is dropped: the
// Facilitator's own presence must never become a delegation target.
func (r *Registry) Upsert(agentID, description string, ts time.Time) {
	if agentID == facilitatorAgentID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agentID] = &AgentInfo{ID: agentID, Description: description, LastHeartbeat: ts}
}

// Get returns the registry entry for agentID, if present.
func (r *Registry) Get(agentID string) (AgentInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[agentID]
	if !ok {
		return AgentInfo{}, false
	}
	return *a, true
}

// Sweep drops every entry whose last heartbeat is older than staleAfter
// as of now, returning the IDs dropped. Callers invoke this periodically
// (e.g. alongside the Facilitator's own 5s heartbeat tick).
func (r *Registry) Sweep(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []string
	for id, a := range r.agents {
		if now.Sub(a.LastHeartbeat) > r.staleAfter {
			delete(r.agents, id)
			dropped = append(dropped, id)
		}
	}
	return dropped
}

// Active returns a stable-ordered snapshot of every currently registered
// agent.
func (r *Registry) Active() []AgentInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AgentInfo, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
