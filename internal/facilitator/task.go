package facilitator

import (
	"sync"
	"time"
)

// Status is a task's position in its lifecycle (§3.3, §4.2).
type Status string

const (
	StatusDispatched Status = "dispatched"
	StatusAcked      Status = "acked"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// terminal reports whether a status is one of the lifecycle's terminal
// states, past which no further disclosure or cancellation can move it.
func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the Facilitator's view of one delegated unit of work, keyed by
// task_id (§3.3).
type Task struct {
	TaskID       string
	AgentID      string
	Goal         string
	Status       Status
	DispatchedAt time.Time
}

// TaskStore tracks every task the Facilitator has dispatched, transitioning
// status as disclosures arrive on public (§4.2 completion detection).
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewTaskStore returns an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*Task)}
}

// Dispatch records a freshly delegated task in status Dispatched.
func (s *TaskStore) Dispatch(taskID, agentID, goal string, now time.Time) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Task{TaskID: taskID, AgentID: agentID, Goal: goal, Status: StatusDispatched, DispatchedAt: now}
	s.tasks[taskID] = t
	return t
}

// Get returns the task for taskID, if tracked.
func (s *TaskStore) Get(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// ObserveDisclosure applies a disclosure's message_type to the named
// task's lifecycle: an "ack" moves Dispatched -> Acked; a "result" moves
// Dispatched|Acked -> Completed, or -> Failed when the disclosing agent
// reported failure. It reports the resulting status and whether this
// observation is the one that moved the task into a terminal state (so
// the caller fires its "MAY follow up with a say" exactly once).
func (s *TaskStore) ObserveDisclosure(taskID, messageType string, failed bool) (status Status, justTerminated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return "", false
	}

	switch messageType {
	case "ack":
		if t.Status == StatusDispatched {
			t.Status = StatusAcked
		}
	case "result":
		if !t.Status.terminal() {
			if failed {
				t.Status = StatusFailed
			} else {
				t.Status = StatusCompleted
			}
			return t.Status, true
		}
	}
	return t.Status, false
}

// Cancel moves every non-terminal task assigned to agentID to Cancelled,
// returning the task IDs it cancelled. Facilitator.SweepRegistry calls it
// when an agent's heartbeat goes stale (§4.2 registry sweep).
func (s *TaskStore) Cancel(agentID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cancelled []string
	for id, t := range s.tasks {
		if t.AgentID == agentID && !t.Status.terminal() {
			t.Status = StatusCancelled
			cancelled = append(cancelled, id)
		}
	}
	return cancelled
}
