// Package agent implements the Specialist Agent: a stateful worker that
// executes one task at a time from a bounded private inbox, emitting
// bounded disclosures to public_candidates under the Facilitator's grant
// (§4.3).
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
)

// defaultQueueDepth is the bounded inbox depth (§4.3): a new task arriving
// while the queue is full evicts the oldest queued (not in-flight) task.
const defaultQueueDepth = 4

// ExecuteFunc performs the opaque domain work for one task. disclose lets
// the executor emit zero or more interim disclosures before returning its
// final result payload (text plus whether the task failed).
type ExecuteFunc func(ctx context.Context, task envelope.TaskPayload, disclose func(messageType string, content interface{}) error) (resultText string, failed bool)

// PublishFunc emits a disclosure envelope to public_candidates.
type PublishFunc func(env *envelope.Envelope) error

// Agent is the Specialist Agent's single-worker task pipeline.
type Agent struct {
	id      string
	roomID  string
	execute ExecuteFunc
	publish PublishFunc
	now     func() time.Time

	mu        sync.Mutex
	queue     []envelope.TaskPayload
	queueCap  int
	current   string
	disclosed int
}

// New returns an Agent identified by id, publishing into roomID. queueCap
// <= 0 uses the 4-task default from §4.3.
func New(id, roomID string, queueCap int, execute ExecuteFunc, publish PublishFunc) *Agent {
	if queueCap <= 0 {
		queueCap = defaultQueueDepth
	}
	return &Agent{
		id:       id,
		roomID:   roomID,
		execute:  execute,
		publish:  publish,
		now:      time.Now,
		queueCap: queueCap,
	}
}

func (a *Agent) self() envelope.From {
	return envelope.From{Kind: envelope.KindAgent, ID: a.id}
}

// QueueDepth reports the number of tasks currently waiting (excluding any
// task in flight).
func (a *Agent) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// CurrentTaskID reports the task_id being executed, or "" if idle.
func (a *Agent) CurrentTaskID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// DisclosuresEmitted reports the running count of disclosures published
// across every task this process has executed, for the health surface.
func (a *Agent) DisclosuresEmitted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disclosed
}

// Enqueue accepts a freshly dispatched task. If the bounded queue is full
// the oldest queued task is dropped with a log warning — there is no
// public side effect since tasks are private to this agent (§4.3).
func (a *Agent) Enqueue(task envelope.TaskPayload) {
	a.mu.Lock()
	if len(a.queue) >= a.queueCap {
		dropped := a.queue[0]
		a.queue = a.queue[1:]
		slog.Warn("agent: task queue full, dropping oldest", "agent_id", a.id, "dropped_task_id", dropped.TaskID, "incoming_task_id", task.TaskID)
	}
	a.queue = append(a.queue, task)
	a.mu.Unlock()
}

// RunLoop drains the queue serially, executing one task at a time, until
// ctx is cancelled. Intended to run in its own goroutine.
func (a *Agent) RunLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, ok := a.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		a.runTask(ctx, task)
	}
}

func (a *Agent) dequeue() (envelope.TaskPayload, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return envelope.TaskPayload{}, false
	}
	task := a.queue[0]
	a.queue = a.queue[1:]
	a.current = task.TaskID
	return task, true
}

// runTask executes the §4.3 task lifecycle: ack, domain work with interim
// disclosures, exactly one terminal result.
func (a *Agent) runTask(ctx context.Context, task envelope.TaskPayload) {
	defer func() {
		a.mu.Lock()
		a.current = ""
		a.mu.Unlock()
	}()

	if err := a.discloseRaw(task.TaskID, "ack", ackContent()); err != nil {
		slog.Error("agent: publish ack failed", "agent_id", a.id, "task_id", task.TaskID, "err", err)
	}

	disclose := func(messageType string, content interface{}) error {
		return a.discloseRaw(task.TaskID, messageType, content)
	}

	resultText, failed := a.executeWithRecover(ctx, task, disclose)

	resultContent := map[string]interface{}{"text": resultText, "failed": failed}
	if failed {
		slog.Warn("agent: task failed", "agent_id", a.id, "task_id", task.TaskID)
	}
	if err := a.discloseRaw(task.TaskID, "result", resultContent); err != nil {
		slog.Error("agent: publish result failed", "agent_id", a.id, "task_id", task.TaskID, "err", err)
	}
}

// executeWithRecover runs the domain executor, converting a panic into a
// failed result so a single bad task never takes down the agent process
// (§4.3: "An agent never crashes the room").
func (a *Agent) executeWithRecover(ctx context.Context, task envelope.TaskPayload, disclose func(string, interface{}) error) (text string, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent: task executor panicked", "agent_id", a.id, "task_id", task.TaskID, "recovered", r)
			text = fmt.Sprintf("internal error executing task: %v", r)
			failed = true
		}
	}()
	return a.execute(ctx, task, disclose)
}

func ackContent() interface{} {
	return map[string]string{"text": "task received, starting work"}
}

func marshalContent(content interface{}) (json.RawMessage, error) {
	if raw, ok := content.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(content)
}

func (a *Agent) discloseRaw(taskID, messageType string, content interface{}) error {
	now := a.now()
	payload := envelope.ResultPayload{TaskID: taskID, MessageType: messageType}

	raw, err := marshalContent(content)
	if err != nil {
		return fmt.Errorf("agent: marshal disclosure content: %w", err)
	}
	payload.Content = raw

	env, err := envelope.New(envelope.TypeResult, a.roomID, a.self(), now, payload)
	if err != nil {
		return fmt.Errorf("agent: build disclosure envelope: %w", err)
	}
	if err := a.publish(env); err != nil {
		return fmt.Errorf("agent: publish disclosure: %w", err)
	}
	a.mu.Lock()
	a.disclosed++
	a.mu.Unlock()
	return nil
}

// Heartbeat builds this agent's periodic presence envelope (§4.3: every
// 5s on the agent's heartbeat topic).
func (a *Agent) Heartbeat(description string) (*envelope.Envelope, error) {
	now := a.now()
	return envelope.New(envelope.TypeHeartbeat, a.roomID, a.self(), now, envelope.HeartbeatPayload{
		TS:          now.Unix(),
		Description: description,
	})
}
