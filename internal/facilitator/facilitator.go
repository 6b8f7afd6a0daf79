package facilitator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/oracle"
	"github.com/agentopsroom/aor/internal/schema"
)

// Default mic_grant sizing for a freshly delegated task (§4.2 step 3b).
const (
	defaultMaxMessages = 10
	defaultGrantTTL    = 300 * time.Second
)

// PublishFunc republishes a facilitator-authored envelope to public.
type PublishFunc func(env *envelope.Envelope) error

// InboxPublishFunc dispatches a task envelope to one agent's private
// inbox.
type InboxPublishFunc func(agentID string, env *envelope.Envelope) error

// Facilitator implements §4.2: per-utterance delegation decisions, task
// dispatch ordering, completion detection, and registry/heartbeat upkeep.
// All mutable state (Registry, TaskStore, TailBuffer) is owned by the
// single goroutine that calls Facilitator's Handle* methods — there is no
// internal locking beyond what those owned types already provide for
// their own read paths.
type Facilitator struct {
	roomID  string
	model   string
	guard   *IntentGuard
	tasks   *TaskStore
	reg     *Registry
	tail    *TailBuffer
	now     func() time.Time
	public  PublishFunc
	inbox   InboxPublishFunc
	control PublishFunc
}

// New constructs a Facilitator for roomID. publicFn republishes the
// Facilitator's own say envelopes to public; inboxFn dispatches task
// envelopes; controlFn publishes mic_grant envelopes to control.
func New(roomID, model string, guard *IntentGuard, tasks *TaskStore, reg *Registry, tail *TailBuffer,
	publicFn PublishFunc, inboxFn InboxPublishFunc, controlFn PublishFunc) *Facilitator {
	return &Facilitator{
		roomID:  roomID,
		model:   model,
		guard:   guard,
		tasks:   tasks,
		reg:     reg,
		tail:    tail,
		now:     time.Now,
		public:  publicFn,
		inbox:   inboxFn,
		control: controlFn,
	}
}

func (f *Facilitator) self() envelope.From {
	return envelope.From{Kind: envelope.KindSystem, ID: facilitatorAgentID}
}

// HandleHeartbeat upserts the sending agent in the registry.
func (f *Facilitator) HandleHeartbeat(env *envelope.Envelope) error {
	hb, err := env.AsHeartbeat()
	if err != nil {
		return fmt.Errorf("facilitator: handle heartbeat: %w", err)
	}
	f.reg.Upsert(env.From.ID, hb.Description, time.Unix(hb.TS, 0))
	return nil
}

// SweepRegistry drops agents whose heartbeat has gone stale and cancels
// any of their tasks still in flight — a dropped agent will never publish
// the disclosures that would otherwise move those tasks to a terminal
// state. Intended to be called alongside the Facilitator's own 5s
// heartbeat tick.
func (f *Facilitator) SweepRegistry() []string {
	dropped := f.reg.Sweep(f.now())
	for _, agentID := range dropped {
		f.tasks.Cancel(agentID)
	}
	return dropped
}

// HandlePublic processes one envelope observed on rooms/{room}/public: it
// always records the envelope into the tail buffer for future oracle
// context, then applies type-specific behavior (user utterances trigger a
// delegation decision; result disclosures drive completion detection).
func (f *Facilitator) HandlePublic(ctx context.Context, env *envelope.Envelope) error {
	f.tail.ObservePublic(env)

	switch env.Type {
	case envelope.TypeSay:
		if env.From.Kind == envelope.KindUser {
			return f.handleUserSay(ctx, env)
		}
		return nil
	case envelope.TypeResult:
		return f.handleResult(env)
	default:
		return nil
	}
}

// HandleSummary adopts a freshly published summary into the tail buffer.
func (f *Facilitator) HandleSummary(env *envelope.Envelope) error {
	payload, err := env.AsSummary()
	if err != nil {
		return fmt.Errorf("facilitator: handle summary: %w", err)
	}
	f.tail.ObserveSummary(payload)
	return nil
}

func (f *Facilitator) handleUserSay(ctx context.Context, env *envelope.Envelope) error {
	say, err := env.AsSay()
	if err != nil {
		return fmt.Errorf("facilitator: handle say: %w", err)
	}

	summaryText, tailLines := f.tail.Snapshot()
	agents := make([]oracle.AgentInfo, 0)
	for _, a := range f.reg.Active() {
		agents = append(agents, oracle.AgentInfo{ID: a.ID, Description: a.Description})
	}

	decision, err := f.guard.Decide(ctx, oracle.DecideRequest{
		Summary:     summaryText,
		Tail:        tailLines,
		Agents:      agents,
		UserMessage: say.Text,
	})
	if err != nil {
		// §5: an oracle-call failure/timeout yields a direct_reply apology
		// rather than silence.
		slog.Warn("facilitator: oracle call failed; falling back to apology", "err", err)
		decision = apology("Sorry, I'm having trouble reaching the assistant right now. Please try again shortly.")
	}

	switch decision.Kind {
	case oracle.KindDirectReply:
		return f.publishSay(decision.Text)
	case oracle.KindDelegate:
		return f.delegate(decision)
	default:
		slog.Warn("facilitator: oracle returned unrecognized decision kind; treating as apology", "kind", decision.Kind)
		return f.publishSay("Sorry, I wasn't able to understand that request.")
	}
}

// delegate implements §4.2 step 3: task published before mic_grant,
// both before any user-facing say.
func (f *Facilitator) delegate(decision *oracle.Decision) error {
	now := f.now()
	taskID := envelope.NewID()

	taskEnv, err := envelope.New(envelope.TypeTask, f.roomID, f.self(), now, envelope.TaskPayload{
		TaskID:   taskID,
		Goal:     decision.Goal,
		Format:   decision.Format,
		Deadline: decision.Deadline,
	})
	if err != nil {
		return fmt.Errorf("facilitator: build task envelope: %w", err)
	}
	if err := f.inbox(decision.AgentID, taskEnv); err != nil {
		return fmt.Errorf("facilitator: dispatch task: %w", err)
	}

	grantEnv, err := envelope.New(envelope.TypeMicGrant, f.roomID, f.self(), now, envelope.MicGrantPayload{
		TaskID:              taskID,
		AgentID:             decision.AgentID,
		MaxMessages:         defaultMaxMessages,
		AllowedMessageTypes: schema.KnownMessageTypes(),
		ExpiresAt:           now.Add(defaultGrantTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("facilitator: build mic_grant envelope: %w", err)
	}
	if err := f.control(grantEnv); err != nil {
		return fmt.Errorf("facilitator: publish mic_grant: %w", err)
	}

	f.tasks.Dispatch(taskID, decision.AgentID, decision.Goal, now)

	return f.publishSay(fmt.Sprintf("I've asked %s to help with that.", decision.AgentID))
}

func (f *Facilitator) handleResult(env *envelope.Envelope) error {
	result, err := env.AsResult()
	if err != nil {
		return fmt.Errorf("facilitator: handle result: %w", err)
	}
	status, justTerminated := f.tasks.ObserveDisclosure(result.TaskID, result.MessageType, disclosureFailed(result.Content))
	if status == "" {
		// Not a task this Facilitator dispatched; ignore.
		return nil
	}
	if justTerminated {
		if status == StatusFailed {
			return f.publishSay(fmt.Sprintf("Task %s failed: %s", result.TaskID, summarizeContent(result.Content)))
		}
		return f.publishSay(fmt.Sprintf("Task %s finished: %s", result.TaskID, summarizeContent(result.Content)))
	}
	return nil
}

// disclosureFailed reports whether a "result"-typed disclosure's content
// carries the agent's own failed flag (agent.go sets this on every
// terminal disclosure). A disclosure with no such field, or not valid
// JSON, is treated as a success.
func disclosureFailed(content json.RawMessage) bool {
	var generic struct {
		Failed bool `json:"failed"`
	}
	if err := json.Unmarshal(content, &generic); err != nil {
		return false
	}
	return generic.Failed
}

func (f *Facilitator) publishSay(text string) error {
	if f.public == nil {
		return nil
	}
	env, err := envelope.New(envelope.TypeSay, f.roomID, f.self(), f.now(), envelope.SayPayload{Text: text})
	if err != nil {
		return fmt.Errorf("facilitator: build say envelope: %w", err)
	}
	if err := f.public(env); err != nil {
		return fmt.Errorf("facilitator: publish say: %w", err)
	}
	return nil
}

// Heartbeat builds the Facilitator's own heartbeat envelope (§4.2: "The
// Facilitator itself emits a heartbeat every 5s on its own heartbeat
// topic").
func (f *Facilitator) Heartbeat(description string) (*envelope.Envelope, error) {
	now := f.now()
	return envelope.New(envelope.TypeHeartbeat, f.roomID, f.self(), now, envelope.HeartbeatPayload{
		TS:          now.Unix(),
		Description: description,
	})
}
