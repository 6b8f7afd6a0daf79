// Package gateway implements the Moderation Gateway: the sole writer of
// rooms/{room}/public for agent-originated content. It evaluates every
// public_candidates submission against a deterministic, ordered rule set
// and either republishes it verbatim or rejects it with a canonical
// reason (§4.1).
package gateway

import (
	"fmt"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/schema"
)

// RejectReason is one of the canonical reasons in §6.4.
type RejectReason string

const (
	ReasonInvalidType           RejectReason = "invalid_type"
	ReasonInvalidSender         RejectReason = "invalid_sender"
	ReasonNoGrant               RejectReason = "no_grant"
	ReasonMicGrantExpired       RejectReason = "mic_grant_expired"
	ReasonMicGrantRevoked       RejectReason = "mic_grant_revoked"
	ReasonDisallowedMessageType RejectReason = "disallowed_message_type"
	ReasonQuotaExhausted        RejectReason = "quota_exhausted"
	ReasonSchemaViolation       RejectReason = "schema_violation"
	ReasonMalformedEnvelope     RejectReason = "malformed_envelope"
)

// Decision is the outcome of evaluating one candidate.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Result is the full output of evaluating one candidate. Reason is empty
// when Decision is DecisionApprove.
type Result struct {
	Decision Decision
	Reason   RejectReason
	TaskID   string
}

// GrantStatus is a mic grant's position in its lifecycle (§4.1 state
// machine: Active -> Exhausted | Expired | Revoked).
type GrantStatus int

const (
	GrantActive GrantStatus = iota
	GrantExhausted
	GrantExpired
	GrantRevoked
)

func (s GrantStatus) String() string {
	switch s {
	case GrantActive:
		return "active"
	case GrantExhausted:
		return "exhausted"
	case GrantExpired:
		return "expired"
	case GrantRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Grant is the Gateway's view of one mic grant, keyed by
// (room_id, agent_id, task_id).
type Grant struct {
	RoomID              string
	AgentID             string
	TaskID              string
	MaxMessages         int
	AllowedMessageTypes []string
	ExpiresAt           int64 // unix seconds
	UsedCount           int
	Status              GrantStatus
}

type grantKey struct {
	RoomID  string
	AgentID string
	TaskID  string
}

// Publisher republishes an approved envelope to rooms/{room}/public.
type Publisher func(env *envelope.Envelope) error

// Rejecter publishes a reject envelope to rooms/{room}/control.
type Rejecter func(roomID string, payload envelope.RejectPayload) error

// Gateway evaluates candidates and owns the mic-grant table. All mutation
// flows through ProcessCandidate/ApplyMicGrant/ApplyMicRevoke, invoked
// from the single goroutine that owns the Gateway's broker subscription
// — there is no internal locking because the Gateway never shares this
// state across goroutines, matching the spec's single-writer model.
type Gateway struct {
	schemas  *schema.Registry
	grants   map[grantKey]*Grant
	dedup    *seenCache
	publish  Publisher
	reject   Rejecter
	now      func() time.Time
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithDedupWindow overrides the default 5-minute redelivery-dedup window.
func WithDedupWindow(window time.Duration) Option {
	return func(g *Gateway) { g.dedup = newSeenCache(window) }
}

// WithClock overrides the Gateway's time source, for deterministic tests
// of expires_at handling.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New constructs a Gateway. publish is called to republish an approved
// candidate; reject is called to emit a reject envelope on failure.
func New(schemas *schema.Registry, publish Publisher, reject Rejecter, opts ...Option) *Gateway {
	g := &Gateway{
		schemas: schemas,
		grants:  make(map[grantKey]*Grant),
		dedup:   newSeenCache(defaultDedupWindow),
		publish: publish,
		reject:  reject,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ApplyMicGrant installs or replaces the grant named by a mic_grant
// envelope. Per the Open Questions decision, this always replaces the
// full Grant value for the key — it never merges with a prior grant, so
// used_count always resets to zero on a fresh mic_grant even if the prior
// grant for the same key was still Active.
func (g *Gateway) ApplyMicGrant(env *envelope.Envelope) error {
	grant, err := env.AsMicGrant()
	if err != nil {
		return fmt.Errorf("gateway: apply mic_grant: %w", err)
	}
	key := grantKey{RoomID: env.RoomID, AgentID: grant.AgentID, TaskID: grant.TaskID}
	g.grants[key] = &Grant{
		RoomID:              env.RoomID,
		AgentID:             grant.AgentID,
		TaskID:              grant.TaskID,
		MaxMessages:         grant.MaxMessages,
		AllowedMessageTypes: grant.AllowedMessageTypes,
		ExpiresAt:           grant.ExpiresAt,
		UsedCount:           0,
		Status:              GrantActive,
	}
	return nil
}

// ApplyMicRevoke marks the named grant Revoked. A revoke for a key with
// no grant, or one already in a terminal state, is a no-op: revocation
// only ever narrows what a candidate may do.
func (g *Gateway) ApplyMicRevoke(env *envelope.Envelope) error {
	revoke, err := env.AsMicRevoke()
	if err != nil {
		return fmt.Errorf("gateway: apply mic_revoke: %w", err)
	}
	key := grantKey{RoomID: env.RoomID, AgentID: revoke.AgentID, TaskID: revoke.TaskID}
	if grant, ok := g.grants[key]; ok && grant.Status == GrantActive {
		grant.Status = GrantRevoked
	}
	return nil
}

// Grant returns the current grant for (roomID, agentID, taskID), if any.
// Exposed for tests and observability; Gateway's own decision logic uses
// the unexported lookup directly.
func (g *Gateway) Grant(roomID, agentID, taskID string) (Grant, bool) {
	grant, ok := g.grants[grantKey{RoomID: roomID, AgentID: agentID, TaskID: taskID}]
	if !ok {
		return Grant{}, false
	}
	return *grant, true
}

// ProcessCandidate evaluates one public_candidates envelope against the
// ordered rule set, applies the side effect (republish or reject), and
// returns the decision reached. Redelivery of an envelope ID already
// decided within the dedup window short-circuits straight to the cached
// verdict without re-running side effects, so a QoS-1 redelivery never
// double-publishes or double-spends used_count.
func (g *Gateway) ProcessCandidate(env *envelope.Envelope) (Result, error) {
	now := g.now()

	if cached, ok := g.dedup.Get(env.ID, now); ok {
		return cached, nil
	}

	result := g.evaluate(env, now)
	g.dedup.Put(env.ID, result, now)

	switch result.Decision {
	case DecisionApprove:
		if g.publish != nil {
			if err := g.publish(env); err != nil {
				return result, fmt.Errorf("gateway: publish approved candidate: %w", err)
			}
		}
	case DecisionReject:
		if g.reject != nil {
			payload := envelope.RejectPayload{
				MessageID: env.ID,
				TaskID:    result.TaskID,
				Reason:    string(result.Reason),
			}
			if err := g.reject(env.RoomID, payload); err != nil {
				return result, fmt.Errorf("gateway: publish reject: %w", err)
			}
		}
	}
	return result, nil
}

// ProcessRawCandidate parses an undecoded public_candidates payload and
// processes it. Unlike transport.Client.Subscribe's drop-and-log behavior
// for parse failures, the Gateway never drops silently (§4.1): a payload
// that fails to parse as an Envelope at all still produces a
// malformed_envelope reject, with message_id left empty since no
// envelope ID could be recovered from the payload. Callers should wire
// this via transport.Client.SubscribeRaw rather than Subscribe so parse
// failures reach the Gateway instead of being swallowed in transport.
func (g *Gateway) ProcessRawCandidate(roomID string, payload []byte) (Result, error) {
	env, err := envelope.Parse(payload)
	if err != nil {
		result := Result{Decision: DecisionReject, Reason: ReasonMalformedEnvelope}
		if g.reject != nil {
			if rejErr := g.reject(roomID, envelope.RejectPayload{Reason: string(ReasonMalformedEnvelope)}); rejErr != nil {
				return result, fmt.Errorf("gateway: publish reject for malformed payload: %w", rejErr)
			}
		}
		return result, nil
	}
	return g.ProcessCandidate(env)
}

// evaluate runs the seven ordered rules against env, mutating the matched
// grant's UsedCount/Status on approval exactly as the first-failing-rule
// decision requires. It never publishes or rejects — that is
// ProcessCandidate's job — so it can be exercised directly in tests
// without injecting publish/reject callbacks.
func (g *Gateway) evaluate(env *envelope.Envelope, now time.Time) Result {
	// Rule 1: type == result.
	if env.Type != envelope.TypeResult {
		return Result{Decision: DecisionReject, Reason: ReasonInvalidType}
	}

	// Rule 2: from.kind == agent, from.id present.
	if env.From.Kind != envelope.KindAgent || env.From.ID == "" {
		return Result{Decision: DecisionReject, Reason: ReasonInvalidSender}
	}

	disclosure, err := env.AsResult()
	if err != nil {
		return Result{Decision: DecisionReject, Reason: ReasonMalformedEnvelope}
	}

	// Rule 3: task_id present, grant exists.
	if disclosure.TaskID == "" {
		return Result{Decision: DecisionReject, Reason: ReasonNoGrant}
	}
	key := grantKey{RoomID: env.RoomID, AgentID: env.From.ID, TaskID: disclosure.TaskID}
	grant, ok := g.grants[key]
	if !ok {
		return Result{Decision: DecisionReject, Reason: ReasonNoGrant, TaskID: disclosure.TaskID}
	}

	// Rule 4: not Revoked, not Expired (re-evaluated at decision time).
	if grant.Status == GrantRevoked {
		return Result{Decision: DecisionReject, Reason: ReasonMicGrantRevoked, TaskID: disclosure.TaskID}
	}
	if grant.Status == GrantExpired || now.Unix() >= grant.ExpiresAt {
		grant.Status = GrantExpired
		return Result{Decision: DecisionReject, Reason: ReasonMicGrantExpired, TaskID: disclosure.TaskID}
	}

	// Rule 5: message_type allowed.
	if !containsString(grant.AllowedMessageTypes, disclosure.MessageType) {
		return Result{Decision: DecisionReject, Reason: ReasonDisallowedMessageType, TaskID: disclosure.TaskID}
	}

	// Rule 6: quota not exhausted.
	if grant.UsedCount >= grant.MaxMessages {
		grant.Status = GrantExhausted
		return Result{Decision: DecisionReject, Reason: ReasonQuotaExhausted, TaskID: disclosure.TaskID}
	}

	// Rule 7: schema of payload.content matches the disclosure sub-schema.
	if g.schemas != nil {
		if err := g.schemas.Validate(disclosure.MessageType, disclosure.Content); err != nil {
			return Result{Decision: DecisionReject, Reason: ReasonSchemaViolation, TaskID: disclosure.TaskID}
		}
	}

	// Success: increment used_count atomically with the approval decision.
	grant.UsedCount++
	if grant.UsedCount == grant.MaxMessages {
		grant.Status = GrantExhausted
	}
	return Result{Decision: DecisionApprove, TaskID: disclosure.TaskID}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
