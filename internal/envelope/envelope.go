// Package envelope defines the canonical wire message that flows across
// every AOR topic. A single Envelope type carries say/task/mic_grant/
// mic_revoke/heartbeat/result/reject/summary traffic; the payload shape is
// discriminated by Type and decoded lazily by the typed As* accessors, the
// same "one wire shape, many logical payloads" idiom the transport's
// predecessor used for its Matrix events.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the envelope payload shape (§3.1, §6.2).
type Type string

const (
	TypeSay       Type = "say"
	TypeTask      Type = "task"
	TypeMicGrant  Type = "mic_grant"
	TypeMicRevoke Type = "mic_revoke"
	TypeHeartbeat Type = "heartbeat"
	TypeResult    Type = "result"
	TypeReject    Type = "reject"
	TypeSummary   Type = "summary"
)

func (t Type) valid() bool {
	switch t {
	case TypeSay, TypeTask, TypeMicGrant, TypeMicRevoke, TypeHeartbeat, TypeResult, TypeReject, TypeSummary:
		return true
	default:
		return false
	}
}

// Kind discriminates the sender of an envelope.
type Kind string

const (
	KindUser   Kind = "user"
	KindAgent  Kind = "agent"
	KindSystem Kind = "system"
)

// From identifies an envelope's sender.
type From struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

// Envelope is the canonical message carried over every room topic.
// Envelopes are immutable after send: the Gateway republishes an approved
// candidate byte-identical (same ID, TS, From) and never rewrites it (I4).
type Envelope struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	RoomID  string          `json:"room_id"`
	From    From            `json:"from"`
	TS      int64           `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an Envelope with a fresh UUID and the given wall-clock
// timestamp, marshalling payload into the Payload field.
func New(typ Type, roomID string, from From, ts time.Time, payload interface{}) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	return &Envelope{
		ID:      uuid.NewString(),
		Type:    typ,
		RoomID:  roomID,
		From:    from,
		TS:      ts.Unix(),
		Payload: raw,
	}, nil
}

// NewID returns a fresh globally-unique identifier, used for task IDs and
// any other opaque key the spec calls for outside of envelope IDs.
func NewID() string {
	return uuid.NewString()
}

// Validate checks that an Envelope is structurally valid at the outer-layer
// level (id/type/room/from/ts present). It does not validate the payload
// shape for the declared Type — that is the schema package's and the
// Gateway's job.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("envelope must not be nil")
	}
	if e.ID == "" {
		return fmt.Errorf("id must not be empty")
	}
	if e.Type == "" {
		return fmt.Errorf("type must not be empty")
	}
	if !e.Type.valid() {
		return fmt.Errorf("unknown type %q", e.Type)
	}
	if e.RoomID == "" {
		return fmt.Errorf("room_id must not be empty")
	}
	if e.From.Kind == "" || e.From.ID == "" {
		return fmt.Errorf("from must carry a kind and an id")
	}
	if e.TS == 0 {
		return fmt.Errorf("ts must not be zero")
	}
	return nil
}

// Parse decodes a JSON-encoded Envelope and validates its outer shape. It
// is the canonical entry point for deserialising envelopes read off the
// broker; malformed input here is what produces reject{reason:malformed_envelope}
// at the Gateway boundary (§4.1 Failures).
func Parse(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("envelope: parse: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("envelope: validate: %w", err)
	}
	return &e, nil
}

// Equal reports whether two envelopes are field-for-field identical,
// including payload bytes. Used by tests asserting I4 (byte fidelity): the
// envelope republished to `public` must equal the approved candidate
// exactly.
func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.ID == o.ID &&
		e.Type == o.Type &&
		e.RoomID == o.RoomID &&
		e.From == o.From &&
		e.TS == o.TS &&
		string(e.Payload) == string(o.Payload)
}

// ── typed payload shapes (§6.2) ───────────────────────────────────────────

type SayPayload struct {
	Text string `json:"text"`
}

type TaskPayload struct {
	TaskID   string `json:"task_id"`
	Goal     string `json:"goal"`
	Format   string `json:"format,omitempty"`
	Deadline *int64 `json:"deadline,omitempty"`
}

type MicGrantPayload struct {
	TaskID              string   `json:"task_id"`
	AgentID             string   `json:"agent_id"`
	MaxMessages         int      `json:"max_messages"`
	AllowedMessageTypes []string `json:"allowed_message_types"`
	ExpiresAt           int64    `json:"expires_at"`
}

type MicRevokePayload struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
	Reason  string `json:"reason,omitempty"`
}

type HeartbeatPayload struct {
	TS          int64  `json:"ts"`
	Description string `json:"description,omitempty"`
}

// ResultPayload carries a disclosure. MessageType selects the §6.3
// sub-schema Content must satisfy (ack, finding, risk, ...); the outer
// envelope Type is always TypeResult for every disclosure including the
// task-ending one — MessageType, not Type, distinguishes "ack" from
// "result".
type ResultPayload struct {
	TaskID      string          `json:"task_id"`
	MessageType string          `json:"message_type"`
	Content     json.RawMessage `json:"content"`
}

type RejectPayload struct {
	MessageID string `json:"message_id"`
	TaskID    string `json:"task_id,omitempty"`
	Reason    string `json:"reason"`
}

type SummaryPayload struct {
	SummaryText   string `json:"summary_text"`
	CoversUntilTS int64  `json:"covers_until_ts"`
	MessageCount  int    `json:"message_count"`
	GeneratedAt   int64  `json:"generated_at"`
}

// ── typed accessors ───────────────────────────────────────────────────────
//
// Each As* method unmarshals Payload into its typed shape, returning an
// error if Type doesn't match or the payload is malformed. Modeled on the
// "one wire envelope, many logical payloads" accessor idiom the transport's
// predecessor used for event.Content.AsMessage().

func (e *Envelope) AsSay() (*SayPayload, error) {
	var p SayPayload
	return &p, e.decodeAs(TypeSay, &p)
}

func (e *Envelope) AsTask() (*TaskPayload, error) {
	var p TaskPayload
	return &p, e.decodeAs(TypeTask, &p)
}

func (e *Envelope) AsMicGrant() (*MicGrantPayload, error) {
	var p MicGrantPayload
	return &p, e.decodeAs(TypeMicGrant, &p)
}

func (e *Envelope) AsMicRevoke() (*MicRevokePayload, error) {
	var p MicRevokePayload
	return &p, e.decodeAs(TypeMicRevoke, &p)
}

func (e *Envelope) AsHeartbeat() (*HeartbeatPayload, error) {
	var p HeartbeatPayload
	return &p, e.decodeAs(TypeHeartbeat, &p)
}

func (e *Envelope) AsResult() (*ResultPayload, error) {
	var p ResultPayload
	return &p, e.decodeAs(TypeResult, &p)
}

func (e *Envelope) AsReject() (*RejectPayload, error) {
	var p RejectPayload
	return &p, e.decodeAs(TypeReject, &p)
}

func (e *Envelope) AsSummary() (*SummaryPayload, error) {
	var p SummaryPayload
	return &p, e.decodeAs(TypeSummary, &p)
}

func (e *Envelope) decodeAs(want Type, out interface{}) error {
	if e.Type != want {
		return fmt.Errorf("envelope: type %q is not %q", e.Type, want)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("envelope: decode %s payload: %w", want, err)
	}
	return nil
}
