package envelope_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
)

// ── helpers ──────────────────────────────────────────────────────────────

func validSay() *envelope.Envelope {
	e, err := envelope.New(
		envelope.TypeSay,
		"room-1",
		envelope.From{Kind: envelope.KindUser, ID: "u1"},
		time.Date(2026, 2, 22, 12, 0, 0, 0, time.UTC),
		envelope.SayPayload{Text: "hello room"},
	)
	if err != nil {
		panic(err)
	}
	return e
}

// ── New / marshal / unmarshal ─────────────────────────────────────────────

func TestNew_AssignsIDAndType(t *testing.T) {
	e := validSay()
	if e.ID == "" {
		t.Error("New: expected a non-empty ID")
	}
	if e.Type != envelope.TypeSay {
		t.Errorf("Type: got %q, want %q", e.Type, envelope.TypeSay)
	}
	if e.RoomID != "room-1" {
		t.Errorf("RoomID: got %q, want %q", e.RoomID, "room-1")
	}
}

func TestEnvelope_MarshalUnmarshal_Roundtrip(t *testing.T) {
	original := validSay()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("json.Marshal: unexpected error: %v", err)
	}

	got, err := envelope.Parse(data)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}

	if !got.Equal(original) {
		t.Errorf("Parse(Marshal(x)) != x: got %+v, want %+v", got, original)
	}
}

func TestEnvelope_MarshalUnmarshal_Task(t *testing.T) {
	deadline := int64(1790000000)
	e, err := envelope.New(
		envelope.TypeTask,
		"room-1",
		envelope.From{Kind: envelope.KindAgent, ID: "facilitator"},
		time.Now().UTC(),
		envelope.TaskPayload{
			TaskID:   "task-1",
			Goal:     "summarize the thread",
			Format:   "markdown",
			Deadline: &deadline,
		},
	)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("json.Marshal: unexpected error: %v", err)
	}

	got, err := envelope.Parse(data)
	if err != nil {
		t.Fatalf("Parse: unexpected error: %v", err)
	}

	task, err := got.AsTask()
	if err != nil {
		t.Fatalf("AsTask: unexpected error: %v", err)
	}
	if task.TaskID != "task-1" {
		t.Errorf("TaskID: got %q, want %q", task.TaskID, "task-1")
	}
	if task.Goal != "summarize the thread" {
		t.Errorf("Goal: got %q, want %q", task.Goal, "summarize the thread")
	}
	if task.Deadline == nil || *task.Deadline != deadline {
		t.Errorf("Deadline: got %v, want %d", task.Deadline, deadline)
	}
}

func TestEnvelope_MarshalUnmarshal_OmitsEmptyFields(t *testing.T) {
	e, err := envelope.New(
		envelope.TypeTask,
		"room-1",
		envelope.From{Kind: envelope.KindAgent, ID: "facilitator"},
		time.Now().UTC(),
		envelope.TaskPayload{TaskID: "task-2", Goal: "do a thing"},
	)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(e.Payload, &raw); err != nil {
		t.Fatalf("json.Unmarshal: unexpected error: %v", err)
	}
	if _, present := raw["deadline"]; present {
		t.Error("expected 'deadline' key to be omitted when nil, but it was present")
	}
	if _, present := raw["format"]; present {
		t.Error("expected 'format' key to be omitted when empty, but it was present")
	}
}

// ── As* accessors ──────────────────────────────────────────────────────────

func TestAsSay_WrongType(t *testing.T) {
	e, err := envelope.New(
		envelope.TypeTask,
		"room-1",
		envelope.From{Kind: envelope.KindAgent, ID: "facilitator"},
		time.Now().UTC(),
		envelope.TaskPayload{TaskID: "task-1", Goal: "x"},
	)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}
	if _, err := e.AsSay(); err == nil {
		t.Error("AsSay: expected error for a task envelope, got nil")
	}
}

func TestAsResult_DiscriminatesByMessageType(t *testing.T) {
	e, err := envelope.New(
		envelope.TypeResult,
		"room-1",
		envelope.From{Kind: envelope.KindAgent, ID: "specialist-1"},
		time.Now().UTC(),
		envelope.ResultPayload{
			TaskID:      "task-1",
			MessageType: "finding",
			Content:     json.RawMessage(`{"summary":"found it"}`),
		},
	)
	if err != nil {
		t.Fatalf("New: unexpected error: %v", err)
	}

	result, err := e.AsResult()
	if err != nil {
		t.Fatalf("AsResult: unexpected error: %v", err)
	}
	if result.MessageType != "finding" {
		t.Errorf("MessageType: got %q, want %q", result.MessageType, "finding")
	}
}

// ── Validate ──────────────────────────────────────────────────────────────

func TestValidate_Valid(t *testing.T) {
	if err := validSay().Validate(); err != nil {
		t.Errorf("Validate: unexpected error: %v", err)
	}
}

func TestValidate_EmptyID(t *testing.T) {
	e := validSay()
	e.ID = ""
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for empty ID, got nil")
	}
}

func TestValidate_UnknownType(t *testing.T) {
	e := validSay()
	e.Type = envelope.Type("bogus")
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for unknown type, got nil")
	}
}

func TestValidate_EmptyRoomID(t *testing.T) {
	e := validSay()
	e.RoomID = ""
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for empty RoomID, got nil")
	}
}

func TestValidate_EmptyFrom(t *testing.T) {
	e := validSay()
	e.From = envelope.From{}
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for empty From, got nil")
	}
}

func TestValidate_ZeroTS(t *testing.T) {
	e := validSay()
	e.TS = 0
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for zero TS, got nil")
	}
}

func TestValidate_Nil(t *testing.T) {
	var e *envelope.Envelope
	if err := e.Validate(); err == nil {
		t.Error("Validate: expected error for nil envelope, got nil")
	}
}

// ── Parse ───────────────────────────────────────────────────────────────

func TestParse_MalformedJSON(t *testing.T) {
	_, err := envelope.Parse([]byte(`{not json`))
	if err == nil {
		t.Error("Parse: expected error for malformed JSON, got nil")
	}
}

func TestParse_MissingRoomID(t *testing.T) {
	data := []byte(`{"id":"e1","type":"say","from":{"kind":"user","id":"u1"},"ts":1790000000,"payload":{"text":"hi"}}`)
	_, err := envelope.Parse(data)
	if err == nil {
		t.Error("Parse: expected error for missing room_id, got nil")
	}
}

func TestParse_UnknownType(t *testing.T) {
	data := []byte(`{"id":"e1","type":"shout","room_id":"r1","from":{"kind":"user","id":"u1"},"ts":1790000000,"payload":{}}`)
	_, err := envelope.Parse(data)
	if err == nil {
		t.Error("Parse: expected error for unknown type, got nil")
	}
}

func TestParse_MissingTS(t *testing.T) {
	data := []byte(`{"id":"e1","type":"say","room_id":"r1","from":{"kind":"user","id":"u1"},"payload":{"text":"hi"}}`)
	_, err := envelope.Parse(data)
	if err == nil {
		t.Error("Parse: expected error for missing/zero ts, got nil")
	}
}

// ── Equal ───────────────────────────────────────────────────────────────

func TestEqual_DifferentPayloadBytes(t *testing.T) {
	a := validSay()
	b := validSay()
	b.ID = a.ID
	b.TS = a.TS
	b.Payload = json.RawMessage(`{"text":"different"}`)
	if a.Equal(b) {
		t.Error("Equal: expected false for differing payload bytes")
	}
}

func TestEqual_Identical(t *testing.T) {
	a := validSay()
	b := *a
	if !a.Equal(&b) {
		t.Error("Equal: expected true for identical envelopes")
	}
}
