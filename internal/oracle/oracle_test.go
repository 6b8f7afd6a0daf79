package oracle_test

import (
	"context"
	"testing"

	"github.com/agentopsroom/aor/internal/oracle"
)

type fakeProvider struct {
	content  string
	lastReq  oracle.CompletionRequest
	err      error
}

func (f *fakeProvider) Complete(_ context.Context, req oracle.CompletionRequest) (*oracle.CompletionResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &oracle.CompletionResponse{Message: oracle.Message{Role: oracle.RoleAssistant, Content: f.content}}, nil
}

func TestDecide_DirectReply(t *testing.T) {
	p := &fakeProvider{content: `{"kind":"direct_reply","text":"sure thing"}`}
	d, err := oracle.Decide(context.Background(), p, oracle.DecideRequest{
		UserMessage: "what's the status?",
		Agents:      []oracle.AgentInfo{{ID: "researcher", Description: "does research"}},
	})
	if err != nil {
		t.Fatalf("Decide: unexpected error: %v", err)
	}
	if d.Kind != oracle.KindDirectReply || d.Text != "sure thing" {
		t.Errorf("Decide: got %+v", d)
	}
	if !p.lastReq.JSONMode {
		t.Error("Decide: expected JSONMode request")
	}
}

func TestDecide_Delegate(t *testing.T) {
	p := &fakeProvider{content: `{"kind":"delegate","agent_id":"researcher","goal":"find the root cause"}`}
	d, err := oracle.Decide(context.Background(), p, oracle.DecideRequest{UserMessage: "investigate the outage"})
	if err != nil {
		t.Fatalf("Decide: unexpected error: %v", err)
	}
	if d.Kind != oracle.KindDelegate || d.AgentID != "researcher" || d.Goal != "find the root cause" {
		t.Errorf("Decide: got %+v", d)
	}
}

func TestDecide_MalformedJSON(t *testing.T) {
	p := &fakeProvider{content: `not json`}
	if _, err := oracle.Decide(context.Background(), p, oracle.DecideRequest{UserMessage: "hi"}); err == nil {
		t.Error("Decide: expected error for malformed oracle output, got nil")
	}
}

func TestCondense_IncludesPrevAndTail(t *testing.T) {
	p := &fakeProvider{content: "  condensed summary  "}
	got, err := oracle.Condense(context.Background(), p, "gpt-4o-mini", "prior summary", []string{"user: hi", "agent: hello"})
	if err != nil {
		t.Fatalf("Condense: unexpected error: %v", err)
	}
	if got != "condensed summary" {
		t.Errorf("Condense: got %q, want trimmed content", got)
	}
	if len(p.lastReq.Messages) != 2 {
		t.Fatalf("Condense: expected 2 messages, got %d", len(p.lastReq.Messages))
	}
	if p.lastReq.JSONMode {
		t.Error("Condense: expected JSONMode false for free-form prose")
	}
}
