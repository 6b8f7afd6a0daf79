package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DecisionKind discriminates a Decide response (§4.2).
type DecisionKind string

const (
	KindDirectReply DecisionKind = "direct_reply"
	KindDelegate    DecisionKind = "delegate"
)

// Decision is the Facilitator's per-utterance decision, produced by
// unmarshalling the oracle's JSON-mode response directly.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	Text     string       `json:"text,omitempty"`
	AgentID  string       `json:"agent_id,omitempty"`
	Goal     string       `json:"goal,omitempty"`
	Format   string       `json:"format,omitempty"`
	Deadline *int64       `json:"deadline,omitempty"`
}

// AgentInfo describes one registry entry for the oracle's prompt, kept
// independent of internal/facilitator's own Agent type to avoid a
// facilitator->oracle->facilitator import cycle.
type AgentInfo struct {
	ID          string
	Description string
}

// DecideRequest bundles the inputs §4.2 step 1 requires: the latest
// summary (if any), the tail of public since covers_until_ts, the active
// registry excluding self, and the user message.
type DecideRequest struct {
	Model       string
	Summary     string
	Tail        []string
	Agents      []AgentInfo
	UserMessage string
	MaxTokens   int
}

const decideSystemPromptTemplate = `You are the facilitator of a moderated multi-agent chat room.
For every user message, decide whether to answer directly or delegate to a specialist agent.

Available agents:
%s

Respond with a single JSON object, no prose, matching exactly one of:
  {"kind":"direct_reply","text":"..."}
  {"kind":"delegate","agent_id":"...","goal":"...","format":"...","deadline":1234567890}

"format" and "deadline" are optional. Only delegate to an agent_id from the list above.`

// Decide queries the oracle for a direct_reply/delegate decision and
// parses its JSON-mode response. Decide does not validate agent_id
// against the registry or sanity-check Goal — that is IntentGuard's job,
// one layer up, mirroring the "never trust raw oracle output verbatim"
// posture applied at the Facilitator boundary.
func Decide(ctx context.Context, p Provider, req DecideRequest) (*Decision, error) {
	var agentLines strings.Builder
	if len(req.Agents) == 0 {
		agentLines.WriteString("(none currently online)")
	}
	for _, a := range req.Agents {
		fmt.Fprintf(&agentLines, "- %s: %s\n", a.ID, a.Description)
	}

	messages := []Message{
		{Role: RoleSystem, Content: fmt.Sprintf(decideSystemPromptTemplate, agentLines.String())},
	}
	if req.Summary != "" {
		messages = append(messages, Message{Role: RoleUser, Content: "Conversation summary so far:\n" + req.Summary})
	}
	if len(req.Tail) > 0 {
		messages = append(messages, Message{Role: RoleUser, Content: "Recent messages:\n" + strings.Join(req.Tail, "\n")})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.UserMessage})

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 300
	}

	resp, err := p.Complete(ctx, CompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: maxTokens,
		JSONMode:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: decide: %w", err)
	}

	var d Decision
	if err := json.Unmarshal([]byte(resp.Message.Content), &d); err != nil {
		return nil, fmt.Errorf("oracle: decide: parse response: %w", err)
	}
	return &d, nil
}
