package facilitator

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentopsroom/aor/internal/oracle"
)

// IntentGuard wraps an oracle.Provider with the same "never trust raw
// oracle output verbatim" posture the corpus applies at the classifier
// boundary, re-targeted from command action-key allowlisting to agent-ID
// and delegate-payload validation (§4.2 expansion).
type IntentGuard struct {
	provider oracle.Provider
	registry *Registry
	model    string
}

// NewIntentGuard returns an IntentGuard backed by provider, validating
// delegate decisions against registry.
func NewIntentGuard(provider oracle.Provider, registry *Registry, model string) *IntentGuard {
	return &IntentGuard{provider: provider, registry: registry, model: model}
}

// Decide calls oracle.Decide and then applies two downgrades before
// returning the decision to the caller:
//
//  1. A delegate naming an agent_id absent from the current registry is
//     downgraded to a direct_reply apology — dispatching a task to a
//     nonexistent agent would otherwise publish a task nobody will ever
//     pick up.
//  2. A delegate with a missing or empty goal is treated as malformed
//     oracle output and falls back to direct_reply.
//
// The error return is reserved for failure of the underlying oracle call
// itself (network error, malformed JSON); callers typically convert that
// into their own direct_reply apology per §5's timeout handling.
func (g *IntentGuard) Decide(ctx context.Context, req oracle.DecideRequest) (*oracle.Decision, error) {
	req.Model = g.model
	decision, err := oracle.Decide(ctx, g.provider, req)
	if err != nil {
		return nil, err
	}

	if decision.Kind != oracle.KindDelegate {
		return decision, nil
	}

	if strings.TrimSpace(decision.Goal) == "" {
		return apology("I couldn't quite tell what you needed help with — could you restate your request?"), nil
	}
	if _, ok := g.registry.Get(decision.AgentID); !ok {
		return apology(fmt.Sprintf("I don't have an agent named %q available right now.", decision.AgentID)), nil
	}
	return decision, nil
}

func apology(text string) *oracle.Decision {
	return &oracle.Decision{Kind: oracle.KindDirectReply, Text: text}
}
