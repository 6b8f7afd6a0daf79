package oracle

import (
	"context"
	"fmt"
	"strings"
)

const condenseSystemPrompt = "You maintain a rolling summary of a moderated multi-agent chat room. " +
	"Fold the new messages into the previous summary, preserving every decision and outcome. " +
	"Reply with the updated summary only, 3-6 sentences, no preamble."

// Condense asks the oracle for new_summary = condense(prev, tail), the
// Summarizer's condensation round step 3 (§4.4). tail lines are already
// formatted by the caller's token-budgeted assembly.
func Condense(ctx context.Context, p Provider, model string, prev string, tail []string) (string, error) {
	var body strings.Builder
	if prev != "" {
		body.WriteString("Previous summary:\n")
		body.WriteString(prev)
		body.WriteString("\n\n")
	}
	body.WriteString("New messages:\n")
	body.WriteString(strings.Join(tail, "\n"))

	resp, err := p.Complete(ctx, CompletionRequest{
		Model:     model,
		Messages:  []Message{{Role: RoleSystem, Content: condenseSystemPrompt}, {Role: RoleUser, Content: body.String()}},
		MaxTokens: 512,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: condense: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
