// Package summarizer maintains the rolling summary that, combined with
// the tail of approved messages after covers_until_ts, losslessly
// represents the conversation (§4.4).
package summarizer

import (
	"strings"
)

// DefaultMaxPromptTokens bounds the combined prev+tail prompt sent to the
// oracle. The tail has unconditional priority; prev is trimmed from the
// front only if the budget is tight, since dropping tail content would
// violate the zero-loss invariant.
const DefaultMaxPromptTokens = 8000

// AssembleBudget produces the (prev, tail) pair to hand to oracle.Condense,
// trimming prev from the front to fit maxTokens. tail is never trimmed.
// Grounded on the teacher's ContextAssembler.assembleWithBudget, with STM's
// unconditional priority re-mapped onto tail (the un-folded, authoritative
// history) instead of the active conversation buffer.
func AssembleBudget(prev string, tail []string, maxTokens int) (trimmedPrev string, tailOut []string) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxPromptTokens
	}

	tailTokens := estimateTokens(strings.Join(tail, "\n"))
	remaining := maxTokens - tailTokens
	if remaining < 0 {
		remaining = 0
	}

	trimmedPrev = trimToTokenBudget(prev, remaining)
	return trimmedPrev, tail
}

// trimToTokenBudget drops whitespace-delimited tokens from the front of s
// until it fits within budget.
func trimToTokenBudget(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= budget {
		return s
	}
	return strings.Join(words[len(words)-budget:], " ")
}

// estimateTokens uses the same whitespace-token heuristic the teacher's
// memory package uses: good enough to budget a prompt, not a real
// tokenizer.
func estimateTokens(s string) int {
	return len(strings.Fields(s))
}
