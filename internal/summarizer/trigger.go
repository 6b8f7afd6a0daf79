package summarizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/oracle"
)

// defaultTriggerCount is N in "after every N observed result-typed
// completions on public, run one condensation round" (§4.4).
const defaultTriggerCount = 3

// PublishFunc emits the Summarizer's summary envelope to
// rooms/{room}/summary.
type PublishFunc func(env *envelope.Envelope) error

// tailEntry is one approved envelope observed after the current
// covers_until_ts.
type tailEntry struct {
	ts   int64
	line string
}

// Summarizer owns the rolling summary_text/covers_until_ts state and
// triggers a condensation round after every N observed result
// completions, rather than the teacher's periodic timer (§4.4).
type Summarizer struct {
	roomID        string
	model         string
	provider      oracle.Provider
	publish       PublishFunc
	triggerEvery  int
	maxPromptToks int
	now           func() time.Time

	mu            sync.Mutex
	summaryText   string
	coversUntilTS int64
	tail          []tailEntry
	sinceTrigger  int
	totalAbsorbed int
}

// New returns a Summarizer for roomID. triggerEvery <= 0 uses the default
// N=3; maxPromptTokens <= 0 uses DefaultMaxPromptTokens.
func New(roomID, model string, provider oracle.Provider, publish PublishFunc, triggerEvery, maxPromptTokens int) *Summarizer {
	if triggerEvery <= 0 {
		triggerEvery = defaultTriggerCount
	}
	if maxPromptTokens <= 0 {
		maxPromptTokens = DefaultMaxPromptTokens
	}
	return &Summarizer{
		roomID:        roomID,
		model:         model,
		provider:      provider,
		publish:       publish,
		triggerEvery:  triggerEvery,
		maxPromptToks: maxPromptTokens,
		now:           time.Now,
	}
}

func (s *Summarizer) self() envelope.From {
	return envelope.From{Kind: envelope.KindSystem, ID: "summarizer"}
}

// ObservePublic records an approved envelope and, if it is a result
// disclosure whose message_type is "result" (the task-terminating
// disclosure, not an interim one), advances the completion counter and
// runs a condensation round once the counter reaches triggerEvery.
func (s *Summarizer) ObservePublic(ctx context.Context, env *envelope.Envelope) error {
	s.mu.Lock()
	if env.TS > s.coversUntilTS {
		s.tail = append(s.tail, tailEntry{ts: env.TS, line: formatForOracle(env)})
	}

	isCompletion := false
	if env.Type == envelope.TypeResult {
		if rp, err := env.AsResult(); err == nil && rp.MessageType == "result" {
			isCompletion = true
		}
	}
	if isCompletion {
		s.sinceTrigger++
	}
	shouldRun := s.sinceTrigger >= s.triggerEvery
	s.mu.Unlock()

	if shouldRun {
		return s.Condense(ctx)
	}
	return nil
}

// Condense runs one condensation round unconditionally: prev = current
// summary_text, tail = every observed envelope after covers_until_ts, ask
// the oracle for the new summary, advance covers_until_ts to the latest
// tail timestamp, reset the trigger counter, and publish (§4.4 steps 1-4).
// The published message_count is cumulative across every round this
// Summarizer has run, not just the envelopes absorbed this round.
func (s *Summarizer) Condense(ctx context.Context) error {
	s.mu.Lock()
	prev := s.summaryText
	tailLines := make([]string, len(s.tail))
	var maxTS int64
	for i, e := range s.tail {
		tailLines[i] = e.line
		if e.ts > maxTS {
			maxTS = e.ts
		}
	}
	roundCount := len(s.tail)
	s.mu.Unlock()

	if roundCount == 0 {
		// Nothing new since the last summary; nothing to condense.
		return nil
	}

	trimmedPrev, tailForPrompt := AssembleBudget(prev, tailLines, s.maxPromptToks)

	newSummary, err := oracle.Condense(ctx, s.provider, s.model, trimmedPrev, tailForPrompt)
	if err != nil {
		return fmt.Errorf("summarizer: condense: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	s.summaryText = newSummary
	s.coversUntilTS = maxTS
	s.sinceTrigger = 0
	s.tail = nil
	s.totalAbsorbed += roundCount
	totalAbsorbed := s.totalAbsorbed
	s.mu.Unlock()

	summaryEnv, err := envelope.New(envelope.TypeSummary, s.roomID, s.self(), now, envelope.SummaryPayload{
		SummaryText:   newSummary,
		CoversUntilTS: maxTS,
		MessageCount:  totalAbsorbed,
		GeneratedAt:   now.Unix(),
	})
	if err != nil {
		return fmt.Errorf("summarizer: build summary envelope: %w", err)
	}
	if err := s.publish(summaryEnv); err != nil {
		return fmt.Errorf("summarizer: publish summary: %w", err)
	}
	return nil
}

// SummaryText returns the current rolling summary, for tests and
// introspection.
func (s *Summarizer) SummaryText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryText
}

// CoversUntilTS returns the current covers_until_ts.
func (s *Summarizer) CoversUntilTS() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coversUntilTS
}

func formatForOracle(env *envelope.Envelope) string {
	switch env.Type {
	case envelope.TypeSay:
		if say, err := env.AsSay(); err == nil {
			return fmt.Sprintf("%s (%s): %s", env.From.ID, env.From.Kind, say.Text)
		}
	case envelope.TypeResult:
		if result, err := env.AsResult(); err == nil {
			return fmt.Sprintf("%s [%s/%s]: %s", env.From.ID, result.TaskID, result.MessageType, string(result.Content))
		}
	}
	return fmt.Sprintf("%s (%s/%s)", env.From.ID, env.Type, env.ID)
}
