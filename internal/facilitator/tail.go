package facilitator

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/agentopsroom/aor/internal/envelope"
)

// TailBuffer tracks the Facilitator's view of "the latest summary (if
// any)" and "the tail of public since covers_until_ts" (§4.2 step 1),
// kept in sync by observing every envelope published to public and
// summary.
type TailBuffer struct {
	mu            sync.Mutex
	summaryText   string
	coversUntilTS int64
	tail          []tailEntry
}

type tailEntry struct {
	ts   int64
	line string
}

// NewTailBuffer returns an empty TailBuffer.
func NewTailBuffer() *TailBuffer {
	return &TailBuffer{}
}

// ObservePublic appends env to the tail if it postdates the current
// covers_until_ts (entries already folded into the summary are dropped).
func (b *TailBuffer) ObservePublic(env *envelope.Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if env.TS <= b.coversUntilTS {
		return
	}
	b.tail = append(b.tail, tailEntry{ts: env.TS, line: formatForOracle(env)})
}

// ObserveSummary adopts a fresh summary, replacing summaryText and
// trimming every tail entry it now covers.
func (b *TailBuffer) ObserveSummary(payload *envelope.SummaryPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaryText = payload.SummaryText
	b.coversUntilTS = payload.CoversUntilTS

	kept := b.tail[:0]
	for _, e := range b.tail {
		if e.ts > b.coversUntilTS {
			kept = append(kept, e)
		}
	}
	b.tail = kept
}

// Snapshot returns the current summary text and formatted tail lines, in
// timestamp order, suitable for an oracle.DecideRequest.
func (b *TailBuffer) Snapshot() (summaryText string, lines []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines = make([]string, len(b.tail))
	for i, e := range b.tail {
		lines[i] = e.line
	}
	return b.summaryText, lines
}

func formatForOracle(env *envelope.Envelope) string {
	switch env.Type {
	case envelope.TypeSay:
		if say, err := env.AsSay(); err == nil {
			return fmt.Sprintf("%s (%s): %s", env.From.ID, env.From.Kind, say.Text)
		}
	case envelope.TypeResult:
		if result, err := env.AsResult(); err == nil {
			return fmt.Sprintf("%s [%s/%s]: %s", env.From.ID, result.TaskID, result.MessageType, summarizeContent(result.Content))
		}
	}
	return fmt.Sprintf("%s (%s/%s)", env.From.ID, env.Type, env.ID)
}

// summarizeContent best-effort extracts a human-readable line from a
// disclosure's content, falling back to the raw JSON when no "text" or
// "bullets" field is present.
func summarizeContent(content json.RawMessage) string {
	var generic struct {
		Text    string   `json:"text"`
		Bullets []string `json:"bullets"`
	}
	if err := json.Unmarshal(content, &generic); err == nil {
		if generic.Text != "" {
			return generic.Text
		}
		if len(generic.Bullets) > 0 {
			out := generic.Bullets[0]
			for _, b := range generic.Bullets[1:] {
				out += "; " + b
			}
			return out
		}
	}
	return string(content)
}
