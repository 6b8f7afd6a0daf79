package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/agentopsroom/aor/internal/envelope"
)

// ReplayFilter selects which archived envelopes to republish. A zero value
// field is treated as unbounded for From/ToTS and as "any room" for
// RoomID.
type ReplayFilter struct {
	RoomID string
	FromTS int64
	ToTS   int64
}

func (f ReplayFilter) matches(env *envelope.Envelope) bool {
	if f.RoomID != "" && env.RoomID != f.RoomID {
		return false
	}
	if f.FromTS != 0 && env.TS < f.FromTS {
		return false
	}
	if f.ToTS != 0 && env.TS > f.ToTS {
		return false
	}
	return true
}

// RepublishFunc republishes one envelope to rooms/{room}/public,
// byte-identical to the archived copy (I4).
type RepublishFunc func(env *envelope.Envelope) error

// Replay reads a JSONL archive and republishes the envelopes matching
// filter back onto public. It never republishes to public_candidates or
// control — the Gateway's work for those envelopes is already reflected
// in the archived public stream (§4.5 expansion note).
func Replay(path string, filter ReplayFilter, republish RepublishFunc) (republished int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("sink: open archive for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		env, err := envelope.Parse(line)
		if err != nil {
			return republished, fmt.Errorf("sink: replay: parse archived line: %w", err)
		}
		if !filter.matches(env) {
			continue
		}
		if err := republish(env); err != nil {
			return republished, fmt.Errorf("sink: replay: republish %s: %w", env.ID, err)
		}
		republished++
	}
	if err := scanner.Err(); err != nil {
		return republished, fmt.Errorf("sink: replay: scan archive: %w", err)
	}
	return republished, nil
}
