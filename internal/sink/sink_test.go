package sink_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentopsroom/aor/internal/envelope"
	"github.com/agentopsroom/aor/internal/sink"
)

func buildSay(t *testing.T, roomID, text string, ts time.Time) *envelope.Envelope {
	t.Helper()
	env, err := envelope.New(envelope.TypeSay, roomID, envelope.From{Kind: envelope.KindUser, ID: "u1"}, ts, envelope.SayPayload{Text: text})
	if err != nil {
		t.Fatalf("build say: %v", err)
	}
	return env
}

func TestSink_AppendsAndBookmarks(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.jsonl")
	dbPath := filepath.Join(dir, "offsets.db")

	archive, err := sink.OpenArchive(archivePath, true, 0)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer archive.Close()

	offsets, err := sink.NewOffsetStore(dbPath)
	if err != nil {
		t.Fatalf("NewOffsetStore: %v", err)
	}
	defer offsets.Close()

	s := sink.New("room-1", archive, offsets)
	now := time.Now()

	env1 := buildSay(t, "room-1", "hello", now)
	if err := s.HandlePublic(env1); err != nil {
		t.Fatalf("HandlePublic: %v", err)
	}
	env2 := buildSay(t, "room-1", "world", now.Add(time.Second))
	if err := s.HandlePublic(env2); err != nil {
		t.Fatalf("HandlePublic: %v", err)
	}

	offset, ok, err := sink.ResumeOffset(offsets, "room-1")
	if err != nil {
		t.Fatalf("ResumeOffset: %v", err)
	}
	if !ok {
		t.Fatal("expected a bookmarked offset")
	}
	if offset <= 0 {
		t.Errorf("expected a positive byte offset, got %d", offset)
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if int64(len(data)) != offset {
		t.Errorf("archive length %d != bookmarked offset %d", len(data), offset)
	}
}

func TestReplay_FiltersByRoomAndTimeRange(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.jsonl")

	archive, err := sink.OpenArchive(archivePath, true, 0)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}

	base := time.Now()
	envs := []*envelope.Envelope{
		buildSay(t, "room-1", "a", base),
		buildSay(t, "room-1", "b", base.Add(10*time.Second)),
		buildSay(t, "room-2", "c", base.Add(20*time.Second)),
	}
	for _, e := range envs {
		if _, err := archive.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := archive.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var republished []*envelope.Envelope
	count, err := sink.Replay(archivePath, sink.ReplayFilter{RoomID: "room-1"}, func(env *envelope.Envelope) error {
		republished = append(republished, env)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 2 {
		t.Fatalf("Replay count = %d, want 2", count)
	}
	for _, env := range republished {
		if env.RoomID != "room-1" {
			t.Errorf("replayed envelope from wrong room: %q", env.RoomID)
		}
	}

	count, err = sink.Replay(archivePath, sink.ReplayFilter{FromTS: base.Add(5 * time.Second).Unix()}, func(env *envelope.Envelope) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if count != 2 {
		t.Fatalf("Replay with FromTS count = %d, want 2", count)
	}
}

func TestReplay_ByteIdentical(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "archive.jsonl")

	archive, err := sink.OpenArchive(archivePath, true, 0)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	original := buildSay(t, "room-1", "hello", time.Now())
	if _, err := archive.Append(original); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := archive.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got *envelope.Envelope
	if _, err := sink.Replay(archivePath, sink.ReplayFilter{}, func(env *envelope.Envelope) error {
		got = env
		return nil
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got == nil || !got.Equal(original) {
		t.Errorf("replayed envelope not byte-identical to original")
	}
}
