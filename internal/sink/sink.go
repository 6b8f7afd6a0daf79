package sink

import (
	"fmt"

	"github.com/agentopsroom/aor/internal/envelope"
)

// Sink subscribes to public and appends every envelope to the JSONL
// archive, bookmarking its progress in the offset store after each
// successful flush (§4.5).
type Sink struct {
	roomID  string
	archive *Archive
	offsets *OffsetStore
}

// New returns a Sink writing to archive and bookmarking progress for
// roomID in offsets.
func New(roomID string, archive *Archive, offsets *OffsetStore) *Sink {
	return &Sink{roomID: roomID, archive: archive, offsets: offsets}
}

// HandlePublic appends env to the archive and updates the resume
// bookmark. Sink performs no filtering — every envelope observed on
// public is archived, in arrival order.
func (s *Sink) HandlePublic(env *envelope.Envelope) error {
	offset, err := s.archive.Append(env)
	if err != nil {
		return fmt.Errorf("sink: append to archive: %w", err)
	}
	if s.offsets != nil {
		if err := s.offsets.Put(Offset{RoomID: s.roomID, LastID: env.ID, LastTS: env.TS, ByteOffset: offset}); err != nil {
			return fmt.Errorf("sink: bookmark offset: %w", err)
		}
	}
	return nil
}

// ResumeOffset returns the byte offset to resume the archive from and the
// starting point for reopening it, per the room's last bookmark. ok is
// false when no bookmark exists yet (fresh room).
func ResumeOffset(offsets *OffsetStore, roomID string) (byteOffset int64, ok bool, err error) {
	o, found, err := offsets.Get(roomID)
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}
	return o.ByteOffset, true, nil
}
