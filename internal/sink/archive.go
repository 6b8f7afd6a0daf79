package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/agentopsroom/aor/internal/envelope"
)

// Archive appends each approved envelope to a JSONL file, one complete
// envelope per line, flushed per write (§4.5: "Sink performs no
// filtering"). Archive tracks the current byte offset so the Sink can
// record a crash-resume bookmark after every successful write.
type Archive struct {
	file   *os.File
	writer *bufio.Writer
	offset int64
}

// OpenArchive opens path for appending (or creates it) and seeks to
// startOffset, truncating anything written past that point — the
// bookmarked position from the last successfully flushed envelope. A
// startOffset of 0 with append=true preserves the existing file as-is.
func OpenArchive(path string, append bool, startOffset int64) (*Archive, error) {
	flags := os.O_CREATE | os.O_RDWR
	if !append {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("sink: open archive %s: %w", path, err)
	}

	if append && startOffset > 0 {
		if err := f.Truncate(startOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("sink: truncate archive to resume offset: %w", err)
		}
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: seek archive end: %w", err)
	}
	pos, err := f.Seek(0, os.SEEK_CUR)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sink: get archive position: %w", err)
	}

	return &Archive{file: f, writer: bufio.NewWriter(f), offset: pos}, nil
}

// Append writes env as one JSON line and flushes immediately, returning
// the new byte offset for the caller to bookmark.
func (a *Archive) Append(env *envelope.Envelope) (int64, error) {
	line, err := json.Marshal(env)
	if err != nil {
		return a.offset, fmt.Errorf("sink: marshal envelope for archive: %w", err)
	}
	line = append(line, '\n')
	n, err := a.writer.Write(line)
	if err != nil {
		return a.offset, fmt.Errorf("sink: write archive line: %w", err)
	}
	if err := a.writer.Flush(); err != nil {
		return a.offset, fmt.Errorf("sink: flush archive: %w", err)
	}
	a.offset += int64(n)
	return a.offset, nil
}

// Close flushes and closes the underlying file.
func (a *Archive) Close() error {
	if err := a.writer.Flush(); err != nil {
		a.file.Close()
		return fmt.Errorf("sink: flush archive on close: %w", err)
	}
	return a.file.Close()
}
