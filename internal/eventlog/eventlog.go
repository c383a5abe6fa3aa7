// Package eventlog implements the append-only canonical event log: one JSON
// object per line, consumed by byte offset. A single short write is treated
// as atomic for one writer; concurrent appenders are fine under the
// line-atomicity assumption, but the cursor has exactly one owner.
package eventlog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/openretro/questlog/internal/event"
)

// Log is a handle to a JSONL event log file. The file is created lazily on
// first append; reading a log that does not exist yet yields an empty batch.
type Log struct {
	path string
}

// Open returns a handle to the log at path. The file itself is not touched.
func Open(path string) *Log {
	return &Log{path: path}
}

// Path returns the underlying file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one event as a single JSON line. The line (terminator
// included) goes out in one write call so a crash can leave at most one
// partial line at the tail of the file.
func (l *Log) Append(e event.Event) error {
	line, err := e.EncodeLine()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Batch is the result of one bounded read.
type Batch struct {
	// Lines holds complete raw lines without their newline terminators.
	// Malformed JSON is the reader's problem: the log hands bytes up so the
	// consumer can count skips without losing its place.
	Lines [][]byte

	// NextOffset is the byte offset just past the last consumed line.
	NextOffset int64
}

// ReadBatch reads up to max complete lines starting at offset.
//
// A line with no trailing newline is never consumed: it may be a partial
// write still in flight, and leaving it bounds the race without locking.
// Empty lines are consumed but not returned.
func (l *Log) ReadBatch(offset int64, max int) (Batch, error) {
	batch := Batch{NextOffset: offset}
	if max <= 0 {
		return batch, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return batch, nil
		}
		return batch, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return batch, fmt.Errorf("seek event log: %w", err)
	}

	r := bufio.NewReader(f)
	for len(batch.Lines) < max {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			// No terminator: the tail is not ours to consume yet.
			break
		}
		if err != nil {
			return batch, fmt.Errorf("read event log: %w", err)
		}
		batch.NextOffset += int64(len(line))
		trimmed := bytes.TrimSuffix(line, []byte("\n"))
		if len(bytes.TrimSpace(trimmed)) == 0 {
			continue
		}
		batch.Lines = append(batch.Lines, trimmed)
	}

	return batch, nil
}

// CountLines returns the number of complete lines in the log, including
// malformed ones. Used by the replay harness for events_total.
func (l *Log) CountLines() (int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	count := 0
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read event log: %w", err)
		}
		if len(bytes.TrimSpace(bytes.TrimSuffix(line, []byte("\n")))) > 0 {
			count++
		}
	}
	return count, nil
}
