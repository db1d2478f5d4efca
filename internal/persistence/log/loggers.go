// Package log persists the per-tick event stream (events plus robot decision
// audit rows) as hour-segmented, zstd-compressed JSONL files under
// <worldDir>/events/.
package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"tiletown.ai/internal/sim/world"
)

// TickLogger appends one JSON line per logged tick. Segments roll over on the
// UTC hour so old hours can be shipped or pruned without touching the live
// file.
type TickLogger struct {
	dir string

	mu      sync.Mutex
	segment string
	file    *os.File
	zw      *zstd.Encoder
	buf     *bufio.Writer
}

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{dir: filepath.Join(worldDir, "events")}
}

func (l *TickLogger) WriteTick(entry world.TickLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.roll(time.Now().UTC()); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := l.buf.Write(line); err != nil {
		return err
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return err
	}
	// Flush per tick: a crash loses at most the entry being written.
	return l.buf.Flush()
}

func (l *TickLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeSegment()
}

// roll opens the segment for the given wall-clock hour, closing the previous
// one if the hour changed.
func (l *TickLogger) roll(now time.Time) error {
	stamp := now.Format("2006-01-02-15")
	if stamp == l.segment && l.buf != nil {
		return nil
	}
	if err := l.closeSegment(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(
		filepath.Join(l.dir, "events-"+stamp+".jsonl.zst"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.file = f
	l.zw = zw
	l.buf = bufio.NewWriterSize(zw, 128*1024)
	l.segment = stamp
	return nil
}

func (l *TickLogger) closeSegment() error {
	if l.buf != nil {
		_ = l.buf.Flush()
		l.buf = nil
	}
	var err error
	if l.zw != nil {
		err = l.zw.Close()
		l.zw = nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	l.segment = ""
	return err
}
