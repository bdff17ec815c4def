// Package log writes the ingest daemon's audit trail: one JSONL entry
// per record submission, zstd-compressed, rotated daily.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry records one accepted or rejected record submission.
type Entry struct {
	Time   time.Time `json:"time"`
	Remote string    `json:"remote"`
	Turn   int       `json:"turn"`
	Step   int       `json:"step"`
	Bytes  int       `json:"bytes"`
	Status string    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// IngestLogger appends audit entries under <recordingDir>/audit as
// ingest-YYYY-MM-DD.jsonl.zst. Entries are flushed per write so a crash
// loses at most the entry being written.
type IngestLogger struct {
	dir string

	mu     sync.Mutex
	curDay string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewIngestLogger(recordingDir string) *IngestLogger {
	return &IngestLogger{dir: filepath.Join(recordingDir, "audit")}
}

func (l *IngestLogger) WriteEntry(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := e.Time.UTC().Format("2006-01-02")
	if day == "" || day != l.curDay {
		if err := l.rotateLocked(day); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *IngestLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *IngestLogger) rotateLocked(day string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, fmt.Sprintf("ingest-%s.jsonl.zst", day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curDay = day
	return nil
}

func (l *IngestLogger) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err
}
