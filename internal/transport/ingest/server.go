// Package ingest accepts state records over websocket and writes them
// into the recording directory the report pipeline reads from.
package ingest

import (
	"encoding/json"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/elsehow/civrealm/internal/gamestate"
	"github.com/elsehow/civrealm/internal/persistence/indexdb"
	"github.com/elsehow/civrealm/internal/persistence/log"
)

// SubmitMsg is one record submission. Turn and Step name the record's
// position in the recording; Record is the raw state document.
type SubmitMsg struct {
	Type   string          `json:"type"`
	Turn   *int            `json:"turn"`
	Step   *int            `json:"step"`
	Record json.RawMessage `json:"record"`
}

type AckMsg struct {
	Type string `json:"type"`
	Turn int    `json:"turn"`
	Step int    `json:"step"`
	Path string `json:"path"`
}

type ErrorMsg struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Options struct {
	RecordingDir   string
	Validator      *gamestate.Validator
	Index          *indexdb.SQLiteIndex
	Audit          *log.IngestLogger
	MaxMessageSize int64
	Compress       bool
}

type Server struct {
	opts Options
	log  *stdlog.Logger

	upgrader websocket.Upgrader
}

func NewServer(opts Options, logger *stdlog.Logger) *Server {
	if logger == nil {
		logger = stdlog.New(os.Stdout, "[ingest] ", stdlog.LstdFlags|stdlog.Lmicroseconds)
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 8 << 20
	}
	return &Server{
		opts: opts,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(s.opts.MaxMessageSize)

		remote := r.RemoteAddr
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var sub SubmitMsg
			if err := json.Unmarshal(msg, &sub); err != nil {
				s.reply(conn, ErrorMsg{Type: "ERROR", Error: "malformed message"})
				continue
			}
			if sub.Type != "SUBMIT" {
				s.reply(conn, ErrorMsg{Type: "ERROR", Error: fmt.Sprintf("unexpected type %q", sub.Type)})
				continue
			}

			ack, err := s.accept(remote, sub, len(msg))
			if err != nil {
				s.reply(conn, ErrorMsg{Type: "ERROR", Error: err.Error()})
				continue
			}
			s.reply(conn, ack)
		}
	}
}

func (s *Server) accept(remote string, sub SubmitMsg, size int) (AckMsg, error) {
	if len(sub.Record) == 0 {
		return AckMsg{}, fmt.Errorf("missing record")
	}
	if sub.Turn == nil {
		return AckMsg{}, fmt.Errorf("missing turn")
	}
	turn := *sub.Turn
	step := 0
	if sub.Step != nil {
		step = *sub.Step
	}
	if turn < 0 || step < 0 {
		return AckMsg{}, fmt.Errorf("turn and step must be >= 0")
	}

	if s.opts.Validator != nil {
		if err := s.opts.Validator.ValidateRecord(sub.Record); err != nil {
			s.audit(remote, turn, step, size, "rejected", err)
			return AckMsg{}, fmt.Errorf("record rejected: %w", err)
		}
	}

	snap, _, err := gamestate.DecodeAt(sub.Record, turn, step)
	if err != nil {
		s.audit(remote, turn, step, size, "rejected", err)
		return AckMsg{}, fmt.Errorf("record rejected: %w", err)
	}

	name := fmt.Sprintf("turn_%d_step_%d_state.json", turn, step)
	if s.opts.Compress {
		name += ".zst"
	}
	path := filepath.Join(s.opts.RecordingDir, name)
	if err := s.writeRecord(path, sub.Record); err != nil {
		s.audit(remote, turn, step, size, "failed", err)
		return AckMsg{}, fmt.Errorf("write record: %w", err)
	}

	if s.opts.Index != nil {
		s.opts.Index.RecordState(indexdb.StateRow{
			Turn:    turn,
			Step:    step,
			Path:    name,
			Players: len(snap.Players),
			Cities:  len(snap.Cities),
			Units:   len(snap.Units),
		})
	}
	s.audit(remote, turn, step, size, "accepted", nil)
	s.log.Printf("accepted turn=%d step=%d bytes=%d from %s", turn, step, size, remote)

	return AckMsg{Type: "ACK", Turn: turn, Step: step, Path: name}, nil
}

// writeRecord writes via a temp file and rename so readers never see a
// partial record.
func (s *Server) writeRecord(path string, record []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if filepath.Ext(path) == ".zst" {
		enc, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = tmp.Close()
			return err
		}
		if _, err := enc.Write(record); err != nil {
			_ = enc.Close()
			_ = tmp.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			_ = tmp.Close()
			return err
		}
	} else {
		if _, err := tmp.Write(record); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Server) audit(remote string, turn, step, size int, status string, cause error) {
	if s.opts.Audit == nil {
		return
	}
	e := log.Entry{
		Time:   time.Now().UTC(),
		Remote: remote,
		Turn:   turn,
		Step:   step,
		Bytes:  size,
		Status: status,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := s.opts.Audit.WriteEntry(e); err != nil {
		s.log.Printf("audit write failed: %v", err)
	}
}

func (s *Server) reply(conn *websocket.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
