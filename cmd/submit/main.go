package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zstd"

	"github.com/elsehow/civrealm/internal/transport/ingest"
)

var recordName = regexp.MustCompile(`^turn_(\d+)_step_(\d+)_state\.json(\.zst)?$`)

type pending struct {
	turn, step int
	path       string
}

func main() {
	var (
		url = flag.String("url", "ws://localhost:8090/v1/ingest", "ingest ws url")
		dir = flag.String("dir", ".", "directory of state record files to submit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[submit] ", log.LstdFlags|log.Lmicroseconds)

	files, err := listRecords(*dir)
	if err != nil {
		logger.Fatalf("scan %s: %v", *dir, err)
	}
	if len(files) == 0 {
		logger.Fatalf("no state records in %s", *dir)
	}
	logger.Printf("submitting %d records from %s", len(files), *dir)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	accepted, rejected := 0, 0
	for _, p := range files {
		record, err := readRecord(p.path)
		if err != nil {
			logger.Printf("read %s: %v", p.path, err)
			rejected++
			continue
		}
		turn, step := p.turn, p.step
		msg := ingest.SubmitMsg{Type: "SUBMIT", Turn: &turn, Step: &step, Record: record}
		if err := conn.WriteJSON(msg); err != nil {
			logger.Fatalf("send: %v", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, reply, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read reply: %v", err)
		}
		var base struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(reply, &base); err != nil {
			logger.Fatalf("bad reply: %v", err)
		}
		switch base.Type {
		case "ACK":
			accepted++
		default:
			logger.Printf("turn %d step %d rejected: %s", turn, step, base.Error)
			rejected++
		}
	}
	logger.Printf("done: %d accepted, %d rejected", accepted, rejected)
	if rejected > 0 {
		os.Exit(1)
	}
}

func listRecords(dir string) ([]pending, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []pending
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		m := recordName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		turn, _ := strconv.Atoi(m[1])
		step, _ := strconv.Atoi(m[2])
		out = append(out, pending{turn: turn, step: step, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].turn != out[j].turn {
			return out[i].turn < out[j].turn
		}
		return out[i].step < out[j].step
	})
	return out, nil
}

func readRecord(path string) (json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if filepath.Ext(path) == ".zst" {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(b, nil)
	}
	return b, nil
}
