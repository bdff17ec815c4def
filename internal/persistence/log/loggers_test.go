package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

func TestWriteEntryAndReadBack(t *testing.T) {
	dir := t.TempDir()
	l := NewIngestLogger(dir)

	at := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	entries := []Entry{
		{Time: at, Remote: "10.0.0.5:4242", Turn: 0, Step: 20, Bytes: 512, Status: "accepted"},
		{Time: at.Add(time.Minute), Remote: "10.0.0.5:4242", Turn: 1, Step: 20, Bytes: 256, Status: "rejected", Error: "missing turn"},
	}
	for _, e := range entries {
		if err := l.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "audit", "ingest-2026-08-20.jsonl.zst")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var got []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Status != "accepted" || got[1].Error != "missing turn" {
		t.Fatalf("entries = %+v", got)
	}
}

func TestRotationByDay(t *testing.T) {
	dir := t.TempDir()
	l := NewIngestLogger(dir)

	d1 := time.Date(2026, 8, 20, 23, 59, 0, 0, time.UTC)
	d2 := d1.Add(2 * time.Minute)
	if err := l.WriteEntry(Entry{Time: d1, Status: "accepted"}); err != nil {
		t.Fatal(err)
	}
	if err := l.WriteEntry(Entry{Time: d2, Status: "accepted"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"ingest-2026-08-20.jsonl.zst", "ingest-2026-08-21.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, "audit", name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}
