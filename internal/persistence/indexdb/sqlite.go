// Package indexdb maintains a SQLite read-model over ingested state
// records and generated reports. It is a secondary index: the recording
// directory and the serialized documents remain the source of truth,
// so writes may be dropped under pressure without losing data.
package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqState reqKind = iota + 1
	reqReport
)

type req struct {
	kind   reqKind
	state  StateRow
	report ReportRow
}

// StateRow describes one ingested (turn, step) record.
type StateRow struct {
	Turn    int
	Step    int
	Path    string
	Players int
	Cities  int
	Units   int
}

// ReportRow describes one generated report document.
type ReportRow struct {
	TargetTurn int
	Path       string
	Status     string
	Categories int
	Events     int
	Warnings   int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style ingest workload; NORMAL durability is
	// acceptable for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS states (
			turn INTEGER NOT NULL,
			step INTEGER NOT NULL,
			path TEXT NOT NULL,
			players INTEGER NOT NULL,
			cities INTEGER NOT NULL,
			units INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (turn, step)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_states_turn ON states(turn);`,
		`CREATE TABLE IF NOT EXISTS reports (
			target_turn INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			status TEXT NOT NULL,
			categories INTEGER NOT NULL,
			events INTEGER NOT NULL,
			warnings INTEGER NOT NULL,
			generated_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordState queues one ingested record row. Drops the row if the
// indexer falls behind; the files on disk remain authoritative.
func (s *SQLiteIndex) RecordState(row StateRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqState, state: row}:
	default:
	}
}

// RecordReport queues one generated-report row.
func (s *SQLiteIndex) RecordReport(row ReportRow) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqReport, report: row}:
	default:
	}
}

// RecordedTurns lists distinct ingested turns, ascending. Reads see
// committed rows only; call Close (or wait out the commit interval)
// before relying on the most recent writes.
func (s *SQLiteIndex) RecordedTurns(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT turn FROM states ORDER BY turn ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []int
	for rows.Next() {
		var t int
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertState, _ := s.db.Prepare(`INSERT OR REPLACE INTO states(turn,step,path,players,cities,units,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	insertReport, _ := s.db.Prepare(`INSERT OR REPLACE INTO reports(target_turn,path,status,categories,events,warnings,generated_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertState != nil {
			_ = insertState.Close()
		}
		if insertReport != nil {
			_ = insertReport.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.kind {
		case reqState:
			if insertState == nil {
				continue
			}
			row := r.state
			if _, err := tx.Stmt(insertState).Exec(row.Turn, row.Step, row.Path, row.Players, row.Cities, row.Units, now); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqReport:
			if insertReport == nil {
				continue
			}
			row := r.report
			if _, err := tx.Stmt(insertReport).Exec(row.TargetTurn, row.Path, row.Status, row.Categories, row.Events, row.Warnings, now); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
