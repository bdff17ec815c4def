package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRecordStateAndReport(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	idx.RecordState(StateRow{Turn: 0, Step: 20, Path: "turn_0_step_20_state.json.zst", Players: 4, Cities: 2, Units: 8})
	idx.RecordState(StateRow{Turn: 1, Step: 20, Path: "turn_1_step_20_state.json.zst", Players: 4, Cities: 3, Units: 9})
	// Same (turn, step) again replaces the row.
	idx.RecordState(StateRow{Turn: 1, Step: 20, Path: "turn_1_step_20_state.json.zst", Players: 4, Cities: 4, Units: 9})
	idx.RecordReport(ReportRow{TargetTurn: 1, Path: "turn_001_data.json.zst", Status: "complete", Categories: 4, Events: 3})

	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var states int
	if err := db.QueryRow(`SELECT COUNT(*) FROM states`).Scan(&states); err != nil {
		t.Fatalf("count states: %v", err)
	}
	if states != 2 {
		t.Fatalf("states = %d, want 2", states)
	}

	var cities int
	if err := db.QueryRow(`SELECT cities FROM states WHERE turn=1 AND step=20`).Scan(&cities); err != nil {
		t.Fatalf("select cities: %v", err)
	}
	if cities != 4 {
		t.Fatalf("cities = %d, want 4 after replace", cities)
	}

	var reports int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&reports); err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if reports != 1 {
		t.Fatalf("reports = %d, want 1", reports)
	}
}

func TestRecordedTurns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, turn := range []int{3, 0, 3, 1} {
		idx.RecordState(StateRow{Turn: turn, Step: 20, Path: "p"})
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx2.Close()

	turns, err := idx2.RecordedTurns(context.Background())
	if err != nil {
		t.Fatalf("RecordedTurns: %v", err)
	}
	want := []int{0, 1, 3}
	if len(turns) != len(want) {
		t.Fatalf("turns = %v, want %v", turns, want)
	}
	for i := range want {
		if turns[i] != want[i] {
			t.Fatalf("turns = %v, want %v", turns, want)
		}
	}
}

func TestRecordAfterCloseIsNoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.RecordState(StateRow{Turn: 9, Step: 20, Path: "p"})
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
