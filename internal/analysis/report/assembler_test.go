package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/elsehow/civrealm/internal/analysis/metrics"
	"github.com/elsehow/civrealm/internal/gamestate"
	"github.com/elsehow/civrealm/internal/persistence/store"
)

func writeRecord(t *testing.T, dir string, turn int, body map[string]any) {
	t.Helper()
	body["turn"] = turn
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	name := fmt.Sprintf("turn_%d_step_20_state.json", turn)
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		t.Fatal(err)
	}
}

func seedRecording(t *testing.T, dir string) {
	t.Helper()
	writeRecord(t, dir, 0, map[string]any{
		"player": map[string]any{
			"0": map[string]any{"name": "Ada", "score": 10, "gold": 50, "tech_1": 18},
			"1": map[string]any{"name": "Grace", "score": 12, "gold": 30},
		},
		"city": map[string]any{
			"100": map[string]any{"owner": 0, "name": "Alpha", "size": 2},
		},
		"map": map[string]any{"xsize": 4, "ysize": 4},
		"dipl": map[string]any{
			"0": map[string]any{"player1": 0, "player2": 1, "state": "peace"},
		},
	})
	// Turn 1 missing: intermediate gaps are tolerated.
	writeRecord(t, dir, 2, map[string]any{
		"player": map[string]any{
			"0": map[string]any{"name": "Ada", "score": 15, "gold": 60, "tech_1": 18, "tech_2": 18},
			"1": map[string]any{"name": "Grace", "score": 12, "gold": 35},
		},
		"city": map[string]any{
			"100": map[string]any{"owner": 0, "name": "Alpha", "size": 3},
			"101": map[string]any{"owner": 1, "name": "Beta", "size": 1},
		},
		"unit": map[string]any{
			"7": map[string]any{"owner": 1, "type": 3, "type_attack_strength": 4},
		},
		"map": map[string]any{"xsize": 4, "ysize": 4},
		"dipl": map[string]any{
			"0": map[string]any{"player1": 0, "player2": 1, "state": "war"},
		},
	})
}

func openStore(t *testing.T, dir string) *store.Store {
	t.Helper()
	st, err := store.Open(dir, "")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return st
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	seedRecording(t, dir)

	asm := New(openStore(t, dir), nil)
	doc, err := asm.Generate(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if doc.Status != StatusComplete {
		t.Fatalf("status = %s", doc.Status)
	}
	if !reflect.DeepEqual(doc.TurnsAnalyzed, []int{0, 2}) {
		t.Fatalf("turns analyzed = %v", doc.TurnsAnalyzed)
	}
	if doc.MapSize != [2]int{4, 4} {
		t.Fatalf("map size = %v", doc.MapSize)
	}
	if len(doc.Categories) != 4 {
		t.Fatalf("categories = %d, want all built-ins", len(doc.Categories))
	}
	for name, res := range doc.Categories {
		if res.Error != "" || res.Metrics == nil {
			t.Fatalf("category %s = %+v", name, res)
		}
	}

	// Initial city, new city, war declaration, tech discovery.
	var sawWar, sawTech, sawFound bool
	for _, e := range doc.Events {
		switch string(e.Category) {
		case "war_declared":
			sawWar = true
			if e.Turn != 2 || !reflect.DeepEqual(e.Actors, []int{0, 1}) {
				t.Fatalf("war event = %+v", e)
			}
		case "tech_discovered":
			sawTech = true
		case "city_founded":
			sawFound = true
		}
	}
	if !sawWar || !sawTech || !sawFound {
		t.Fatalf("events missing kinds: %+v", doc.Events)
	}

	if doc.Civilizations[0].Name != "Ada" || doc.Civilizations[1].Name != "Grace" {
		t.Fatalf("civilizations = %v", doc.Civilizations)
	}

	// Scores at turn 2: Ada 15, Grace 12.
	if doc.Rankings[0].PlayerID != 0 || doc.Rankings[0].Rank != 1 {
		t.Fatalf("rankings = %v", doc.Rankings)
	}
	if doc.WorldTotals.Cities != 2 || doc.WorldTotals.MilitaryUnits != 1 {
		t.Fatalf("totals = %+v", doc.WorldTotals)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	dir := t.TempDir()
	seedRecording(t, dir)
	asm := New(openStore(t, dir), nil)

	first, err := asm.Generate(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := asm.Generate(context.Background(), 2, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	first.GeneratedAt = second.GeneratedAt
	if !reflect.DeepEqual(first, second) {
		t.Fatal("repeated generation differs")
	}
}

func TestGenerateMissingBoundary(t *testing.T) {
	dir := t.TempDir()
	writeRecord(t, dir, 2, map[string]any{
		"player": map[string]any{"0": map[string]any{"name": "Ada"}},
	})

	asm := New(openStore(t, dir), nil)

	_, err := asm.Generate(context.Background(), 2, nil)
	var incomplete *IncompleteDataError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want IncompleteDataError", err)
	}
	if !reflect.DeepEqual(incomplete.Missing, []int{0}) {
		t.Fatalf("missing = %v", incomplete.Missing)
	}

	_, err = asm.Generate(context.Background(), 5, nil)
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want IncompleteDataError", err)
	}
	if !reflect.DeepEqual(incomplete.Missing, []int{0, 5}) {
		t.Fatalf("missing = %v", incomplete.Missing)
	}
}

func TestGenerateUnknownCategory(t *testing.T) {
	dir := t.TempDir()
	seedRecording(t, dir)
	asm := New(openStore(t, dir), nil)
	if _, err := asm.Generate(context.Background(), 2, []string{"astrology"}); err == nil {
		t.Fatal("expected error for unknown category")
	}
}

func TestGenerateCancelled(t *testing.T) {
	dir := t.TempDir()
	seedRecording(t, dir)
	asm := New(openStore(t, dir), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := asm.Generate(ctx, 2, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type panicCategory struct{}

func (panicCategory) Name() string { return "panicky" }
func (panicCategory) Extract([]*gamestate.Snapshot, *gamestate.Ruleset) (*metrics.Set, error) {
	panic("corrupted input")
}

func TestRunExtractorRecoversPanic(t *testing.T) {
	set, err := runExtractor(panicCategory{}, nil, nil)
	if set != nil || err == nil {
		t.Fatalf("set = %v, err = %v", set, err)
	}
}

func TestMergeIsolatesCategoryFailure(t *testing.T) {
	dir := t.TempDir()
	seedRecording(t, dir)
	st := openStore(t, dir)
	asm := New(st, nil)

	snaps, err := st.CollectRange(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	cats := []metrics.Category{metrics.Overview{}, metrics.Economics{}}
	okSet, err := metrics.Overview{}.Extract(snaps, nil)
	if err != nil {
		t.Fatal(err)
	}

	doc := asm.merge(2, cats, snaps, &gamestate.Ruleset{}, nil, nil,
		[]*metrics.Set{okSet, nil},
		[]error{nil, fmt.Errorf("extraction blew up")})

	if doc.Status != StatusPartiallyFailed {
		t.Fatalf("status = %s", doc.Status)
	}
	if doc.Categories["overview"].Metrics == nil || doc.Categories["overview"].Error != "" {
		t.Fatalf("overview = %+v", doc.Categories["overview"])
	}
	eco := doc.Categories["economics"]
	if eco.Metrics != nil || eco.Error != "extraction blew up" {
		t.Fatalf("economics = %+v", eco)
	}
}
