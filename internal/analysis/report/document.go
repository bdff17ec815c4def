// Package report assembles snapshot data, detected events and extracted
// metrics into one immutable document per target turn, ready for an
// external renderer.
package report

import (
	"fmt"
	"time"

	"github.com/elsehow/civrealm/internal/analysis/events"
	"github.com/elsehow/civrealm/internal/analysis/metrics"
)

// Status of one generate call once it reaches a terminal state.
type Status string

const (
	StatusComplete        Status = "complete"
	StatusPartiallyFailed Status = "partially_failed"
)

// IncompleteDataError reports missing coverage for a boundary-critical
// turn (the first turn or the target turn). It aborts one target turn's
// report, never a whole batch.
type IncompleteDataError struct {
	TargetTurn int
	Missing    []int
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("report for turn %d: missing snapshots for boundary turns %v", e.TargetTurn, e.Missing)
}

// Civilization is the resolved display info for one player.
type Civilization struct {
	Name     string `json:"name"`
	NationID int    `json:"nation_id"`
}

// CategoryResult carries one category's metrics, or the error marker
// left behind when its extractor failed. Failures are isolated: the
// rest of the document stays usable.
type CategoryResult struct {
	Metrics *metrics.Set `json:"metrics,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// WorldTotals summarizes the world at the target turn.
type WorldTotals struct {
	Cities        int     `json:"total_cities"`
	Units         int     `json:"total_units"`
	MilitaryUnits int     `json:"total_military_units"`
	Population    float64 `json:"total_population"`
}

// Ranking is one row of the score table at the target turn.
type Ranking struct {
	Rank     int     `json:"rank"`
	PlayerID int     `json:"player_id"`
	Score    float64 `json:"score"`
}

// Document is the merged output for one target turn. It is constructed
// once by Generate and never mutated afterwards.
type Document struct {
	TargetTurn    int       `json:"target_turn"`
	GeneratedAt   time.Time `json:"generated_at"`
	TurnsAnalyzed []int     `json:"turns_analyzed"`
	MapSize       [2]int    `json:"map_size"`

	Civilizations map[int]Civilization      `json:"civilizations"`
	Categories    map[string]CategoryResult `json:"categories"`
	Events        []events.Event            `json:"events"`
	Rankings      []Ranking                 `json:"rankings"`
	WorldTotals   WorldTotals               `json:"world_totals"`

	Warnings []string `json:"warnings,omitempty"`
	Status   Status   `json:"status"`
}
