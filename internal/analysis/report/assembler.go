package report

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/elsehow/civrealm/internal/analysis/events"
	"github.com/elsehow/civrealm/internal/analysis/metrics"
	"github.com/elsehow/civrealm/internal/gamestate"
	"github.com/elsehow/civrealm/internal/persistence/store"
)

// Assembler orchestrates the store, the change detector and the metric
// extractors for one report run. It holds no per-call state: concurrent
// Generate calls for different target turns share only the read-side
// store cache.
type Assembler struct {
	store  *store.Store
	logger *log.Logger
}

func New(st *store.Store, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(log.Writer(), "[report] ", log.LstdFlags)
	}
	return &Assembler{store: st, logger: logger}
}

// Generate builds the document covering turns [0, targetTurn] for the
// requested categories. Coverage of turn 0 and the target turn is
// mandatory; intermediate gaps are tolerated. A category extractor
// failure is recorded as a per-category error marker, not surfaced as a
// call failure.
func (a *Assembler) Generate(ctx context.Context, targetTurn int, categoryNames []string) (*Document, error) {
	cats, err := metrics.ByName(categoryNames)
	if err != nil {
		return nil, err
	}

	boundary := []int{0, targetTurn}
	if targetTurn == 0 {
		boundary = []int{0}
	}
	if missing := a.store.ValidateAvailability(boundary); len(missing) > 0 {
		return nil, &IncompleteDataError{TargetTurn: targetTurn, Missing: missing}
	}

	ruleset, err := a.store.Ruleset()
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}
	snaps, err := a.store.CollectRange(0, targetTurn)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	var (
		evs        []events.Event
		detectWarn []events.Warning
		results    = make([]*metrics.Set, len(cats))
		resultErrs = make([]error, len(cats))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		evs, detectWarn = events.NewDetector(ruleset).Detect(snaps)
		return nil
	})
	for i, cat := range cats {
		i, cat := i, cat
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], resultErrs[i] = runExtractor(cat, snaps, ruleset)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Cancellation only: extractor failures land in resultErrs.
		return nil, err
	}

	doc := a.merge(targetTurn, cats, snaps, ruleset, evs, detectWarn, results, resultErrs)
	return doc, nil
}

// runExtractor shields the run from a misbehaving extractor: a panic on
// corrupted data becomes that category's error marker.
func runExtractor(cat metrics.Category, snaps []*gamestate.Snapshot, rs *gamestate.Ruleset) (set *metrics.Set, err error) {
	defer func() {
		if r := recover(); r != nil {
			set = nil
			err = fmt.Errorf("%s extractor panicked: %v", cat.Name(), r)
		}
	}()
	return cat.Extract(snaps, rs)
}

func (a *Assembler) merge(
	targetTurn int,
	cats []metrics.Category,
	snaps []*gamestate.Snapshot,
	ruleset *gamestate.Ruleset,
	evs []events.Event,
	detectWarn []events.Warning,
	results []*metrics.Set,
	resultErrs []error,
) *Document {
	doc := &Document{
		TargetTurn:    targetTurn,
		GeneratedAt:   time.Now().UTC(),
		Civilizations: civilizations(snaps, ruleset),
		Categories:    make(map[string]CategoryResult, len(cats)),
		Events:        evs,
		Status:        StatusComplete,
	}
	for _, s := range snaps {
		doc.TurnsAnalyzed = append(doc.TurnsAnalyzed, s.Turn)
	}
	sort.Ints(doc.TurnsAnalyzed)

	for i, cat := range cats {
		if resultErrs[i] != nil {
			a.logger.Printf("turn %d: category %s failed: %v", targetTurn, cat.Name(), resultErrs[i])
			doc.Categories[cat.Name()] = CategoryResult{Error: resultErrs[i].Error()}
			doc.Status = StatusPartiallyFailed
			continue
		}
		doc.Categories[cat.Name()] = CategoryResult{Metrics: results[i]}
	}

	for _, w := range detectWarn {
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("turn %d: %s", w.Turn, w.Message))
	}
	doc.Warnings = append(doc.Warnings, a.store.Warnings()...)

	if final := lastSnapshot(snaps, targetTurn); final != nil {
		doc.MapSize = [2]int{final.Map.XSize, final.Map.YSize}
		doc.Rankings = rankings(final)
		doc.WorldTotals = worldTotals(final)
	}
	return doc
}

// civilizations resolves display info for every player seen at any turn,
// using the latest snapshot where each player appears so late joiners
// and renames are covered.
func civilizations(snaps []*gamestate.Snapshot, ruleset *gamestate.Ruleset) map[int]Civilization {
	civs := map[int]Civilization{}
	ordered := make([]*gamestate.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Turn > ordered[j].Turn })

	for _, snap := range ordered {
		for pid, p := range snap.Players {
			if _, done := civs[pid]; done {
				continue
			}
			civs[pid] = Civilization{
				Name:     ruleset.PlayerName(snap, pid),
				NationID: p.Nation,
			}
		}
	}
	return civs
}

func rankings(snap *gamestate.Snapshot) []Ranking {
	ids := snap.PlayerIDs()
	out := make([]Ranking, 0, len(ids))
	for _, pid := range ids {
		out = append(out, Ranking{PlayerID: pid, Score: snap.Players[pid].Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func worldTotals(snap *gamestate.Snapshot) WorldTotals {
	t := WorldTotals{Cities: len(snap.Cities), Units: len(snap.Units)}
	for _, u := range snap.Units {
		if u.AttackStrength > 0 {
			t.MilitaryUnits++
		}
	}
	for _, c := range snap.Cities {
		if c.Size > 0 {
			t.Population += c.Size
		}
	}
	return t
}

func lastSnapshot(snaps []*gamestate.Snapshot, targetTurn int) *gamestate.Snapshot {
	var best *gamestate.Snapshot
	for _, s := range snaps {
		if s.Turn > targetTurn {
			continue
		}
		if best == nil || s.Turn > best.Turn {
			best = s
		}
	}
	return best
}
