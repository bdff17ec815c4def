// Package store indexes and caches the per-turn world-state records a
// game harness leaves behind in a recording directory. It is the only
// component that touches snapshot files; everything downstream borrows
// immutable snapshots from here.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/elsehow/civrealm/internal/gamestate"
)

var recordName = regexp.MustCompile(`^turn_(\d+)_step_(\d+)_state\.json(\.zst)?$`)

// MissingTurnError reports a requested turn with no recorded snapshot.
// Callers decide whether to skip, interpolate, or abort.
type MissingTurnError struct {
	Turn int
}

func (e *MissingTurnError) Error() string {
	return fmt.Sprintf("no snapshot recorded for turn %d", e.Turn)
}

type fileRef struct {
	step int
	path string
}

// Store serves snapshots and the ruleset mapping for one recording run.
// Loads happen at most once per turn; once cached, snapshots are safe for
// concurrent readers for the lifetime of the store.
type Store struct {
	dir         string
	rulesetPath string

	index map[int][]fileRef // step-ascending per turn
	turns []int             // ascending

	loads singleflight.Group

	mu       sync.RWMutex
	cache    map[int]*gamestate.Snapshot
	warnings []string

	rulesetOnce sync.Once
	ruleset     *gamestate.Ruleset
	rulesetErr  error
}

// Open scans the recording directory and builds the (turn, step) index.
// No snapshot bytes are read until a turn is requested.
func Open(recordingDir, rulesetPath string) (*Store, error) {
	ents, err := os.ReadDir(recordingDir)
	if err != nil {
		return nil, fmt.Errorf("recording directory: %w", err)
	}

	s := &Store{
		dir:         recordingDir,
		rulesetPath: rulesetPath,
		index:       make(map[int][]fileRef),
		cache:       make(map[int]*gamestate.Snapshot),
	}
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
		s.index[turn] = append(s.index[turn], fileRef{step: step, path: filepath.Join(recordingDir, e.Name())})
	}
	for turn, refs := range s.index {
		sort.Slice(refs, func(i, j int) bool {
			if refs[i].step != refs[j].step {
				return refs[i].step < refs[j].step
			}
			return refs[i].path < refs[j].path
		})
		s.turns = append(s.turns, turn)
	}
	sort.Ints(s.turns)
	return s, nil
}

// GetState returns the snapshot for a turn, loading and caching it on
// first use. When the harness recorded several steps for one turn, the
// highest step wins.
func (s *Store) GetState(turn int) (*gamestate.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.cache[turn]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	refs, ok := s.index[turn]
	if !ok || len(refs) == 0 {
		return nil, &MissingTurnError{Turn: turn}
	}

	v, err, _ := s.loads.Do(strconv.Itoa(turn), func() (any, error) {
		// Re-check under the flight: another caller may have populated
		// the cache between the fast path and Do.
		s.mu.RLock()
		cached, ok := s.cache[turn]
		s.mu.RUnlock()
		if ok {
			return cached, nil
		}

		ref := refs[len(refs)-1]
		snap, warns, err := s.loadFile(ref.path, turn, ref.step)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[turn] = snap
		s.warnings = append(s.warnings, warns...)
		s.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*gamestate.Snapshot), nil
}

func (s *Store) loadFile(path string, turn, step int) (*gamestate.Snapshot, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		defer dec.Close()
		r = dec
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	snap, warns, err := gamestate.DecodeAt(data, turn, step)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return snap, warns, nil
}

// AvailableTurns lists recorded turns within [start, end], ascending.
func (s *Store) AvailableTurns(start, end int) []int {
	out := make([]int, 0)
	for _, t := range s.turns {
		if t >= start && t <= end {
			out = append(out, t)
		}
	}
	return out
}

// ValidateAvailability returns the subset of turns with no snapshot,
// so callers can fail fast with a clear diagnostic.
func (s *Store) ValidateAvailability(turns []int) []int {
	var missing []int
	for _, t := range turns {
		if len(s.index[t]) == 0 {
			missing = append(missing, t)
		}
	}
	return missing
}

// StatesRange returns a fresh cursor over the recorded turns in
// [start, end]. Unavailable turns are silently skipped; callers that need
// dense coverage check AvailableTurns first. Each call starts a new
// iteration over the current index.
func (s *Store) StatesRange(start, end int) *Cursor {
	return &Cursor{store: s, turns: s.AvailableTurns(start, end)}
}

// Cursor lazily walks snapshots in ascending turn order.
type Cursor struct {
	store *Store
	turns []int
	pos   int
	err   error
}

// Next advances the cursor. It returns false at the end of the range or
// on a load failure; Err distinguishes the two.
func (c *Cursor) Next() (*gamestate.Snapshot, bool) {
	for c.pos < len(c.turns) {
		turn := c.turns[c.pos]
		c.pos++
		snap, err := c.store.GetState(turn)
		if err != nil {
			c.err = err
			return nil, false
		}
		return snap, true
	}
	return nil, false
}

func (c *Cursor) Err() error { return c.err }

// CollectRange loads every available snapshot in [start, end] eagerly.
func (s *Store) CollectRange(start, end int) ([]*gamestate.Snapshot, error) {
	cur := s.StatesRange(start, end)
	var out []*gamestate.Snapshot
	for {
		snap, ok := cur.Next()
		if !ok {
			break
		}
		out = append(out, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ruleset loads the nation mapping on first use and caches it for the
// lifetime of the store.
func (s *Store) Ruleset() (*gamestate.Ruleset, error) {
	s.rulesetOnce.Do(func() {
		s.ruleset, s.rulesetErr = gamestate.LoadRuleset(s.rulesetPath)
	})
	return s.ruleset, s.rulesetErr
}

// Warnings reports decode problems recorded while loading snapshots.
func (s *Store) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Summary describes the recording for preflight diagnostics.
type Summary struct {
	RecordingDir string `json:"recording_dir"`
	TotalTurns   int    `json:"total_turns"`
	TotalFiles   int    `json:"total_files"`
	FirstTurn    int    `json:"first_turn"`
	LastTurn     int    `json:"last_turn"`
}

func (s *Store) Summary() Summary {
	sum := Summary{RecordingDir: s.dir, TotalTurns: len(s.turns)}
	for _, refs := range s.index {
		sum.TotalFiles += len(refs)
	}
	if len(s.turns) > 0 {
		sum.FirstTurn = s.turns[0]
		sum.LastTurn = s.turns[len(s.turns)-1]
	}
	return sum
}
