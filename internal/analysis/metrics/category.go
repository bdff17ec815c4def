package metrics

import (
	"fmt"
	"sort"

	"github.com/elsehow/civrealm/internal/gamestate"
)

// Category extracts one family of metrics from a snapshot range. An
// extractor must be a pure function of its inputs: no shared mutable
// state and no reliance on call order, so categories can run
// concurrently and repeated extraction is deterministic.
type Category interface {
	Name() string
	Extract(snaps []*gamestate.Snapshot, ruleset *gamestate.Ruleset) (*Set, error)
}

// Builtin returns the built-in categories in their canonical order.
func Builtin() []Category {
	return []Category{Overview{}, Economics{}, Demographics{}, Technology{}}
}

// ByName resolves category names, preserving canonical order and
// rejecting unknown names. An empty selection means every built-in.
func ByName(names []string) ([]Category, error) {
	if len(names) == 0 {
		return Builtin(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []Category
	for _, c := range Builtin() {
		if want[c.Name()] {
			out = append(out, c)
			delete(want, c.Name())
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for n := range want {
			unknown = append(unknown, n)
		}
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown metric categories: %v", unknown)
	}
	return out, nil
}

// allPlayers collects every player id seen at any turn in the range,
// ascending, so late joiners get series too.
func allPlayers(snaps []*gamestate.Snapshot) []int {
	seen := map[int]bool{}
	for _, s := range snaps {
		for id := range s.Players {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ordered returns the snapshots sorted by turn without mutating the
// caller's slice.
func ordered(snaps []*gamestate.Snapshot) []*gamestate.Snapshot {
	out := make([]*gamestate.Snapshot, len(snaps))
	copy(out, snaps)
	sort.Slice(out, func(i, j int) bool { return out[i].Turn < out[j].Turn })
	return out
}
