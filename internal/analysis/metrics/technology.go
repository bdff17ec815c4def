package metrics

import (
	"sort"

	"github.com/elsehow/civrealm/internal/gamestate"
)

// Technology covers cumulative tech counts per player and the first
// discovery turn of each tech across all players. Tech counts can never
// decrease; recorded dips are bad data and are clamped to the running
// maximum, matching how the harness recordings are cleaned up.
type Technology struct{}

func (Technology) Name() string { return "technology" }

func (Technology) Extract(snaps []*gamestate.Snapshot, _ *gamestate.Ruleset) (*Set, error) {
	set := NewSet()
	players := allPlayers(snaps)

	maxSeen := map[int]int{}
	firstDiscovery := map[int]Point{} // tech id -> (turn, player)

	for _, snap := range ordered(snaps) {
		for _, pid := range players {
			if _, present := snap.Players[pid]; !present {
				continue
			}
			known := len(snap.Techs[pid])
			if known < maxSeen[pid] {
				known = maxSeen[pid]
			} else {
				maxSeen[pid] = known
			}
			set.entity("techs_known", pid).Add(Point{Turn: snap.Turn, Value: float64(known)})

			techs := make([]int, 0, len(snap.Techs[pid]))
			for tech := range snap.Techs[pid] {
				techs = append(techs, tech)
			}
			sort.Ints(techs)
			for _, tech := range techs {
				if _, seen := firstDiscovery[tech]; !seen {
					firstDiscovery[tech] = Point{Turn: snap.Turn, Value: float64(pid)}
				}
			}
		}
	}

	for tech, p := range firstDiscovery {
		set.entity("first_discovery", tech).Add(p)
	}
	return set, nil
}
