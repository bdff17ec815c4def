package metrics

import (
	"github.com/elsehow/civrealm/internal/gamestate"
)

// Overview covers standing and territory: per-player score, territory
// and arable-land tile counts, unit strength, plus world-level active
// player count and the per-turn leader.
type Overview struct{}

func (Overview) Name() string { return "overview" }

func (Overview) Extract(snaps []*gamestate.Snapshot, _ *gamestate.Ruleset) (*Set, error) {
	set := NewSet()
	players := allPlayers(snaps)

	for _, snap := range ordered(snaps) {
		active := 0
		leader, leaderScore := -1, 0.0
		for _, pid := range players {
			p, present := snap.Players[pid]
			if !present {
				continue
			}
			set.entity("score", pid).Add(Point{Turn: snap.Turn, Value: p.Score})
			set.entity("territory", pid).Add(Point{Turn: snap.Turn, Value: float64(snap.TerritorySize(pid))})
			set.entity("arable_land", pid).Add(Point{Turn: snap.Turn, Value: float64(snap.ArableLand(pid))})
			set.entity("units", pid).Add(Point{Turn: snap.Turn, Value: float64(snap.UnitCount(pid, false))})
			set.entity("military_units", pid).Add(Point{Turn: snap.Turn, Value: float64(snap.UnitCount(pid, true))})

			if snap.CityCount(pid) > 0 || snap.UnitCount(pid, false) > 0 {
				active++
			}
			// Ties go to the lowest player id; players iterates ascending.
			if leader == -1 || p.Score > leaderScore {
				leader, leaderScore = pid, p.Score
			}
		}
		set.single("active_players").Add(Point{Turn: snap.Turn, Value: float64(active)})
		if leader >= 0 {
			set.single("leader").Add(Point{Turn: snap.Turn, Value: float64(leader)})
		} else {
			set.single("leader").Add(Point{Turn: snap.Turn, Undefined: true})
		}
	}
	return set, nil
}
