package metrics

import (
	"github.com/elsehow/civrealm/internal/gamestate"
)

// Demographics covers population, its growth rate, city counts and
// citizen happiness. Growth is computed against the nearest previous
// available turn, not strictly turn-1, since ranges may have gaps; a
// rate with no valid prior point is an explicit undefined sample.
type Demographics struct{}

func (Demographics) Name() string { return "demographics" }

func (Demographics) Extract(snaps []*gamestate.Snapshot, _ *gamestate.Ruleset) (*Set, error) {
	set := NewSet()
	players := allPlayers(snaps)

	prevPop := map[int]float64{}
	havePrev := map[int]bool{}

	for _, snap := range ordered(snaps) {
		worldPop := 0.0
		for _, pid := range players {
			if _, present := snap.Players[pid]; !present {
				continue
			}
			pop := snap.Population(pid)
			worldPop += pop
			set.entity("population", pid).Add(Point{Turn: snap.Turn, Value: pop})
			set.entity("cities", pid).Add(Point{Turn: snap.Turn, Value: float64(snap.CityCount(pid))})

			growth := Point{Turn: snap.Turn, Undefined: true}
			if havePrev[pid] && prevPop[pid] > 0 {
				growth = Point{Turn: snap.Turn, Value: (pop - prevPop[pid]) / prevPop[pid] * 100}
			}
			set.entity("population_growth", pid).Add(growth)
			prevPop[pid] = pop
			havePrev[pid] = true

			h := snap.AggregateHappiness(pid)
			set.entity("happy_citizens", pid).Add(Point{Turn: snap.Turn, Value: float64(h.Happy)})
			set.entity("content_citizens", pid).Add(Point{Turn: snap.Turn, Value: float64(h.Content)})
			set.entity("unhappy_citizens", pid).Add(Point{Turn: snap.Turn, Value: float64(h.Unhappy)})
			set.entity("angry_citizens", pid).Add(Point{Turn: snap.Turn, Value: float64(h.Angry)})
		}
		set.single("total_population").Add(Point{Turn: snap.Turn, Value: worldPop})
	}
	return set, nil
}
