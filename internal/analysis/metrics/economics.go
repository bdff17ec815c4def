package metrics

import (
	"github.com/elsehow/civrealm/internal/gamestate"
)

// Economics covers treasury, science output, city production totals and
// trade-route counts, all per player per turn. City production sums skip
// negative (fog-of-war) values, the harness recording convention.
type Economics struct{}

func (Economics) Name() string { return "economics" }

func (Economics) Extract(snaps []*gamestate.Snapshot, _ *gamestate.Ruleset) (*Set, error) {
	set := NewSet()
	players := allPlayers(snaps)

	for _, snap := range ordered(snaps) {
		for _, pid := range players {
			p, present := snap.Players[pid]
			if !present {
				continue
			}
			set.entity("treasury", pid).Add(Point{Turn: snap.Turn, Value: p.Gold})
			set.entity("science", pid).Add(Point{Turn: snap.Turn, Value: p.Science})
			set.entity("food_production", pid).Add(Point{Turn: snap.Turn,
				Value: snap.AggregateCityMetric(pid, func(c gamestate.CityState) float64 { return c.ProdFood })})
			set.entity("shield_production", pid).Add(Point{Turn: snap.Turn,
				Value: snap.AggregateCityMetric(pid, func(c gamestate.CityState) float64 { return c.ProdShield })})
			set.entity("trade_production", pid).Add(Point{Turn: snap.Turn,
				Value: snap.AggregateCityMetric(pid, func(c gamestate.CityState) float64 { return c.ProdTrade })})
			set.entity("trade_routes", pid).Add(Point{Turn: snap.Turn,
				Value: snap.AggregateCityMetric(pid, func(c gamestate.CityState) float64 { return float64(c.TradeRoutes) })})
		}
	}
	return set, nil
}
