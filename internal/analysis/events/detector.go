package events

import (
	"sort"
	"strconv"
	"strings"

	"github.com/elsehow/civrealm/internal/gamestate"
)

// Detector compares adjacent available snapshots and emits typed events.
// It holds no state across Detect calls.
type Detector struct {
	ruleset *gamestate.Ruleset
}

func NewDetector(ruleset *gamestate.Ruleset) *Detector {
	if ruleset == nil {
		ruleset = &gamestate.Ruleset{Nations: map[int]gamestate.Nation{}}
	}
	return &Detector{ruleset: ruleset}
}

// Detect folds over the snapshots in order. The first snapshot has an
// empty prior state, so its entities are reported as newly appearing
// (initial cities are "founded" with an initial marker); this may
// over-report foundings at a range start whose true founding turn was
// never recorded, and deliberately stays that way. A snapshot unusable
// for comparison is skipped with a Warning and the previous good
// snapshot remains the comparison base, the same treatment as a gap.
func (d *Detector) Detect(snaps []*gamestate.Snapshot) ([]Event, []Warning) {
	ordered := make([]*gamestate.Snapshot, len(snaps))
	copy(ordered, snaps)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Turn < ordered[j].Turn })

	var evs []Event
	var warns []Warning
	var prev *gamestate.Snapshot

	for _, cur := range ordered {
		if reason := unusable(cur); reason != "" {
			warns = append(warns, Warning{Turn: cur.Turn, Message: reason})
			continue
		}
		evs = append(evs, d.compare(prev, cur)...)
		prev = cur
	}

	sort.SliceStable(evs, func(i, j int) bool {
		a, b := evs[i], evs[j]
		if a.Turn != b.Turn {
			return a.Turn < b.Turn
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if fa, fb := firstActor(a), firstActor(b); fa != fb {
			return fa < fb
		}
		return a.entity < b.entity
	})
	return evs, warns
}

func unusable(s *gamestate.Snapshot) string {
	if len(s.Players) == 0 {
		return "no player section, comparison skipped"
	}
	return ""
}

func firstActor(e Event) int {
	if len(e.Actors) == 0 {
		return -1
	}
	return e.Actors[0]
}

func (d *Detector) compare(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event
	evs = append(evs, d.cityEvents(prev, cur)...)
	if prev == nil {
		return evs
	}
	evs = append(evs, d.diplomacyEvents(prev, cur)...)
	evs = append(evs, d.techEvents(prev, cur)...)
	evs = append(evs, d.governmentEvents(prev, cur)...)
	evs = append(evs, d.eliminationEvents(prev, cur)...)
	return evs
}

func (d *Detector) cityEvents(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event

	curIDs := sortedCityIDs(cur)
	if prev == nil {
		for _, id := range curIDs {
			evs = append(evs, d.cityFounded(cur, id, true))
		}
		return evs
	}

	for _, id := range curIDs {
		c := cur.Cities[id]
		p, existed := prev.Cities[id]
		if !existed {
			evs = append(evs, d.cityFounded(cur, id, false))
			continue
		}
		if p.Owner != c.Owner {
			evs = append(evs, Event{
				Turn:     cur.Turn,
				Category: CityConquered,
				Actors:   []int{c.Owner, p.Owner},
				Payload: map[string]any{
					"city_id":    id,
					"city_name":  cityName(c, id),
					"prev_owner": p.Owner,
					"new_owner":  c.Owner,
					"x":          c.X,
					"y":          c.Y,
				},
				Description: cityName(c, id) + " conquered by " + d.ruleset.PlayerName(cur, c.Owner) +
					" from " + d.ruleset.PlayerName(prev, p.Owner),
				entity: id,
			})
		}
	}

	for _, id := range sortedCityIDs(prev) {
		if _, still := cur.Cities[id]; still {
			continue
		}
		c := prev.Cities[id]
		evs = append(evs, Event{
			Turn:     cur.Turn,
			Category: CityLost,
			Actors:   []int{c.Owner},
			Payload: map[string]any{
				"city_id":   id,
				"city_name": cityName(c, id),
				"x":         c.X,
				"y":         c.Y,
			},
			Description: cityName(c, id) + " (" + d.ruleset.PlayerName(prev, c.Owner) + ") was lost",
			entity:      id,
		})
	}
	return evs
}

func (d *Detector) cityFounded(cur *gamestate.Snapshot, id int, initial bool) Event {
	c := cur.Cities[id]
	desc := cityName(c, id) + " founded by " + d.ruleset.PlayerName(cur, c.Owner)
	payload := map[string]any{
		"city_id":   id,
		"city_name": cityName(c, id),
		"x":         c.X,
		"y":         c.Y,
	}
	if initial {
		// Pre-existing at the range start; the true founding turn may be
		// earlier than recorded.
		payload["initial"] = true
		desc = "Initial city: " + cityName(c, id) + " (" + d.ruleset.PlayerName(cur, c.Owner) + ")"
	}
	return Event{
		Turn:        cur.Turn,
		Category:    CityFounded,
		Actors:      []int{c.Owner},
		Payload:     payload,
		Description: desc,
		entity:      id,
	}
}

func (d *Detector) diplomacyEvents(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event
	for _, pair := range sortedPairs(cur) {
		curRel := cur.Relations[pair]
		prevRel, ok := prev.Relations[pair]
		if !ok || prevRel.State == curRel.State {
			continue
		}
		cat := classifyTransition(prevRel.State, curRel.State)
		evs = append(evs, Event{
			Turn:     cur.Turn,
			Category: cat,
			Actors:   []int{pair.A, pair.B},
			Payload: map[string]any{
				"player1":    pair.A,
				"player2":    pair.B,
				"from_state": prevRel.State,
				"to_state":   curRel.State,
			},
			Description: "Relations between " + d.ruleset.PlayerName(cur, pair.A) + " and " +
				d.ruleset.PlayerName(cur, pair.B) + " changed from " + prevRel.State + " to " + curRel.State,
			entity: pair.B,
		})
	}
	return evs
}

func classifyTransition(from, to string) Category {
	f, t := strings.ToLower(from), strings.ToLower(to)
	switch {
	case t == "war":
		return WarDeclared
	case strings.Contains(t, "alliance"):
		return AllianceFormed
	case f == "war" && (t == "peace" || strings.Contains(t, "armistice") || strings.Contains(t, "ceasefire")):
		return PeaceTreaty
	default:
		return RelationChanged
	}
}

func (d *Detector) techEvents(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event
	for _, pid := range cur.PlayerIDs() {
		prevTechs, known := prev.Techs[pid]
		if _, existed := prev.Players[pid]; !existed {
			continue
		}
		if !known {
			prevTechs = map[int]bool{}
		}
		var added []int
		for tech := range cur.Techs[pid] {
			if !prevTechs[tech] {
				added = append(added, tech)
			}
		}
		sort.Ints(added)
		for _, tech := range added {
			name := cur.TechName(tech)
			evs = append(evs, Event{
				Turn:     cur.Turn,
				Category: TechDiscovered,
				Actors:   []int{pid},
				Payload: map[string]any{
					"tech_id":   tech,
					"tech_name": name,
				},
				Description: d.ruleset.PlayerName(cur, pid) + " discovered " + name,
				entity:      tech,
			})
		}
	}
	return evs
}

func (d *Detector) governmentEvents(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event
	for _, pid := range cur.PlayerIDs() {
		p, existed := prev.Players[pid]
		if !existed {
			continue
		}
		c := cur.Players[pid]
		if p.GovernmentName == "" || c.GovernmentName == "" || p.GovernmentName == c.GovernmentName {
			continue
		}
		evs = append(evs, Event{
			Turn:     cur.Turn,
			Category: GovernmentChange,
			Actors:   []int{pid},
			Payload: map[string]any{
				"from": p.GovernmentName,
				"to":   c.GovernmentName,
			},
			Description: d.ruleset.PlayerName(cur, pid) + " changed government from " +
				p.GovernmentName + " to " + c.GovernmentName,
			entity: pid,
		})
	}
	return evs
}

func (d *Detector) eliminationEvents(prev, cur *gamestate.Snapshot) []Event {
	var evs []Event
	for _, pid := range prev.PlayerIDs() {
		hadAssets := prev.CityCount(pid) > 0 || prev.UnitCount(pid, false) > 0
		if !hadAssets {
			continue
		}
		if cur.CityCount(pid) > 0 || cur.UnitCount(pid, false) > 0 {
			continue
		}
		evs = append(evs, Event{
			Turn:        cur.Turn,
			Category:    PlayerEliminated,
			Actors:      []int{pid},
			Payload:     map[string]any{"player_id": pid},
			Description: d.ruleset.PlayerName(prev, pid) + " was eliminated",
			entity:      pid,
		})
	}
	return evs
}

func sortedCityIDs(s *gamestate.Snapshot) []int {
	ids := make([]int, 0, len(s.Cities))
	for id := range s.Cities {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedPairs(s *gamestate.Snapshot) []gamestate.PlayerPair {
	pairs := make([]gamestate.PlayerPair, 0, len(s.Relations))
	for p := range s.Relations {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})
	return pairs
}

func cityName(c gamestate.CityState, id int) string {
	if c.Name != "" {
		return c.Name
	}
	return "City " + strconv.Itoa(id)
}
