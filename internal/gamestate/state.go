package gamestate

import (
	"fmt"
	"sort"
)

// TechKnown is the tech state code the harness records for a researched
// technology (freeciv TECH_KNOWN).
const TechKnown = 18

// Arable terrain ids: Forest, Grassland, Hills, Jungle, Plains, Swamp.
var ArableTerrain = map[int]bool{5: true, 6: true, 7: true, 8: true, 10: true, 11: true}

// Snapshot is the parsed, immutable world state for one (turn, step).
// It is created once by decoding a harness record and never mutated;
// consumers borrow it from the store and must not write to its maps.
type Snapshot struct {
	Turn int
	Step int

	Players   map[int]PlayerState
	Cities    map[int]CityState
	Units     map[int]UnitState
	Map       MapState
	Relations map[PlayerPair]Relation

	// Techs holds the researched tech-id set per player, derived from the
	// per-player tech_N flags at decode time.
	Techs map[int]map[int]bool

	// TechNames maps tech id to display name when the record carries a
	// tech section (optional).
	TechNames map[int]string
}

type PlayerState struct {
	Name           string  `json:"name"`
	Nation         int     `json:"nation"`
	Gold           float64 `json:"gold"`
	Science        float64 `json:"science"`
	Score          float64 `json:"score"`
	Culture        float64 `json:"culture"`
	GovernmentName string  `json:"government_name"`
}

type CityState struct {
	Owner       int     `json:"owner"`
	Name        string  `json:"name"`
	X           int     `json:"x"`
	Y           int     `json:"y"`
	Size        float64 `json:"size"`
	ProdFood    float64 `json:"prod_food"`
	ProdShield  float64 `json:"prod_shield"`
	ProdTrade   float64 `json:"prod_trade"`
	TradeRoutes int     `json:"trade_routes"`

	PplHappy   float64 `json:"ppl_happy"`
	PplContent float64 `json:"ppl_content"`
	PplUnhappy float64 `json:"ppl_unhappy"`
	PplAngry   float64 `json:"ppl_angry"`
}

type UnitState struct {
	Owner          int     `json:"owner"`
	Type           int     `json:"type"`
	AttackStrength float64 `json:"type_attack_strength"`
}

type MapState struct {
	XSize     int   `json:"xsize"`
	YSize     int   `json:"ysize"`
	TileOwner []int `json:"tile_owner"`
	Terrain   []int `json:"terrain"`
}

// Relation is the recorded diplomatic state between one ordered player pair.
type Relation struct {
	Player1 int    `json:"player1"`
	Player2 int    `json:"player2"`
	State   string `json:"state"`
}

// PlayerPair keys a diplomatic relation; A < B always.
type PlayerPair struct {
	A, B int
}

func MakePair(a, b int) PlayerPair {
	if a > b {
		a, b = b, a
	}
	return PlayerPair{A: a, B: b}
}

// TechName returns the display name for a tech id when the record
// carried one, or a stable placeholder.
func (s *Snapshot) TechName(id int) string {
	if name, ok := s.TechNames[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("Tech #%d", id)
}

// PlayerIDs returns the snapshot's player ids in ascending order.
func (s *Snapshot) PlayerIDs() []int {
	ids := make([]int, 0, len(s.Players))
	for id := range s.Players {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TerritorySize counts tiles owned by the player.
func (s *Snapshot) TerritorySize(player int) int {
	n := 0
	for _, owner := range s.Map.TileOwner {
		if owner == player {
			n++
		}
	}
	return n
}

// ArableLand counts owned tiles whose terrain is farmable.
func (s *Snapshot) ArableLand(player int) int {
	if len(s.Map.Terrain) != len(s.Map.TileOwner) {
		return 0
	}
	n := 0
	for i, owner := range s.Map.TileOwner {
		if owner == player && ArableTerrain[s.Map.Terrain[i]] {
			n++
		}
	}
	return n
}

// CityCount counts cities owned by the player.
func (s *Snapshot) CityCount(player int) int {
	n := 0
	for _, c := range s.Cities {
		if c.Owner == player {
			n++
		}
	}
	return n
}

// UnitCount counts units owned by the player; militaryOnly restricts to
// units with a positive attack strength.
func (s *Snapshot) UnitCount(player int, militaryOnly bool) int {
	n := 0
	for _, u := range s.Units {
		if u.Owner != player {
			continue
		}
		if militaryOnly && u.AttackStrength <= 0 {
			continue
		}
		n++
	}
	return n
}

// AggregateCityMetric sums one recorded city field across the player's
// cities. Negative values mark missing fog-of-war data and are skipped,
// matching the harness recording convention.
func (s *Snapshot) AggregateCityMetric(player int, get func(CityState) float64) float64 {
	total := 0.0
	for _, c := range s.Cities {
		if c.Owner != player {
			continue
		}
		if v := get(c); v >= 0 {
			total += v
		}
	}
	return total
}

// Population is the sum of the player's city sizes.
func (s *Snapshot) Population(player int) float64 {
	return s.AggregateCityMetric(player, func(c CityState) float64 { return c.Size })
}

// Happiness aggregates citizen mood counts across the player's cities.
type Happiness struct {
	Happy   int `json:"happy"`
	Content int `json:"content"`
	Unhappy int `json:"unhappy"`
	Angry   int `json:"angry"`
}

func (s *Snapshot) AggregateHappiness(player int) Happiness {
	var h Happiness
	for _, c := range s.Cities {
		if c.Owner != player {
			continue
		}
		if c.PplHappy >= 0 {
			h.Happy += int(c.PplHappy)
		}
		if c.PplContent >= 0 {
			h.Content += int(c.PplContent)
		}
		if c.PplUnhappy >= 0 {
			h.Unhappy += int(c.PplUnhappy)
		}
		if c.PplAngry >= 0 {
			h.Angry += int(c.PplAngry)
		}
	}
	return h
}
