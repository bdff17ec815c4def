// Package events derives the discrete historical record of a game run by
// diffing consecutive world-state snapshots. Detection is a pure fold
// over ordered snapshot pairs: the same range always yields the same
// event sequence, in the same order.
package events

type Category string

const (
	WarDeclared      Category = "war_declared"
	PeaceTreaty      Category = "peace_treaty"
	AllianceFormed   Category = "alliance_formed"
	RelationChanged  Category = "relation_changed"
	CityFounded      Category = "city_founded"
	CityConquered    Category = "city_conquered"
	CityLost         Category = "city_lost"
	TechDiscovered   Category = "tech_discovered"
	GovernmentChange Category = "government_change"
	PlayerEliminated Category = "player_eliminated"
)

// Event is one derived historical fact. Events are never persisted as
// ground truth; regenerating them from the same snapshots is idempotent.
type Event struct {
	Turn        int            `json:"turn"`
	Category    Category       `json:"category"`
	Actors      []int          `json:"actors"`
	Payload     map[string]any `json:"payload,omitempty"`
	Description string         `json:"description"`

	entity int // sort tie-break within (turn, category, first actor)
}

// Warning records a skipped turn-pair comparison. Detection favors
// partial results over aborting the run.
type Warning struct {
	Turn    int    `json:"turn"`
	Message string `json:"message"`
}
