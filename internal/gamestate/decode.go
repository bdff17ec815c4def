package gamestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRecord reports a record that cannot be decoded at all
// (invalid JSON, or no turn number from either the record or its filename).
var ErrMalformedRecord = errors.New("malformed state record")

type rawRecord struct {
	Turn *int `json:"turn"`
	Step *int `json:"step"`

	Player map[string]json.RawMessage `json:"player"`
	City   map[string]json.RawMessage `json:"city"`
	Unit   map[string]json.RawMessage `json:"unit"`
	Map    *MapState                  `json:"map"`
	Dipl   map[string]json.RawMessage `json:"dipl"`

	Tech map[string]struct {
		Name string `json:"name"`
	} `json:"tech"`
}

type rawCity struct {
	CityState
	Owner *int `json:"owner"`
}

type rawUnit struct {
	UnitState
	Owner *int `json:"owner"`
}

type rawRelation struct {
	Player1 *int   `json:"player1"`
	Player2 *int   `json:"player2"`
	State   string `json:"state"`
}

// Decode parses a harness state record. The record's own turn number is
// required; use DecodeAt when the (turn, step) pair is already known from
// the file name. Unknown fields are ignored, missing optional sections are
// treated as empty, and entities missing required fields are dropped with
// a returned warning.
func Decode(data []byte) (*Snapshot, []string, error) {
	return decode(data, -1, -1)
}

// DecodeAt parses a record whose (turn, step) is authoritative from its
// location; a conflicting turn inside the record is reported as a warning,
// not an error.
func DecodeAt(data []byte, turn, step int) (*Snapshot, []string, error) {
	return decode(data, turn, step)
}

func decode(data []byte, turn, step int) (*Snapshot, []string, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	switch {
	case turn < 0 && raw.Turn == nil:
		return nil, nil, fmt.Errorf("%w: missing turn", ErrMalformedRecord)
	case turn < 0:
		turn = *raw.Turn
		if turn < 0 {
			return nil, nil, fmt.Errorf("%w: negative turn %d", ErrMalformedRecord, turn)
		}
	case raw.Turn != nil && *raw.Turn != turn:
		warnf("turn %d: record claims turn %d, file location wins", turn, *raw.Turn)
	}
	if step < 0 {
		if raw.Step != nil {
			step = *raw.Step
		} else {
			step = 0
		}
	}

	snap := &Snapshot{
		Turn:      turn,
		Step:      step,
		Players:   make(map[int]PlayerState, len(raw.Player)),
		Cities:    make(map[int]CityState, len(raw.City)),
		Units:     make(map[int]UnitState, len(raw.Unit)),
		Relations: make(map[PlayerPair]Relation, len(raw.Dipl)),
		Techs:     make(map[int]map[int]bool, len(raw.Player)),
	}
	if raw.Map != nil {
		snap.Map = *raw.Map
	}

	for key, msg := range raw.Player {
		id, err := strconv.Atoi(key)
		if err != nil {
			warnf("turn %d: player key %q is not an id, dropped", turn, key)
			continue
		}
		var p PlayerState
		if err := json.Unmarshal(msg, &p); err != nil {
			warnf("turn %d: player %d: %v, dropped", turn, id, err)
			continue
		}
		snap.Players[id] = p
		snap.Techs[id] = decodeTechFlags(msg)
	}

	for key, msg := range raw.City {
		id, err := strconv.Atoi(key)
		if err != nil {
			warnf("turn %d: city key %q is not an id, dropped", turn, key)
			continue
		}
		var c rawCity
		if err := json.Unmarshal(msg, &c); err != nil {
			warnf("turn %d: city %d: %v, dropped", turn, id, err)
			continue
		}
		if c.Owner == nil {
			warnf("turn %d: city %d: missing owner, dropped", turn, id)
			continue
		}
		c.CityState.Owner = *c.Owner
		snap.Cities[id] = c.CityState
	}

	for key, msg := range raw.Unit {
		id, err := strconv.Atoi(key)
		if err != nil {
			warnf("turn %d: unit key %q is not an id, dropped", turn, key)
			continue
		}
		var u rawUnit
		if err := json.Unmarshal(msg, &u); err != nil {
			warnf("turn %d: unit %d: %v, dropped", turn, id, err)
			continue
		}
		if u.Owner == nil {
			warnf("turn %d: unit %d: missing owner, dropped", turn, id)
			continue
		}
		u.UnitState.Owner = *u.Owner
		snap.Units[id] = u.UnitState
	}

	for key, msg := range raw.Dipl {
		var rel rawRelation
		if err := json.Unmarshal(msg, &rel); err != nil {
			warnf("turn %d: relation %q: %v, dropped", turn, key, err)
			continue
		}
		if rel.Player1 == nil || rel.Player2 == nil {
			warnf("turn %d: relation %q: missing player ids, dropped", turn, key)
			continue
		}
		pair := MakePair(*rel.Player1, *rel.Player2)
		snap.Relations[pair] = Relation{Player1: pair.A, Player2: pair.B, State: rel.State}
	}

	if len(raw.Tech) > 0 {
		snap.TechNames = make(map[int]string, len(raw.Tech))
		for key, ti := range raw.Tech {
			if id, err := strconv.Atoi(key); err == nil {
				snap.TechNames[id] = ti.Name
			}
		}
	}

	return snap, warnings, nil
}

// decodeTechFlags scans a player record for tech_N flags. The harness
// records either the raw tech state code (18 = known) or a plain boolean.
func decodeTechFlags(msg json.RawMessage) map[int]bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		return map[int]bool{}
	}
	techs := make(map[int]bool)
	for key, val := range fields {
		if !strings.HasPrefix(key, "tech_") {
			continue
		}
		id, err := strconv.Atoi(key[len("tech_"):])
		if err != nil {
			continue
		}
		switch string(val) {
		case "true":
			techs[id] = true
		default:
			var code float64
			if err := json.Unmarshal(val, &code); err == nil && int(code) == TechKnown {
				techs[id] = true
			}
		}
	}
	return techs
}
