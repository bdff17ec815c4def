package gamestate

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Ruleset is the read-only nation lookup loaded once per run. Immutable
// after load; safe for concurrent readers.
type Ruleset struct {
	Nations map[int]Nation
}

type Nation struct {
	Adjective string `json:"adjective"`
	RuleName  string `json:"rule_name"`
}

// LoadRuleset reads a nations.json mapping. A missing file is not an
// error: name resolution falls back to recorded player names.
func LoadRuleset(path string) (*Ruleset, error) {
	rs := &Ruleset{Nations: map[int]Nation{}}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rs, nil
		}
		return nil, err
	}
	var raw struct {
		Nations map[string]Nation `json:"nations"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("nations.json: %w", err)
	}
	for key, n := range raw.Nations {
		if id, err := strconv.Atoi(key); err == nil {
			rs.Nations[id] = n
		}
	}
	return rs, nil
}

// NationName returns the display name for a nation id, preferring the
// adjective form with the rule name as fallback.
func (r *Ruleset) NationName(nationID int) string {
	n, ok := r.Nations[nationID]
	if !ok {
		return ""
	}
	if n.Adjective != "" {
		return n.Adjective
	}
	return n.RuleName
}

// PlayerName resolves a display name for a player in a snapshot:
// nation name, then the recorded player name, then "Player N".
func (r *Ruleset) PlayerName(snap *Snapshot, player int) string {
	p, ok := snap.Players[player]
	if ok {
		if name := r.NationName(p.Nation); name != "" {
			return name
		}
		if p.Name != "" {
			return p.Name
		}
	}
	return fmt.Sprintf("Player %d", player)
}
