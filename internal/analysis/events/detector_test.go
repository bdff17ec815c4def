package events

import (
	"reflect"
	"testing"

	"github.com/elsehow/civrealm/internal/gamestate"
)

func snapAt(turn int) *gamestate.Snapshot {
	return &gamestate.Snapshot{
		Turn:      turn,
		Players:   map[int]gamestate.PlayerState{},
		Cities:    map[int]gamestate.CityState{},
		Units:     map[int]gamestate.UnitState{},
		Relations: map[gamestate.PlayerPair]gamestate.Relation{},
		Techs:     map[int]map[int]bool{},
	}
}

func byCategory(evs []Event, cat Category) []Event {
	var out []Event
	for _, e := range evs {
		if e.Category == cat {
			out = append(out, e)
		}
	}
	return out
}

func TestCityLifecycle(t *testing.T) {
	s10 := snapAt(10)
	s10.Players[0] = gamestate.PlayerState{Name: "Ada"}
	s10.Players[1] = gamestate.PlayerState{Name: "Grace"}
	s10.Cities[100] = gamestate.CityState{Owner: 0, Name: "Alpha", X: 3, Y: 4}

	s11 := snapAt(11)
	s11.Players = s10.Players
	s11.Cities[100] = s10.Cities[100]
	s11.Cities[101] = gamestate.CityState{Owner: 1, Name: "Beta"}

	s15 := snapAt(15)
	s15.Players = s10.Players
	s15.Cities[100] = gamestate.CityState{Owner: 1, Name: "Alpha", X: 3, Y: 4}

	evs, warns := NewDetector(nil).Detect([]*gamestate.Snapshot{s10, s11, s15})
	if len(warns) != 0 {
		t.Fatalf("warnings = %v", warns)
	}

	founded := byCategory(evs, CityFounded)
	if len(founded) != 2 {
		t.Fatalf("founded = %v", founded)
	}
	if founded[0].Turn != 10 || founded[0].Payload["initial"] != true {
		t.Fatalf("initial founding = %+v", founded[0])
	}
	if founded[1].Turn != 11 || founded[1].Payload["city_id"] != 101 {
		t.Fatalf("new founding = %+v", founded[1])
	}
	if _, marked := founded[1].Payload["initial"]; marked {
		t.Fatalf("turn 11 founding must not carry the initial marker")
	}

	conquered := byCategory(evs, CityConquered)
	if len(conquered) != 1 {
		t.Fatalf("conquered = %v", conquered)
	}
	got := conquered[0]
	if got.Turn != 15 || !reflect.DeepEqual(got.Actors, []int{1, 0}) {
		t.Fatalf("conquest = %+v", got)
	}
	if got.Payload["prev_owner"] != 0 || got.Payload["new_owner"] != 1 {
		t.Fatalf("conquest payload = %v", got.Payload)
	}

	lost := byCategory(evs, CityLost)
	if len(lost) != 1 || lost[0].Turn != 15 || lost[0].Payload["city_id"] != 101 {
		t.Fatalf("lost = %v", lost)
	}
}

func TestDiplomacyTransitions(t *testing.T) {
	s20 := snapAt(20)
	s20.Players[0] = gamestate.PlayerState{}
	s20.Players[2] = gamestate.PlayerState{}
	s20.Relations[gamestate.MakePair(2, 0)] = gamestate.Relation{Player1: 0, Player2: 2, State: "neutral"}

	s21 := snapAt(21)
	s21.Players = s20.Players
	s21.Relations[gamestate.MakePair(2, 0)] = gamestate.Relation{Player1: 0, Player2: 2, State: "war"}

	s22 := snapAt(22)
	s22.Players = s20.Players
	s22.Relations[gamestate.MakePair(2, 0)] = gamestate.Relation{Player1: 0, Player2: 2, State: "peace"}

	s23 := snapAt(23)
	s23.Players = s20.Players
	s23.Relations[gamestate.MakePair(2, 0)] = gamestate.Relation{Player1: 0, Player2: 2, State: "alliance"}

	evs, _ := NewDetector(nil).Detect([]*gamestate.Snapshot{s20, s21, s22, s23})

	war := byCategory(evs, WarDeclared)
	if len(war) != 1 || war[0].Turn != 21 {
		t.Fatalf("war = %v", war)
	}
	if !reflect.DeepEqual(war[0].Actors, []int{0, 2}) {
		t.Fatalf("war actors = %v, want ascending pair", war[0].Actors)
	}

	peace := byCategory(evs, PeaceTreaty)
	if len(peace) != 1 || peace[0].Turn != 22 {
		t.Fatalf("peace = %v", peace)
	}
	alliance := byCategory(evs, AllianceFormed)
	if len(alliance) != 1 || alliance[0].Turn != 23 {
		t.Fatalf("alliance = %v", alliance)
	}
}

func TestTechAndGovernmentEvents(t *testing.T) {
	rs := &gamestate.Ruleset{Nations: map[int]gamestate.Nation{5: {Adjective: "Roman"}}}

	s1 := snapAt(1)
	s1.Players[0] = gamestate.PlayerState{Nation: 5, GovernmentName: "Despotism"}
	s1.Techs[0] = map[int]bool{1: true}

	s2 := snapAt(2)
	s2.Players[0] = gamestate.PlayerState{Nation: 5, GovernmentName: "Monarchy"}
	s2.Techs[0] = map[int]bool{1: true, 7: true, 3: true}
	s2.TechNames = map[int]string{7: "Currency"}

	evs, _ := NewDetector(rs).Detect([]*gamestate.Snapshot{s1, s2})

	techs := byCategory(evs, TechDiscovered)
	if len(techs) != 2 {
		t.Fatalf("techs = %v", techs)
	}
	// Tech ids ascending within the turn.
	if techs[0].Payload["tech_id"] != 3 || techs[1].Payload["tech_id"] != 7 {
		t.Fatalf("tech order = %v, %v", techs[0].Payload, techs[1].Payload)
	}
	if techs[1].Payload["tech_name"] != "Currency" {
		t.Fatalf("tech name = %v", techs[1].Payload)
	}
	if techs[1].Description != "Roman discovered Currency" {
		t.Fatalf("description = %q", techs[1].Description)
	}

	gov := byCategory(evs, GovernmentChange)
	if len(gov) != 1 || gov[0].Payload["from"] != "Despotism" || gov[0].Payload["to"] != "Monarchy" {
		t.Fatalf("government = %v", gov)
	}
}

func TestEliminationRequiresPriorAssets(t *testing.T) {
	s1 := snapAt(1)
	s1.Players[0] = gamestate.PlayerState{}
	s1.Players[1] = gamestate.PlayerState{}
	s1.Units[10] = gamestate.UnitState{Owner: 0}

	s2 := snapAt(2)
	s2.Players = s1.Players

	evs, _ := NewDetector(nil).Detect([]*gamestate.Snapshot{s1, s2})
	elim := byCategory(evs, PlayerEliminated)
	if len(elim) != 1 {
		t.Fatalf("eliminations = %v", elim)
	}
	if elim[0].Actors[0] != 0 {
		t.Fatalf("eliminated = %v, player 1 never had assets", elim)
	}
}

func TestMalformedSnapshotSkippedWithWarning(t *testing.T) {
	s1 := snapAt(1)
	s1.Players[0] = gamestate.PlayerState{}
	s1.Cities[100] = gamestate.CityState{Owner: 0, Name: "Alpha"}

	bad := snapAt(2) // no players

	s3 := snapAt(3)
	s3.Players = s1.Players
	s3.Cities[100] = s1.Cities[100]
	s3.Cities[101] = gamestate.CityState{Owner: 0, Name: "Beta"}

	evs, warns := NewDetector(nil).Detect([]*gamestate.Snapshot{s1, bad, s3})
	if len(warns) != 1 || warns[0].Turn != 2 {
		t.Fatalf("warnings = %v", warns)
	}
	// Turn 3 compares against turn 1, so only the new city is reported.
	founded := byCategory(evs, CityFounded)
	if len(founded) != 2 {
		t.Fatalf("founded = %v", founded)
	}
	if founded[1].Turn != 3 || founded[1].Payload["city_id"] != 101 {
		t.Fatalf("founded after gap = %+v", founded[1])
	}
}

func TestDetectIsIdempotentAndOrdered(t *testing.T) {
	s1 := snapAt(1)
	s1.Players[0] = gamestate.PlayerState{}
	s1.Players[1] = gamestate.PlayerState{}
	s1.Techs[0] = map[int]bool{}
	s1.Techs[1] = map[int]bool{}
	s1.Relations[gamestate.MakePair(0, 1)] = gamestate.Relation{Player1: 0, Player2: 1, State: "peace"}

	s2 := snapAt(2)
	s2.Players = s1.Players
	s2.Cities[50] = gamestate.CityState{Owner: 1, Name: "Beta"}
	s2.Cities[40] = gamestate.CityState{Owner: 0, Name: "Alpha"}
	s2.Techs[0] = map[int]bool{4: true}
	s2.Techs[1] = map[int]bool{2: true}
	s2.Relations[gamestate.MakePair(0, 1)] = gamestate.Relation{Player1: 0, Player2: 1, State: "war"}

	d := NewDetector(nil)
	first, _ := d.Detect([]*gamestate.Snapshot{s1, s2})
	// Same input in reverse order must produce the identical sequence.
	second, _ := d.Detect([]*gamestate.Snapshot{s2, s1})
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("detection is order-sensitive:\n%v\n%v", first, second)
	}

	for i := 1; i < len(first); i++ {
		a, b := first[i-1], first[i]
		if a.Turn > b.Turn {
			t.Fatalf("events out of turn order: %v before %v", a, b)
		}
		if a.Turn == b.Turn && a.Category > b.Category {
			t.Fatalf("events out of category order: %v before %v", a, b)
		}
	}
}
