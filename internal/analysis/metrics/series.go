// Package metrics turns a range of snapshots into named per-turn value
// series, organized by category. Extractors are pure functions of their
// inputs so the assembler can run them concurrently.
package metrics

// Point is one (turn, value) sample. Undefined marks a sample that has
// no meaningful value (e.g. a growth rate with no prior turn); undefined
// points are never reported as zero.
type Point struct {
	Turn      int     `json:"turn"`
	Value     float64 `json:"value"`
	Undefined bool    `json:"undefined,omitempty"`
}

// Series is an ordered sample sequence for one metric. Turns are
// strictly increasing; Add enforces that.
type Series struct {
	Points []Point `json:"points"`
}

// Add appends a sample. A sample at an already-present turn replaces the
// existing one; out-of-order turns are dropped.
func (s *Series) Add(p Point) {
	n := len(s.Points)
	if n > 0 {
		last := s.Points[n-1].Turn
		if p.Turn == last {
			s.Points[n-1] = p
			return
		}
		if p.Turn < last {
			return
		}
	}
	s.Points = append(s.Points, p)
}

// Last returns the final sample, if any.
func (s *Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Set is one category's output: world-level series plus per-entity
// series (entity is a player id in most categories, a tech id for
// first-discovery data).
type Set struct {
	Single    map[string]*Series         `json:"single,omitempty"`
	PerEntity map[string]map[int]*Series `json:"per_entity,omitempty"`
}

func NewSet() *Set {
	return &Set{
		Single:    map[string]*Series{},
		PerEntity: map[string]map[int]*Series{},
	}
}

func (s *Set) single(name string) *Series {
	sr, ok := s.Single[name]
	if !ok {
		sr = &Series{}
		s.Single[name] = sr
	}
	return sr
}

func (s *Set) entity(name string, id int) *Series {
	m, ok := s.PerEntity[name]
	if !ok {
		m = map[int]*Series{}
		s.PerEntity[name] = m
	}
	sr, ok := m[id]
	if !ok {
		sr = &Series{}
		m[id] = sr
	}
	return sr
}
