// Package reach holds the per-tick collection state and the fixpoint solver
// that decides which regions, locations and connections are reachable.
package reach

import (
	"maps"
	"slices"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/rules"
)

// Fault is a rule that could not be evaluated. The owning node is treated
// as unreachable.
type Fault struct {
	Owner string
	Err   error
}

// State is the collection state of one player for one tick. It is built
// from scratch every recompute and never shared between ticks.
type State struct {
	g      *graph.Graph
	player int

	counts map[string]int

	reached []bool
	order   []*graph.Region
	// entered[i] is the connection that first reached region i; nil for the
	// start region and for unreached regions.
	entered []*graph.Connection

	advanced []bool
	events   []*graph.Location

	stale    bool
	updating bool

	faults     map[string]error
	faultOrder []string
}

func New(g *graph.Graph, player int) *State {
	s := &State{
		g:        g,
		player:   player,
		counts:   map[string]int{},
		reached:  make([]bool, len(g.Regions())),
		entered:  make([]*graph.Connection, len(g.Regions())),
		advanced: make([]bool, len(g.Locations())),
		stale:    true,
		faults:   map[string]error{},
	}
	if g.Start != nil {
		s.reached[g.Start.Index()] = true
		s.order = append(s.order, g.Start)
	}
	return s
}

func (s *State) Graph() *graph.Graph { return s.g }
func (s *State) Player() int         { return s.player }

// Collect adds one copy of it. With event set and an origin location, the
// item is recorded as that location's advancement; a location yields at
// most one advancement per state, so a repeat returns false and changes
// nothing.
func (s *State) Collect(it graph.Item, event bool) bool {
	if event && it.Advancement() && it.Origin != nil {
		idx := it.Origin.Index()
		if s.advanced[idx] {
			return false
		}
		s.advanced[idx] = true
		s.events = append(s.events, it.Origin)
	}
	s.counts[it.Name]++
	s.stale = true
	return true
}

func (s *State) Count(item string) int { return s.counts[item] }

func (s *State) KnownItem(item string) bool { return s.g.KnownItem(item) }

func (s *State) RegionReached(name string) (bool, bool) {
	r, ok := s.g.Region(name)
	if !ok {
		return false, false
	}
	return s.CanReachRegion(r), true
}

func (s *State) LocationReached(name string) (bool, bool) {
	l, ok := s.g.Location(name)
	if !ok {
		return false, false
	}
	return s.CanReachLocation(l), true
}

// Items returns a copy of the owned item counts.
func (s *State) Items() map[string]int { return maps.Clone(s.counts) }

// ReachedRegions returns the names of reached regions in reach order.
func (s *State) ReachedRegions() []string {
	s.ensure()
	out := make([]string, len(s.order))
	for i, r := range s.order {
		out[i] = r.Name
	}
	return out
}

// Regions returns the reached regions in the order they were reached.
func (s *State) Regions() []*graph.Region {
	s.ensure()
	return slices.Clone(s.order)
}

// Events returns the event locations collected so far, in collection order.
func (s *State) Events() []*graph.Location { return slices.Clone(s.events) }

// Advanced reports whether l's event item has been collected.
func (s *State) Advanced(l *graph.Location) bool { return s.advanced[l.Index()] }

func (s *State) CanReachRegion(r *graph.Region) bool {
	s.ensure()
	return s.reached[r.Index()]
}

func (s *State) CanReachLocation(l *graph.Location) bool {
	return s.CanReachRegion(l.Region) && s.check(l.Name, l.Rule)
}

func (s *State) CanReachConnection(c *graph.Connection) bool {
	return s.CanReachRegion(c.Source) && s.check(c.Name, c.Rule)
}

// CanReach resolves name as a region, then a location, then a connection.
// The second result is false when nothing by that name exists.
func (s *State) CanReach(name string) (bool, bool) {
	if r, ok := s.g.Region(name); ok {
		return s.CanReachRegion(r), true
	}
	if l, ok := s.g.Location(name); ok {
		return s.CanReachLocation(l), true
	}
	if c, ok := s.g.Connection(name); ok {
		return s.CanReachConnection(c), true
	}
	return false, false
}

// Path lists the connections from the start region to r along the
// predecessor trace. It is nil when r is unreachable and empty for the
// start region.
func (s *State) Path(r *graph.Region) []*graph.Connection {
	if !s.CanReachRegion(r) {
		return nil
	}
	out := []*graph.Connection{}
	for cur := r; cur != s.g.Start; {
		c := s.entered[cur.Index()]
		if c == nil {
			break
		}
		out = append(out, c)
		cur = c.Source
	}
	slices.Reverse(out)
	return out
}

// Faults lists the rules that faulted, first occurrence per owner.
func (s *State) Faults() []Fault {
	out := make([]Fault, 0, len(s.faultOrder))
	for _, owner := range s.faultOrder {
		out = append(out, Fault{Owner: owner, Err: s.faults[owner]})
	}
	return out
}

// Clone returns an independent copy; solving the clone leaves s untouched.
func (s *State) Clone() *State {
	c := *s
	c.counts = maps.Clone(s.counts)
	c.reached = slices.Clone(s.reached)
	c.order = slices.Clone(s.order)
	c.entered = slices.Clone(s.entered)
	c.advanced = slices.Clone(s.advanced)
	c.events = slices.Clone(s.events)
	c.faults = maps.Clone(s.faults)
	c.faultOrder = slices.Clone(s.faultOrder)
	c.updating = false
	return &c
}

// ReadOnly returns a view of s for queries that must leave it untouched.
// Location rules evaluated through the view are not recorded as faults.
func (s *State) ReadOnly() rules.State { return readOnly{s} }

type readOnly struct{ *State }

func (v readOnly) LocationReached(name string) (bool, bool) {
	l, ok := v.g.Location(name)
	if !ok {
		return false, false
	}
	if !v.CanReachRegion(l.Region) {
		return false, true
	}
	res, _ := rules.Evaluate(l.Rule, v)
	return res == rules.Satisfied, true
}

func (s *State) check(owner string, r rules.Rule) bool {
	res, err := rules.Evaluate(r, s)
	if res == rules.Faulted {
		if _, seen := s.faults[owner]; !seen {
			s.faults[owner] = err
			s.faultOrder = append(s.faultOrder, owner)
		}
	}
	return res == rules.Satisfied
}

func (s *State) mark(r *graph.Region, via *graph.Connection) {
	s.reached[r.Index()] = true
	s.entered[r.Index()] = via
	s.order = append(s.order, r)
}
