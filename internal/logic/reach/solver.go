package reach

import "reachtracker.dev/internal/logic/graph"

func (s *State) ensure() {
	if s.stale && !s.updating {
		s.Update()
	}
}

// Update runs region expansion to a fixpoint. Connections are scanned in
// graph definition order and the scan repeats until a full pass reaches
// nothing new; the first connection to reach a region is kept in the
// predecessor trace. Rules that ask about reachability while the scan is
// running see the regions reached so far.
func (s *State) Update() {
	if s.updating {
		return
	}
	s.updating = true
	defer func() { s.updating = false }()
	s.stale = false

	conns := s.g.Connections()
	for {
		grew := false
		for _, c := range conns {
			if c.Target == nil || s.reached[c.Target.Index()] || !s.reached[c.Source.Index()] {
				continue
			}
			if s.check(c.Name, c.Rule) {
				s.mark(c.Target, c)
				grew = true
			}
		}
		if !grew {
			return
		}
	}
}

// SweepEvents collects every reachable event location of the graph,
// re-expanding regions after each pass until a pass collects nothing. It
// returns the number of events collected.
func (s *State) SweepEvents() int { return s.Sweep(s.g.EventLocations()) }

// Sweep is SweepEvents restricted to locs. Locations with an address are
// skipped; locations are visited in the order given.
func (s *State) Sweep(locs []*graph.Location) int {
	total := 0
	for {
		s.ensure()
		n := 0
		for _, l := range locs {
			if l.HasAddress || s.advanced[l.Index()] {
				continue
			}
			if !s.reached[l.Region.Index()] || !s.check(l.Name, l.Rule) {
				continue
			}
			it := graph.Item{Name: l.EventItem, Player: s.player, Flags: graph.Progression, Origin: l}
			if s.Collect(it, true) {
				n++
			}
		}
		total += n
		if n == 0 {
			return total
		}
	}
}
