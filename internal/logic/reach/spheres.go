package reach

import "reachtracker.dev/internal/logic/graph"

// Spheres plays a full placement forward the way a generator does: each
// sphere is the set of addressed locations reachable with the items from
// every earlier sphere. placements maps location names to the item placed
// there; locations without an entry yield nothing. Unreachable locations
// appear in no sphere.
func Spheres(g *graph.Graph, player int, placements map[string]graph.Item, precollected []graph.Item) [][]*graph.Location {
	s := New(g, player)
	for _, it := range precollected {
		s.Collect(it, false)
	}
	done := make([]bool, len(g.Locations()))
	var out [][]*graph.Location
	for {
		s.SweepEvents()
		var sphere []*graph.Location
		for _, l := range g.Locations() {
			if !l.HasAddress || done[l.Index()] {
				continue
			}
			if s.CanReachLocation(l) {
				sphere = append(sphere, l)
			}
		}
		if len(sphere) == 0 {
			return out
		}
		for _, l := range sphere {
			done[l.Index()] = true
			if it, ok := placements[l.Name]; ok {
				it.Origin = l
				s.Collect(it, false)
			}
		}
		out = append(out, sphere)
	}
}
