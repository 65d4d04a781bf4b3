package tracker

import (
	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/reach"
)

type classifier struct {
	g        *graph.Graph
	settings Settings
	in       Input
	snap     *Snapshot

	// candidates are outstanding, visible, addressed locations in graph
	// order.
	candidates []*graph.Location
	inLogic    map[int64]bool
	glitch     []*graph.Location
	regionSeen map[*graph.Region]bool
}

func newClassifier(g *graph.Graph, settings Settings, in Input, snap *Snapshot) *classifier {
	c := &classifier{
		g:          g,
		settings:   settings,
		in:         in,
		snap:       snap,
		inLogic:    map[int64]bool{},
		regionSeen: map[*graph.Region]bool{},
	}
	for _, l := range g.Locations() {
		if !l.HasAddress {
			continue
		}
		switch {
		case in.Checked[l.Address]:
			snap.Statuses[l.Address] = Status{Category: Collected}
		case in.Ignored[l.Address]:
			snap.Statuses[l.Address] = Status{Category: Ignored}
		case !in.Missing[l.Address]:
		case settings.HideExcluded && l.Progress == graph.ProgressExcluded:
		default:
			c.candidates = append(c.candidates, l)
		}
	}
	return c
}

func (c *classifier) base(s *reach.State) {
	for _, l := range c.candidates {
		if !s.CanReachLocation(l) {
			continue
		}
		c.inLogic[l.Address] = true
		c.snap.InLogic = append(c.snap.InLogic, l.Name)
		c.snap.InLogicAddresses = append(c.snap.InLogicAddresses, l.Address)
		c.snap.Statuses[l.Address] = c.status(l, InLogic)
		c.readable(l)
		if !c.regionSeen[l.Region] {
			c.regionSeen[l.Region] = true
			c.snap.Regions = append(c.snap.Regions, l.Region.Name)
		}
	}
}

func (c *classifier) needsGlitchPass() bool {
	return len(c.inLogic) < len(c.candidates)
}

// glitched records candidates reachable under the speculative state that
// were not in logic under the base state.
func (c *classifier) glitched(s *reach.State) {
	for _, l := range c.candidates {
		if c.inLogic[l.Address] || !s.CanReachLocation(l) {
			continue
		}
		c.glitch = append(c.glitch, l)
	}
}

// finish lists glitched locations after the in-logic ones and assigns
// out_of_logic to the rest. Glitched locations always land in Glitched and
// Regions; the glitched category and readable lines need ShowGlitched.
func (c *classifier) finish() {
	shown := map[int64]bool{}
	for _, l := range c.glitch {
		c.snap.Glitched = append(c.snap.Glitched, l.Name)
		if c.settings.ShowGlitched {
			shown[l.Address] = true
			c.snap.Statuses[l.Address] = c.status(l, Glitched)
			c.readable(l)
		}
		if !c.regionSeen[l.Region] {
			c.regionSeen[l.Region] = true
			c.snap.Regions = append(c.snap.Regions, l.Region.Name)
		}
	}
	for _, l := range c.candidates {
		if !c.inLogic[l.Address] && !shown[l.Address] {
			c.snap.Statuses[l.Address] = c.status(l, OutOfLogic)
		}
	}
}

func (c *classifier) status(l *graph.Location, cat Category) Status {
	st := Status{Category: cat, Hinted: c.in.Hinted[l.Address]}
	if st.Hinted && cat != OutOfLogic {
		c.snap.Hinted = append(c.snap.Hinted, l.Name)
	}
	return st
}

func (c *classifier) readable(l *graph.Location) {
	switch c.settings.Format {
	case FormatLocation:
		c.snap.Readable = append(c.snap.Readable, l.DisplayName())
	case FormatRegion:
		if !c.regionSeen[l.Region] {
			c.snap.Readable = append(c.snap.Readable, l.Region.Name)
		}
	default:
		c.snap.Readable = append(c.snap.Readable, l.Region.Name+" | "+l.DisplayName())
	}
}

// classifyEntrances lists reachable deferred exits of reached regions and
// classifies connections with externally tracked discovery state.
func classifyEntrances(g *graph.Graph, s *reach.State, in Input, snap *Snapshot) {
	for _, r := range s.Regions() {
		for _, c := range r.Exits {
			if c.Deferred() && s.CanReachConnection(c) {
				snap.Unconnected = append(snap.Unconnected, c.Name)
			}
		}
	}
	if len(in.FoundEntrances) == 0 {
		return
	}
	snap.Entrances = make(map[string]EntranceState, len(in.FoundEntrances))
	for name, found := range in.FoundEntrances {
		c, ok := g.Connection(name)
		if !ok {
			continue
		}
		switch reachable := s.CanReachConnection(c); {
		case reachable && found:
			snap.Entrances[name] = Passed
		case reachable:
			snap.Entrances[name] = Passable
		default:
			snap.Entrances[name] = Impassable
		}
	}
}
