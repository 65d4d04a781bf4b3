package tracker

import (
	"fmt"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/rules"
)

// Path returns the connections walked from the start region to name, which
// may be a region or a location (its region is used). The path is empty
// when the target is unreachable or is the start region.
func (s *Snapshot) Path(name string) ([]string, error) {
	if err := s.queryable(); err != nil {
		return nil, err
	}
	r, ok := s.graph.Region(name)
	if !ok {
		l, ok := s.graph.Location(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, name)
		}
		r = l.Region
	}
	conns := s.State.Path(r)
	out := make([]string, len(conns))
	for i, c := range conns {
		out[i] = c.Name
	}
	return out, nil
}

// Explain evaluates the access requirements of a region, location or
// connection against the snapshot's state without changing it. A region's requirement is any
// of its entrances; a location or connection also requires its parent
// region.
func (s *Snapshot) Explain(name string) (rules.Explanation, error) {
	if err := s.queryable(); err != nil {
		return rules.Explanation{}, err
	}
	r, err := s.requirement(name)
	if err != nil {
		return rules.Explanation{}, err
	}
	return rules.Explain(r, s.State.ReadOnly()), nil
}

func (s *Snapshot) requirement(name string) (rules.Rule, error) {
	if r, ok := s.graph.Region(name); ok {
		return regionRequirement(s.graph, r), nil
	}
	if l, ok := s.graph.Location(name); ok {
		return within(l.Region, l.Rule), nil
	}
	if c, ok := s.graph.Connection(name); ok {
		return within(c.Source, c.Rule), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownName, name)
}

func regionRequirement(g *graph.Graph, r *graph.Region) rules.Rule {
	if r == g.Start {
		return rules.Always
	}
	entrances := make(rules.Any, 0, len(r.Entrances))
	for _, c := range r.Entrances {
		entrances = append(entrances, within(c.Source, c.Rule))
	}
	return entrances
}

func within(r *graph.Region, rule rules.Rule) rules.Rule {
	if rule == nil {
		return rules.Reach{Region: r.Name}
	}
	return rules.All{rules.Reach{Region: r.Name}, rule}
}

func (s *Snapshot) queryable() error {
	if !s.Initialized || s.State == nil {
		return ErrNotInitialized
	}
	if s.raceMode {
		return ErrRaceMode
	}
	return nil
}
