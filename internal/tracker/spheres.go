package tracker

import (
	"fmt"
	"slices"
	"strings"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/reach"
)

// Placement is the item a generator put at a location. An empty Item
// means the location holds nothing for this slot.
type Placement struct {
	Location string `yaml:"location" json:"location"`
	Item     string `yaml:"item" json:"item"`
}

type Sphere []Placement

// SphereError reports the first sphere whose in-logic set differs from the
// generator's.
type SphereError struct {
	Sphere     int
	Unexpected []string
	Missing    []string
}

func (e *SphereError) Error() string {
	var parts []string
	if len(e.Unexpected) > 0 {
		parts = append(parts, "in logic but not in sphere: "+strings.Join(e.Unexpected, ", "))
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "in sphere but not in logic: "+strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("sphere %d: %s", e.Sphere, strings.Join(parts, "; "))
}

// VerifySpheres replays a generator's spheres through Recompute. Before
// each sphere the in-logic set must equal that sphere's addressed
// locations exactly; the sphere's items are then received and its
// locations checked. Replay stops at the first empty sphere.
func (t *Tracker) VerifySpheres(precollected []string, spheres []Sphere) error {
	g, player := t.Graph(), t.Player()
	if g == nil {
		return ErrNotInitialized
	}
	var inventory []ReceivedItem
	for _, name := range precollected {
		ri, err := received(g, name, -2, player)
		if err != nil {
			return fmt.Errorf("precollected: %w", err)
		}
		inventory = append(inventory, ri)
	}
	remaining := AllMissing(g, nil)

	for n, sphere := range spheres {
		want := map[string]Placement{}
		var placed []Placement
		for _, p := range sphere {
			l, ok := g.Location(p.Location)
			if !ok {
				return fmt.Errorf("sphere %d: %w: %q", n, ErrUnknownName, p.Location)
			}
			if _, dup := want[l.Name]; l.HasAddress && !dup {
				want[l.Name] = p
				placed = append(placed, p)
			}
		}
		if len(want) == 0 {
			return nil
		}
		snap, err := t.Recompute(Input{Items: inventory, ItemsHandling: 0b111, Missing: remaining})
		if err != nil {
			return fmt.Errorf("sphere %d: %w", n, err)
		}
		serr := &SphereError{Sphere: n}
		for _, name := range snap.InLogic {
			if _, ok := want[name]; !ok {
				serr.Unexpected = append(serr.Unexpected, name)
			}
		}
		for name := range want {
			if !slices.Contains(snap.InLogic, name) {
				serr.Missing = append(serr.Missing, name)
			}
		}
		if len(serr.Unexpected) > 0 || len(serr.Missing) > 0 {
			slices.Sort(serr.Missing)
			return serr
		}
		inventory, err = receiveSphere(g, player, placed, remaining, inventory)
		if err != nil {
			return fmt.Errorf("sphere %d: %w", n, err)
		}
	}
	return nil
}

// receiveSphere marks the placed locations checked and appends their items
// to inventory in placement order.
func receiveSphere(g *graph.Graph, player int, placed []Placement, remaining map[int64]bool, inventory []ReceivedItem) ([]ReceivedItem, error) {
	for _, p := range placed {
		l, ok := g.Location(p.Location)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownName, p.Location)
		}
		delete(remaining, l.Address)
		if p.Item == "" {
			continue
		}
		ri, err := received(g, p.Item, l.Address, player)
		if err != nil {
			return nil, err
		}
		inventory = append(inventory, ri)
	}
	return inventory, nil
}

func received(g *graph.Graph, name string, location int64, player int) (ReceivedItem, error) {
	def, ok := g.Item(name)
	if !ok || def.ID == 0 {
		return ReceivedItem{}, fmt.Errorf("%w: item %q has no id", ErrUnknownName, name)
	}
	return ReceivedItem{ItemID: def.ID, Location: location, Player: player, Flags: def.Flags}, nil
}

// PlaySpheres derives spheres from a full placement (location name to item
// name) by playing it forward on g.
func PlaySpheres(g *graph.Graph, player int, placements map[string]string, precollected []string) ([]Sphere, error) {
	items := make(map[string]graph.Item, len(placements))
	for loc, name := range placements {
		if _, ok := g.Location(loc); !ok {
			return nil, fmt.Errorf("%w: location %q", ErrUnknownName, loc)
		}
		if name == "" {
			continue
		}
		def, ok := g.Item(name)
		if !ok {
			return nil, fmt.Errorf("%w: item %q", ErrUnknownName, name)
		}
		items[loc] = graph.Item{Name: def.Name, Player: player, Flags: def.Flags, ID: def.ID}
	}
	var start []graph.Item
	for _, name := range precollected {
		def, ok := g.Item(name)
		if !ok {
			return nil, fmt.Errorf("%w: item %q", ErrUnknownName, name)
		}
		start = append(start, graph.Item{Name: def.Name, Player: player, Flags: def.Flags, ID: def.ID})
	}
	var out []Sphere
	for _, locs := range reach.Spheres(g, player, items, start) {
		sphere := make(Sphere, 0, len(locs))
		for _, l := range locs {
			sphere = append(sphere, Placement{Location: l.Name, Item: placements[l.Name]})
		}
		out = append(out, sphere)
	}
	return out, nil
}
