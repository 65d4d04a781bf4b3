package graph

import (
	"errors"
	"fmt"
	"strings"

	"reachtracker.dev/internal/logic/rules"
)

// Graph is read-only once built and safe to share between recomputes.
type Graph struct {
	Game   string
	Digest string
	Start  *Region
	// GlitchItem, when set, is the hypothetical capability injected by the
	// speculative glitch pass.
	GlitchItem string

	regions     []*Region
	regionIndex map[string]*Region
	connections []*Connection
	connIndex   map[string]*Connection
	locations   []*Location
	locIndex    map[string]*Location
	locByAddr   map[int64]*Location
	events      []*Location

	items      map[string]ItemDef
	itemList   []ItemDef
	itemsByID  map[int64]ItemDef
	eventItems map[string]bool

	unknownRefs []string
}

func (g *Graph) Regions() []*Region         { return g.regions }
func (g *Graph) Connections() []*Connection { return g.connections }
func (g *Graph) Locations() []*Location     { return g.locations }

// EventLocations lists the address-less locations in definition order.
func (g *Graph) EventLocations() []*Location { return g.events }

func (g *Graph) Region(name string) (*Region, bool) {
	r, ok := g.regionIndex[name]
	return r, ok
}

func (g *Graph) Connection(name string) (*Connection, bool) {
	c, ok := g.connIndex[name]
	return c, ok
}

func (g *Graph) Location(name string) (*Location, bool) {
	l, ok := g.locIndex[name]
	return l, ok
}

func (g *Graph) LocationByAddress(addr int64) (*Location, bool) {
	l, ok := g.locByAddr[addr]
	return l, ok
}

func (g *Graph) Item(name string) (ItemDef, bool) {
	d, ok := g.items[name]
	return d, ok
}

func (g *Graph) ItemByID(id int64) (ItemDef, bool) {
	d, ok := g.itemsByID[id]
	return d, ok
}

// KnownItem reports whether name is in the item table or is produced by an
// event location.
func (g *Graph) KnownItem(name string) bool {
	if _, ok := g.items[name]; ok {
		return true
	}
	return g.eventItems[name]
}

// Items lists the item table in definition order.
func (g *Graph) Items() []ItemDef { return g.itemList }

// UnknownItemRefs lists "owner: item" pairs for rules that mention items
// missing from the item table. Such rules fail closed at evaluation time.
func (g *Graph) UnknownItemRefs() []string { return g.unknownRefs }

// ConnectionSpec describes an edge for the Builder. An empty To leaves the
// connection deferred.
type ConnectionSpec struct {
	Name string
	From string
	To   string
	Rule rules.Rule
}

// LocationSpec describes a location for the Builder.
type LocationSpec struct {
	Name       string
	Region     string
	Address    int64
	HasAddress bool
	Rule       rules.Rule
	Progress   ProgressType
	Alias      string
	EventItem  string
}

// Builder accumulates graph definitions; Build resolves names and reports
// every problem it finds at once.
type Builder struct {
	game       string
	digest     string
	start      string
	glitchItem string

	items       []ItemDef
	regions     []string
	connections []ConnectionSpec
	locations   []LocationSpec
}

func NewBuilder(game string) *Builder { return &Builder{game: game} }

func (b *Builder) Digest(d string) *Builder { b.digest = d; return b }

// Start names the origin region. Defaults to the first region added.
func (b *Builder) Start(name string) *Builder { b.start = name; return b }

func (b *Builder) GlitchItem(name string) *Builder { b.glitchItem = name; return b }

func (b *Builder) Item(defs ...ItemDef) *Builder {
	b.items = append(b.items, defs...)
	return b
}

func (b *Builder) Region(names ...string) *Builder {
	b.regions = append(b.regions, names...)
	return b
}

func (b *Builder) Connect(name, from, to string, r rules.Rule) *Builder {
	b.connections = append(b.connections, ConnectionSpec{Name: name, From: from, To: to, Rule: r})
	return b
}

func (b *Builder) Location(spec LocationSpec) *Builder {
	b.locations = append(b.locations, spec)
	return b
}

// Scored adds an address-bearing location with no special progress type.
func (b *Builder) Scored(name, region string, addr int64, r rules.Rule) *Builder {
	return b.Location(LocationSpec{Name: name, Region: region, Address: addr, HasAddress: true, Rule: r})
}

// Event adds an address-less location that yields item when reached.
func (b *Builder) Event(name, region, item string, r rules.Rule) *Builder {
	return b.Location(LocationSpec{Name: name, Region: region, Rule: r, EventItem: item})
}

func (b *Builder) Build() (*Graph, error) {
	g := &Graph{
		Game:        b.game,
		Digest:      b.digest,
		GlitchItem:  strings.TrimSpace(b.glitchItem),
		regionIndex: map[string]*Region{},
		connIndex:   map[string]*Connection{},
		locIndex:    map[string]*Location{},
		locByAddr:   map[int64]*Location{},
		items:       map[string]ItemDef{},
		itemsByID:   map[int64]ItemDef{},
		eventItems:  map[string]bool{},
	}
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	for _, d := range b.items {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			fail("item %d has empty name", d.ID)
			continue
		}
		d.Name = name
		if _, dup := g.items[name]; dup {
			fail("duplicate item %q", name)
			continue
		}
		if d.ID != 0 {
			if prev, dup := g.itemsByID[d.ID]; dup {
				fail("item id %d used by %q and %q", d.ID, prev.Name, name)
				continue
			}
			g.itemsByID[d.ID] = d
		}
		g.items[name] = d
		g.itemList = append(g.itemList, d)
	}

	for _, name := range b.regions {
		name = strings.TrimSpace(name)
		if name == "" {
			fail("region with empty name")
			continue
		}
		if _, dup := g.regionIndex[name]; dup {
			fail("duplicate region %q", name)
			continue
		}
		r := &Region{Name: name, index: len(g.regions)}
		g.regions = append(g.regions, r)
		g.regionIndex[name] = r
	}
	if len(g.regions) == 0 {
		fail("graph has no regions")
	}

	start := b.start
	if start == "" && len(g.regions) > 0 {
		start = g.regions[0].Name
	}
	if r, ok := g.regionIndex[start]; ok {
		g.Start = r
	} else if start != "" {
		fail("start region %q not defined", start)
	}

	for _, cs := range b.connections {
		src, ok := g.regionIndex[cs.From]
		if !ok {
			fail("connection %q: source region %q not defined", cs.Name, cs.From)
			continue
		}
		var dst *Region
		if cs.To != "" {
			if dst, ok = g.regionIndex[cs.To]; !ok {
				fail("connection %q: target region %q not defined", cs.Name, cs.To)
				continue
			}
		}
		name := cs.Name
		if name == "" {
			name = cs.From + " -> " + cs.To
		}
		if _, dup := g.connIndex[name]; dup {
			fail("duplicate connection %q", name)
			continue
		}
		c := &Connection{Name: name, Source: src, Target: dst, Rule: cs.Rule, index: len(g.connections)}
		g.connections = append(g.connections, c)
		g.connIndex[name] = c
		src.Exits = append(src.Exits, c)
		if dst != nil {
			dst.Entrances = append(dst.Entrances, c)
		}
	}

	for _, ls := range b.locations {
		reg, ok := g.regionIndex[ls.Region]
		if !ok {
			fail("location %q: region %q not defined", ls.Name, ls.Region)
			continue
		}
		if _, dup := g.locIndex[ls.Name]; dup {
			fail("duplicate location %q", ls.Name)
			continue
		}
		l := &Location{
			Name:       ls.Name,
			Address:    ls.Address,
			HasAddress: ls.HasAddress,
			Region:     reg,
			Rule:       ls.Rule,
			Progress:   ls.Progress,
			Alias:      ls.Alias,
			EventItem:  ls.EventItem,
			index:      len(g.locations),
		}
		if l.HasAddress {
			if l.EventItem != "" {
				fail("location %q has an address and an event item", l.Name)
				continue
			}
			if prev, dup := g.locByAddr[l.Address]; dup {
				fail("address %d used by %q and %q", l.Address, prev.Name, l.Name)
				continue
			}
			g.locByAddr[l.Address] = l
		} else {
			if l.EventItem == "" {
				l.EventItem = l.Name
			}
			g.eventItems[l.EventItem] = true
			g.events = append(g.events, l)
		}
		g.locations = append(g.locations, l)
		g.locIndex[l.Name] = l
		reg.Locations = append(reg.Locations, l)
	}

	if g.GlitchItem != "" {
		if _, ok := g.items[g.GlitchItem]; !ok {
			g.eventItems[g.GlitchItem] = true
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, c := range g.connections {
		g.noteUnknown("connection "+c.Name, c.Rule)
	}
	for _, l := range g.locations {
		g.noteUnknown("location "+l.Name, l.Rule)
	}
	return g, nil
}

func (g *Graph) noteUnknown(owner string, r rules.Rule) {
	for _, it := range rules.Items(r) {
		if !g.KnownItem(it) {
			g.unknownRefs = append(g.unknownRefs, owner+": "+it)
		}
	}
}
