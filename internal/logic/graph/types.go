// Package graph is the immutable region/connection/location graph the
// reachability engine walks, plus the item and location id tables that
// come with it.
package graph

import (
	"fmt"
	"strings"

	"reachtracker.dev/internal/logic/rules"
)

// ItemFlags is the item classification bitset. Filler is the zero value.
type ItemFlags uint8

const (
	Progression ItemFlags = 1 << iota
	Useful
	Trap
	SkipBalancing
)

const Filler ItemFlags = 0

var flagNames = []struct {
	flag ItemFlags
	name string
}{
	{Progression, "progression"},
	{Useful, "useful"},
	{Trap, "trap"},
	{SkipBalancing, "skip_balancing"},
}

func (f ItemFlags) String() string {
	if f == Filler {
		return "filler"
	}
	var parts []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlag maps a flag name to its bit.
func ParseFlag(s string) (ItemFlags, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "filler" {
		return Filler, nil
	}
	for _, fn := range flagNames {
		if fn.name == s {
			return fn.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown item flag %q", s)
}

type ProgressType uint8

const (
	ProgressDefault ProgressType = iota
	ProgressPriority
	ProgressExcluded
)

func (p ProgressType) String() string {
	switch p {
	case ProgressPriority:
		return "priority"
	case ProgressExcluded:
		return "excluded"
	default:
		return "default"
	}
}

// ParseProgressType accepts "", "default", "normal", "priority" and "excluded".
func ParseProgressType(s string) (ProgressType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "normal":
		return ProgressDefault, nil
	case "priority":
		return ProgressPriority, nil
	case "excluded":
		return ProgressExcluded, nil
	default:
		return 0, fmt.Errorf("unknown progress type %q", s)
	}
}

// ItemDef is one row of the item id table.
type ItemDef struct {
	ID    int64
	Name  string
	Flags ItemFlags
}

// Item is one owned copy of an item for the duration of a tick.
type Item struct {
	Name   string
	Player int
	Flags  ItemFlags
	// ID is zero for event items, which have no network identity.
	ID     int64
	Origin *Location
}

func (it Item) Advancement() bool { return it.Flags&Progression != 0 }

type Region struct {
	Name      string
	Exits     []*Connection
	Entrances []*Connection
	Locations []*Location

	index int
}

func (r *Region) String() string { return r.Name }

// Connection is a directed edge. A nil Target means the entrance is not
// wired yet.
type Connection struct {
	Name   string
	Source *Region
	Target *Region
	Rule   rules.Rule

	index int
}

func (c *Connection) Deferred() bool { return c.Target == nil }

func (c *Connection) String() string { return c.Name }

type Location struct {
	Name       string
	Address    int64
	HasAddress bool
	Region     *Region
	Rule       rules.Rule
	Progress   ProgressType
	Alias      string
	// EventItem is collected automatically when an address-less location
	// becomes reachable.
	EventItem string

	index int
}

func (l *Location) IsEvent() bool { return !l.HasAddress }

// DisplayName is the name with the alias appended, if any.
func (l *Location) DisplayName() string {
	if l.Alias == "" {
		return l.Name
	}
	return l.Name + " (" + l.Alias + ")"
}

func (l *Location) String() string { return l.Name }

// Index is the region's position in definition order.
func (r *Region) Index() int { return r.index }

// Index is the connection's position in definition order.
func (c *Connection) Index() int { return c.index }

// Index is the location's position in definition order.
func (l *Location) Index() int { return l.index }
