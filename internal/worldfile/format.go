package worldfile

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"reachtracker.dev/internal/logic/rules"
)

// File is the on-disk world definition. JSON files decode the same way.
type File struct {
	Game       string        `yaml:"game"`
	Start      string        `yaml:"start"`
	GlitchItem string        `yaml:"glitch_item"`
	Items      []ItemEntry   `yaml:"items"`
	Regions    []RegionEntry `yaml:"regions"`
}

type ItemEntry struct {
	ID    int64    `yaml:"id"`
	Name  string   `yaml:"name"`
	Flags []string `yaml:"flags"`
}

type RegionEntry struct {
	Name      string          `yaml:"name"`
	Exits     []ExitEntry     `yaml:"exits"`
	Locations []LocationEntry `yaml:"locations"`
}

// ExitEntry is a connection out of the enclosing region. An empty To
// leaves it deferred.
type ExitEntry struct {
	Name string `yaml:"name"`
	To   string `yaml:"to"`
	Rule Rule   `yaml:"rule"`
}

type LocationEntry struct {
	Name     string `yaml:"name"`
	Address  *int64 `yaml:"address"`
	Rule     Rule   `yaml:"rule"`
	Progress string `yaml:"progress"`
	Alias    string `yaml:"alias"`
	// Event names the item an address-less location yields; defaults to
	// the location name.
	Event string `yaml:"event"`
}

// Rule decodes an access rule. A string is a CEL expression, a boolean is
// a constant, and a single-key mapping is a structured rule:
//
//	{has: Hookshot}
//	{has: {item: Heart Piece, count: 12}}
//	{count_of: {items: [Bow, Slingshot], count: 1}}
//	{all: [...]}, {any: [...]}, {not: ...}
//	{reach: Region}, {reach_location: Location}, {expr: "..."}
type Rule struct {
	rules.Rule
}

func (r *Rule) UnmarshalYAML(n *yaml.Node) error {
	rr, err := decodeRule(n)
	if err != nil {
		return err
	}
	r.Rule = rr
	return nil
}

func decodeRule(n *yaml.Node) (rules.Rule, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, err
			}
			if b {
				return rules.Always, nil
			}
			return rules.Never, nil
		}
		return compileAt(n, n.Value)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, fmt.Errorf("line %d: rule mapping must have exactly one key", n.Line)
		}
		return decodeKeyed(n.Content[0].Value, n.Content[1])
	default:
		return nil, fmt.Errorf("line %d: rule must be a string, boolean or mapping", n.Line)
	}
}

func decodeKeyed(key string, v *yaml.Node) (rules.Rule, error) {
	switch key {
	case "all", "any":
		if v.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: %s takes a list", v.Line, key)
		}
		kids := make([]rules.Rule, 0, len(v.Content))
		for _, c := range v.Content {
			r, err := decodeRule(c)
			if err != nil {
				return nil, err
			}
			kids = append(kids, r)
		}
		if key == "all" {
			return rules.All(kids), nil
		}
		return rules.Any(kids), nil
	case "not":
		r, err := decodeRule(v)
		if err != nil {
			return nil, err
		}
		return rules.Not{Rule: r}, nil
	case "has":
		if v.Kind == yaml.ScalarNode {
			return rules.Has{Item: v.Value, Count: 1}, nil
		}
		var h struct {
			Item  string `yaml:"item"`
			Count *int   `yaml:"count"`
		}
		if err := v.Decode(&h); err != nil {
			return nil, err
		}
		if h.Item == "" {
			return nil, fmt.Errorf("line %d: has needs an item", v.Line)
		}
		count := 1
		if h.Count != nil {
			count = *h.Count
		}
		return rules.Has{Item: h.Item, Count: count}, nil
	case "count_of":
		var c struct {
			Items []string `yaml:"items"`
			Count int      `yaml:"count"`
		}
		if err := v.Decode(&c); err != nil {
			return nil, err
		}
		return rules.CountOf{Items: c.Items, Count: c.Count}, nil
	case "reach":
		return rules.Reach{Region: v.Value}, nil
	case "reach_location":
		return rules.ReachLocation{Location: v.Value}, nil
	case "expr":
		return compileAt(v, v.Value)
	default:
		return nil, fmt.Errorf("line %d: unknown rule %q", v.Line, key)
	}
}

func compileAt(n *yaml.Node, src string) (rules.Rule, error) {
	e, err := rules.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return e, nil
}
