// Package worldfile loads world definitions (regions, connections,
// locations, items and their access rules) from YAML or JSON files into an
// immutable graph.
package worldfile

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"reachtracker.dev/internal/logic/graph"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://reachtracker.dev/schemas/world.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func worldSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Load reads and parses the world file at path.
func Load(path string) (*graph.Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, path)
}

// Parse validates raw against the world schema, decodes it and builds the
// graph. name is used in error messages only.
func Parse(raw []byte, name string) (*graph.Graph, error) {
	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	g, err := f.Build(sha256Hex(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return g, nil
}

// Validate checks raw (YAML or JSON) against the embedded world schema.
func Validate(raw []byte) error {
	s, err := worldSchema()
	if err != nil {
		return fmt.Errorf("world schema: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return errors.New("empty world file")
	}
	// The validator wants JSON-shaped values (json.Number, map[string]any).
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}

// Build turns the decoded file into a graph.
func (f *File) Build(digest string) (*graph.Graph, error) {
	b := graph.NewBuilder(f.Game).Digest(digest).Start(f.Start).GlitchItem(f.GlitchItem)

	var errs []error
	for _, it := range f.Items {
		var flags graph.ItemFlags
		for _, s := range it.Flags {
			fl, err := graph.ParseFlag(s)
			if err != nil {
				errs = append(errs, fmt.Errorf("item %q: %w", it.Name, err))
				continue
			}
			flags |= fl
		}
		b.Item(graph.ItemDef{ID: it.ID, Name: it.Name, Flags: flags})
	}
	for _, r := range f.Regions {
		b.Region(r.Name)
	}
	for _, r := range f.Regions {
		for _, e := range r.Exits {
			b.Connect(e.Name, r.Name, e.To, e.Rule.Rule)
		}
		for _, l := range r.Locations {
			progress, err := graph.ParseProgressType(l.Progress)
			if err != nil {
				errs = append(errs, fmt.Errorf("location %q: %w", l.Name, err))
			}
			spec := graph.LocationSpec{
				Name:      l.Name,
				Region:    r.Name,
				Rule:      l.Rule.Rule,
				Progress:  progress,
				Alias:     l.Alias,
				EventItem: l.Event,
			}
			if l.Address != nil {
				spec.Address, spec.HasAddress = *l.Address, true
			}
			b.Location(spec)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return b.Build()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
