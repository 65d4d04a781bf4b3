// Package tracker turns a received-item log into a classified snapshot of
// what the player can reach right now. Every Recompute starts from an empty
// collection state; nothing is carried over between calls.
package tracker

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/reach"
)

// Tracker binds a graph and a player slot. Recompute calls must not
// overlap; Bind and SetSettings may be called from other goroutines.
type Tracker struct {
	log *zap.Logger

	mu       sync.Mutex
	g        *graph.Graph
	player   int
	settings Settings
}

func New(logger *zap.Logger, settings Settings) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{log: logger, settings: settings.normalized()}
}

// Bind replaces the graph and player used by subsequent recomputes.
func (t *Tracker) Bind(g *graph.Graph, player int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.g, t.player = g, player
}

func (t *Tracker) Unbind() { t.Bind(nil, 0) }

func (t *Tracker) Graph() *graph.Graph {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.g
}

func (t *Tracker) Player() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.player
}

func (t *Tracker) Settings() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

func (t *Tracker) SetSettings(s Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = s.normalized()
}

// Recompute rebuilds the collection state from in and classifies every
// location. The only error it returns is ErrDatapackageMismatch; everything
// else is logged and skipped. Without a bound graph the snapshot is empty
// and Initialized is false.
func (t *Tracker) Recompute(in Input) (*Snapshot, error) {
	t.mu.Lock()
	g, player, settings := t.g, t.player, t.settings
	t.mu.Unlock()

	if g == nil {
		t.log.Warn("recompute skipped: no graph bound")
		return emptySnapshot(), nil
	}

	state := reach.New(g, player)
	snap := emptySnapshot()
	snap.Initialized = true
	snap.Game = g.Game
	snap.Player = player
	snap.State = state
	snap.graph = g
	snap.raceMode = in.RaceMode

	if err := t.collectReceived(g, player, in, state, snap); err != nil {
		return nil, err
	}
	t.collectManual(g, player, in.Manual, state, snap)

	state.SweepEvents()
	for _, l := range state.Events() {
		snap.Events = append(snap.Events, l.EventItem)
	}

	c := newClassifier(g, settings, in, snap)
	c.base(state)
	if g.GlitchItem != "" && c.needsGlitchPass() {
		gs := state.Clone()
		gs.Collect(graph.Item{Name: g.GlitchItem, Player: player, Flags: graph.Progression}, false)
		gs.SweepEvents()
		c.glitched(gs)
		t.logFaults(gs.Faults()[len(state.Faults()):], "glitch")
	}
	c.finish()

	classifyEntrances(g, state, in, snap)
	t.logFaults(state.Faults(), "base")
	for _, f := range state.Faults() {
		snap.Faults = append(snap.Faults, f.Owner+": "+f.Err.Error())
	}
	return snap, nil
}

func (t *Tracker) collectReceived(g *graph.Graph, player int, in Input, state *reach.State, snap *Snapshot) error {
	items := in.Items
	if in.ItemsHandling&ItemsHandlingOwnWorld == 0 && len(in.LocalItems) > 0 {
		items = append(slices.Clone(items), in.LocalItems...)
	}
	known, unknown := 0, 0
	for _, ri := range items {
		def, ok := g.ItemByID(ri.ItemID)
		if !ok {
			unknown++
			t.log.Warn("unknown item id",
				zap.Int64("item_id", ri.ItemID),
				zap.Int64("location", ri.Location),
				zap.Int("player", ri.Player))
			continue
		}
		known++
		it := graph.Item{Name: def.Name, Player: player, Flags: def.Flags | ri.Flags, ID: def.ID}
		if ri.Player == player && ri.Location > 0 {
			if l, ok := g.LocationByAddress(ri.Location); ok {
				it.Origin = l
			}
		}
		t.collect(state, snap, it)
	}
	if known == 0 && unknown > 0 {
		t.log.Error("every received item id is unknown; wrong world loaded?",
			zap.String("game", g.Game), zap.Int("unknown", unknown))
		return fmt.Errorf("%w: none of %d received items exist in the %q item table", ErrDatapackageMismatch, unknown, g.Game)
	}
	return nil
}

func (t *Tracker) collectManual(g *graph.Graph, player int, names []string, state *reach.State, snap *Snapshot) {
	for _, name := range names {
		if !g.KnownItem(name) {
			t.log.Warn("unknown manual item", zap.String("item", name))
			continue
		}
		it := graph.Item{Name: name, Player: player, Flags: graph.Progression}
		if def, ok := g.Item(name); ok {
			it.ID = def.ID
			it.Flags |= def.Flags
		}
		t.collect(state, snap, it)
	}
}

func (t *Tracker) collect(state *reach.State, snap *Snapshot, it graph.Item) {
	state.Collect(it, false)
	if it.Advancement() {
		snap.ProgressionItems[it.Name]++
	}
	if it.ID != 0 {
		snap.AllItems[it.Name]++
	}
}

func (t *Tracker) logFaults(faults []reach.Fault, pass string) {
	for _, f := range faults {
		t.log.Warn("rule fault; treated as unreachable",
			zap.String("pass", pass),
			zap.String("rule", f.Owner),
			zap.Error(f.Err))
	}
}
