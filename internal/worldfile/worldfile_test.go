package worldfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/reach"
)

func TestLoad_Demo(t *testing.T) {
	g, err := Load(filepath.Join("testdata", "demo.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Game != "Demo Quest" || g.Start.Name != "Menu" || g.GlitchItem != "Glitched" {
		t.Fatalf("header: game=%q start=%v glitch=%q", g.Game, g.Start, g.GlitchItem)
	}
	if len(g.Digest) != 64 {
		t.Fatalf("digest=%q", g.Digest)
	}
	if d, ok := g.ItemByID(1002); !ok || d.Flags != graph.Progression|graph.Useful {
		t.Fatalf("Hookshot=%+v", d)
	}
	well, ok := g.Connection("Well Entrance")
	if !ok || !well.Deferred() {
		t.Fatalf("Well Entrance should be deferred")
	}
	if _, ok := g.Connection("Menu -> Village"); ok {
		t.Fatalf("named exit got default name")
	}
	rooftop, _ := g.Location("Rooftop")
	if rooftop.Progress != graph.ProgressExcluded {
		t.Fatalf("Rooftop progress=%s", rooftop.Progress)
	}
	mayor, _ := g.LocationByAddress(2002)
	if mayor.DisplayName() != "Mayor Reward (Mayor)" {
		t.Fatalf("alias=%q", mayor.DisplayName())
	}
	boss, _ := g.Location("Forest Boss")
	if !boss.IsEvent() || boss.EventItem != "Forest Cleared" {
		t.Fatalf("Forest Boss=%+v", boss)
	}
}

func TestLoad_RulesEvaluate(t *testing.T) {
	g, err := Load(filepath.Join("testdata", "demo.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	sword, _ := g.Item("Sword")
	hook, _ := g.Item("Hookshot")

	s := reach.New(g, 1)
	s.Collect(graph.Item{Name: sword.Name, Flags: sword.Flags, ID: sword.ID}, false)
	s.SweepEvents()
	lake, _ := g.Region("Lake")
	if s.CanReachRegion(lake) {
		t.Fatalf("Lake reachable without Hookshot")
	}
	s.Collect(graph.Item{Name: hook.Name, Flags: hook.Flags, ID: hook.ID}, false)
	s.SweepEvents()
	prize, _ := g.Location("Lake Prize")
	if !s.CanReachLocation(prize) {
		t.Fatalf("Lake Prize unreachable with Sword, Hookshot and Forest Cleared")
	}
	chest, _ := g.Location("Forest Chest")
	if !s.CanReachLocation(chest) {
		t.Fatalf("Forest Chest unreachable")
	}
}

func TestParse_JSON(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "demo.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	g, err := Parse(raw, "demo.json")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, ok := g.Connection("Menu -> Field"); !ok {
		t.Fatalf("default exit name missing")
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"no regions", "game: x\n", "regions"},
		{"unknown key", "game: x\nregions: [{name: A}]\ncolour: red\n", "colour"},
		{"address and event", "game: x\nregions: [{name: A, locations: [{name: L, address: 1, event: E}]}]\n", "not"},
		{"bad rule key", "game: x\nregions: [{name: A, locations: [{name: L, rule: {maybe: X}}]}]\n", "/rule"},
		{"bad cel", "game: x\nregions: [{name: A, locations: [{name: L, rule: 'items.owns('}]}]\n", "compile"},
		{"non bool cel", "game: x\nregions: [{name: A, locations: [{name: L, rule: 'items.count(\"A\")'}]}]\n", "boolean"},
		{"dangling exit", "game: x\nregions: [{name: A, exits: [{to: B}]}]\n", `target region "B"`},
		{"empty", "", "empty"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.doc), tc.name)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: err=%v want substring %q", tc.name, err, tc.want)
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.yaml")
	write := func(game string) {
		t.Helper()
		doc := "game: " + game + "\nregions: [{name: A}]\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 4)
	failed := make(chan error, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, zap.NewNop(), func(g *graph.Graph, err error) {
			if err != nil {
				failed <- err
				return
			}
			got <- g.Game
		})
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	write("two")

	select {
	case game := <-got:
		if game != "two" {
			t.Fatalf("reloaded game=%q want two", game)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload after write")
	}

	if err := os.WriteFile(path, []byte("regions: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatalf("broken write was not reported")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}
