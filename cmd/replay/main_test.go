package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"reachtracker.dev/internal/tracker"
	"reachtracker.dev/internal/worldfile"
)

const demoWorld = "../../internal/worldfile/testdata/demo.yaml"

func TestReplay_DemoPlacements(t *testing.T) {
	g, err := worldfile.Load(demoWorld)
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	pf, err := loadPlacements("testdata/demo_placements.yaml")
	if err != nil {
		t.Fatalf("loadPlacements: %v", err)
	}
	var out bytes.Buffer
	if err := replay(&out, g, pf); err != nil {
		t.Fatalf("replay: %v\n%s", err, out.String())
	}
	for _, want := range []string{
		"sphere 0: Village Chest, Rooftop",
		"sphere 1: Forest Chest, Lake Prize",
		"sphere 2: Mayor Reward",
		"replay ok: spheres=3 locations=5 unreachable=0",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in:\n%s", want, out.String())
		}
	}
}

func TestReplay_UnknownItem(t *testing.T) {
	g, err := worldfile.Load(demoWorld)
	if err != nil {
		t.Fatalf("load world: %v", err)
	}
	pf := PlacementFile{Player: 1, Placements: map[string]string{"Village Chest": "Boomerang"}}
	err = replay(&bytes.Buffer{}, g, pf)
	if !errors.Is(err, tracker.ErrUnknownName) {
		t.Fatalf("err=%v want ErrUnknownName", err)
	}
}
