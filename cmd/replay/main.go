package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/persistence/log"
	"reachtracker.dev/internal/tracker"
	"reachtracker.dev/internal/worldfile"
)

// PlacementFile is a generator's full item placement for one slot.
type PlacementFile struct {
	Player       int               `yaml:"player"`
	Precollected []string          `yaml:"precollected"`
	Placements   map[string]string `yaml:"placements"`
}

func main() {
	var (
		worldPath = flag.String("world", "", "world file (.yaml or .json)")
		placePath = flag.String("placements", "", "placement file (yaml)")
		history   = flag.String("history", "", "data dir whose history-*.jsonl.zst to summarize (optional)")
	)
	flag.Parse()

	if *history != "" {
		if err := summarizeHistory(os.Stdout, *history); err != nil {
			fmt.Fprintln(os.Stderr, "history:", err)
			os.Exit(1)
		}
		if *worldPath == "" {
			return
		}
	}

	if *worldPath == "" || *placePath == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -placements")
		os.Exit(2)
	}

	g, err := worldfile.Load(*worldPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load world:", err)
		os.Exit(1)
	}
	pf, err := loadPlacements(*placePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load placements:", err)
		os.Exit(1)
	}
	if err := replay(os.Stdout, g, pf); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func loadPlacements(path string) (PlacementFile, error) {
	var pf PlacementFile
	b, err := os.ReadFile(path)
	if err != nil {
		return pf, err
	}
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return pf, fmt.Errorf("%s: %w", path, err)
	}
	if pf.Player <= 0 {
		pf.Player = 1
	}
	if len(pf.Placements) == 0 {
		return pf, fmt.Errorf("%s: no placements", path)
	}
	return pf, nil
}

// replay derives spheres from the placement and checks that the tracker's
// in-logic set matches each one exactly.
func replay(w io.Writer, g *graph.Graph, pf PlacementFile) error {
	spheres, err := tracker.PlaySpheres(g, pf.Player, pf.Placements, pf.Precollected)
	if err != nil {
		return err
	}
	located := 0
	for n, s := range spheres {
		names := make([]string, len(s))
		for i, p := range s {
			names[i] = p.Location
		}
		located += len(s)
		fmt.Fprintf(w, "sphere %d: %s\n", n, strings.Join(names, ", "))
	}

	tr := tracker.New(zap.NewNop(), tracker.Settings{})
	tr.Bind(g, pf.Player)
	if err := tr.VerifySpheres(pf.Precollected, spheres); err != nil {
		return err
	}

	unreached := 0
	for _, l := range g.Locations() {
		if l.HasAddress {
			unreached++
		}
	}
	unreached -= located
	fmt.Fprintf(w, "replay ok: spheres=%d locations=%d unreachable=%d\n", len(spheres), located, unreached)
	return nil
}

func summarizeHistory(w io.Writer, dataDir string) error {
	entries, err := log.ReadHistory(dataDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no history entries under %s", dataDir)
	}
	first, last := entries[0], entries[len(entries)-1]
	digests := map[string]bool{}
	for _, e := range entries {
		digests[e.Digest] = true
	}
	fmt.Fprintf(w, "history: entries=%d worlds=%d from=%s to=%s\n",
		len(entries), len(digests), first.At.Format("2006-01-02T15:04:05Z"), last.At.Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(w, "latest: game=%q player=%d in_logic=%d glitched=%d events=%d\n",
		last.Game, last.Player, len(last.InLogic), len(last.Glitched), len(last.Events))
	return nil
}
