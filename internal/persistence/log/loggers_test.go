package log

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/tracker"
)

type line struct {
	N int `json:"n"`
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "t")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 1; i <= 3; i++ {
		if err := w.Write(line{N: i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(line{N: 4}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, name := range []string{"t-2026-03-01-10.jsonl.zst", "t-2026-03-01-11.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	got, err := ReadAll[line](dir, "t")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 4 || got[0].N != 1 || got[3].N != 4 {
		t.Fatalf("ReadAll=%v", got)
	}
}

func TestJSONLZstdWriter_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		w := NewJSONLZstdWriter(dir, "t")
		w.now = func() time.Time { return clock }
		if err := w.Write(line{N: i}); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	got, err := ReadAll[line](dir, "t")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 || got[1].N != 2 {
		t.Fatalf("ReadAll=%v", got)
	}
}

func TestHistoryLogger_WriteSnapshot(t *testing.T) {
	g, err := graph.NewBuilder("Demo").
		Digest("d1").
		Region("Menu").
		Scored("Porch", "Menu", 10, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tr := tracker.New(zap.NewNop(), tracker.Settings{})

	dir := t.TempDir()
	h := NewHistoryLogger(dir)
	empty, _ := tr.Recompute(tracker.Input{})
	if err := h.WriteSnapshot(empty, 0); err != nil {
		t.Fatalf("WriteSnapshot(uninitialized): %v", err)
	}

	tr.Bind(g, 2)
	snap, err := tr.Recompute(tracker.Input{Missing: tracker.AllMissing(g, nil)})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if err := h.WriteSnapshot(snap, 2500*time.Microsecond); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := ReadHistory(dir)
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("entries=%d want 1", len(got))
	}
	e := got[0]
	if e.Game != "Demo" || e.Player != 2 || e.Digest != "d1" || e.DurationMS != 2.5 {
		t.Fatalf("entry=%+v", e)
	}
	if !slices.Equal(e.InLogic, []string{"Porch"}) {
		t.Fatalf("InLogic=%v", e.InLogic)
	}
}
