package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/rules"
	"reachtracker.dev/internal/tracker"
)

func TestObserveRecompute(t *testing.T) {
	g, err := graph.NewBuilder("Demo").
		Item(graph.ItemDef{ID: 1, Name: "Key", Flags: graph.Progression}).
		Region("Menu", "Vault").
		Connect("Menu->Vault", "Menu", "Vault", rules.Has{Item: "Key", Count: 1}).
		Scored("Porch", "Menu", 10, nil).
		Scored("Safe", "Vault", 11, nil).
		Scored("Shelf", "Menu", 12, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tr := tracker.New(zap.NewNop(), tracker.Settings{})
	tr.Bind(g, 1)
	snap, err := tr.Recompute(tracker.Input{
		Missing: tracker.AllMissing(g, map[int64]bool{12: true}),
		Checked: map[int64]bool{12: true},
	})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	m := New()
	m.ObserveRecompute(snap, 3*time.Millisecond, nil)
	m.ObserveRecompute(nil, time.Millisecond, errors.New("boom"))
	m.ObserveRecompute(nil, time.Millisecond, tracker.ErrDatapackageMismatch)

	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("ok=%v", got)
	}
	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(OutcomeMismatch)); got != 1 {
		t.Fatalf("mismatch=%v", got)
	}
	if got := testutil.ToFloat64(m.recomputes.WithLabelValues(OutcomeError)); got != 1 {
		t.Fatalf("error=%v", got)
	}
	if got := testutil.ToFloat64(m.locations.WithLabelValues("in_logic")); got != 1 {
		t.Fatalf("in_logic=%v", got)
	}
	if got := testutil.ToFloat64(m.locations.WithLabelValues("out_of_logic")); got != 1 {
		t.Fatalf("out_of_logic=%v", got)
	}
	if got := testutil.ToFloat64(m.locations.WithLabelValues("collected")); got != 1 {
		t.Fatalf("collected=%v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("bad yaml"))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`reachtracker_world_reloads_total{result="ok"} 1`,
		`reachtracker_world_reloads_total{result="error"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRecompute(nil, 0, nil)
	m.ObserveReload(nil)
}
