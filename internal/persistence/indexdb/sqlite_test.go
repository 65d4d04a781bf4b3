package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/rules"
	"reachtracker.dev/internal/tracker"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("Demo").
		Digest("abc123").
		Item(graph.ItemDef{ID: 1, Name: "Key", Flags: graph.Progression}).
		Region("Menu", "Vault").
		Connect("Menu->Vault", "Menu", "Vault", rules.Has{Item: "Key", Count: 1}).
		Scored("Porch", "Menu", 10, nil).
		Scored("Safe", "Vault", 11, nil).
		Event("Bell", "Menu", "Rung", nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqWorld}

	g := testGraph(t)
	s.RecordWorld("demo.yaml", g)
	s.RecordRecompute(&tracker.Snapshot{Initialized: true}, time.Millisecond)

	st := s.Stats()
	if st.DropWorldTotal != 1 {
		t.Fatalf("DropWorldTotal=%d want=1", st.DropWorldTotal)
	}
	if st.DropRecomputeTotal != 1 {
		t.Fatalf("DropRecomputeTotal=%d want=1", st.DropRecomputeTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.RecordWorld("x", nil)
	s.RecordRecompute(nil, 0)
	if st := s.Stats(); st != (QueueStats{}) {
		t.Fatalf("nil stats=%+v", st)
	}
}

func TestSQLiteIndex_WritesRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	g := testGraph(t)
	tr := tracker.New(zap.NewNop(), tracker.Settings{})
	tr.Bind(g, 1)
	snap, err := tr.Recompute(tracker.Input{
		Items:   []tracker.ReceivedItem{{ItemID: 1, Location: -1}},
		Missing: tracker.AllMissing(g, nil),
	})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}

	idx.RecordWorld("/worlds/demo.yaml", g)
	idx.RecordRecompute(snap, 1500*time.Microsecond)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Writes after close are ignored.
	idx.RecordRecompute(snap, 0)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		game      string
		locations int
		events    int
	)
	if err := db.QueryRow(`SELECT game,locations,events FROM worlds WHERE digest='abc123'`).Scan(&game, &locations, &events); err != nil {
		t.Fatalf("Scan worlds: %v", err)
	}
	if game != "Demo" || locations != 2 || events != 1 {
		t.Fatalf("world row mismatch: game=%q locations=%d events=%d", game, locations, events)
	}

	var (
		n        int
		digest   string
		inLogic  int
		items    int
		duration int64
		raw      string
	)
	if err := db.QueryRow(`SELECT COUNT(*) FROM recomputes`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("recompute rows=%d err=%v", n, err)
	}
	row := db.QueryRow(`SELECT digest,in_logic,items,duration_us,raw_json FROM recomputes WHERE seq=1`)
	if err := row.Scan(&digest, &inLogic, &items, &duration, &raw); err != nil {
		t.Fatalf("Scan recomputes: %v", err)
	}
	if digest != "abc123" || inLogic != 2 || items != 1 || duration != 1500 {
		t.Fatalf("recompute row mismatch: digest=%q in_logic=%d items=%d duration=%d", digest, inLogic, items, duration)
	}
	if raw == "" || raw[0] != '{' {
		t.Fatalf("raw_json=%q", raw)
	}

	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&version); err != nil || version != "1" {
		t.Fatalf("schema_version=%q err=%v", version, err)
	}
}
