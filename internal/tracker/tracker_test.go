package tracker

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/rules"
)

const (
	idKey   = 1
	idRupee = 2
	idBoots = 3
)

// oracleGraph: S -[Key]-> T holding Chest.
func oracleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("oracle").
		Item(graph.ItemDef{ID: idKey, Name: "Key", Flags: graph.Progression}).
		Region("S", "T").
		Connect("S->T", "S", "T", rules.Has{Item: "Key", Count: 1}).
		Scored("Chest", "T", 100, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

// worldGraph adds an event chain, a glitch-only region, an excluded
// location with an alias and a deferred exit.
//
//	S -[Key]-> T -[Key2]-> U
//	S -[Glitch]-> V
//	T -> (deferred) "T Door"
func worldGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder("world").
		GlitchItem("Glitch").
		Item(
			graph.ItemDef{ID: idKey, Name: "Key", Flags: graph.Progression},
			graph.ItemDef{ID: idRupee, Name: "Rupee"},
			graph.ItemDef{ID: idBoots, Name: "Boots", Flags: graph.Useful},
		).
		Region("S", "T", "U", "V").
		Connect("S->T", "S", "T", rules.Has{Item: "Key", Count: 1}).
		Connect("T->U", "T", "U", rules.Has{Item: "Key2", Count: 1}).
		Connect("S->V", "S", "V", rules.Has{Item: "Glitch", Count: 1}).
		Connect("T Door", "T", "", nil).
		Scored("Chest", "T", 100, nil).
		Event("Lever", "T", "Key2", rules.Reach{Region: "T"}).
		Scored("Prize", "U", 101, nil).
		Scored("Secret", "V", 102, nil).
		Location(graph.LocationSpec{Name: "Shelf", Region: "S", Address: 103, HasAddress: true, Progress: graph.ProgressExcluded, Alias: "Top"}).
		Scored("Boots Chest", "U", 104, rules.Has{Item: "Boots", Count: 1}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return g
}

func newTracker(g *graph.Graph, s Settings) *Tracker {
	tr := New(zap.NewNop(), s)
	tr.Bind(g, 1)
	return tr
}

func recv(ids ...int64) []ReceivedItem {
	out := make([]ReceivedItem, len(ids))
	for i, id := range ids {
		out[i] = ReceivedItem{ItemID: id, Location: -1, Player: 0}
	}
	return out
}

func set(addrs ...int64) map[int64]bool {
	out := map[int64]bool{}
	for _, a := range addrs {
		out[a] = true
	}
	return out
}

func mustRecompute(t *testing.T, tr *Tracker, in Input) *Snapshot {
	t.Helper()
	snap, err := tr.Recompute(in)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	return snap
}

func TestRecompute_Oracle(t *testing.T) {
	g := oracleGraph(t)
	tr := newTracker(g, Settings{})
	in := Input{Missing: AllMissing(g, nil)}

	snap := mustRecompute(t, tr, in)
	if len(snap.InLogic) != 0 {
		t.Fatalf("in logic before Key: %v", snap.InLogic)
	}
	if st, _ := snap.Status(100); st.Category != OutOfLogic {
		t.Fatalf("Chest status=%s want out_of_logic", st)
	}

	in.Items = recv(idKey)
	snap = mustRecompute(t, tr, in)
	if !slices.Equal(snap.InLogic, []string{"Chest"}) {
		t.Fatalf("in logic after Key: %v", snap.InLogic)
	}
	if !slices.Equal(snap.InLogicAddresses, []int64{100}) {
		t.Fatalf("addresses=%v", snap.InLogicAddresses)
	}
	if !slices.Equal(snap.Readable, []string{"T | Chest"}) {
		t.Fatalf("readable=%v", snap.Readable)
	}
}

func TestRecompute_ChainedEventsSingleCall(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{})
	snap := mustRecompute(t, tr, Input{Items: recv(idKey), Missing: AllMissing(g, nil)})

	u, _ := g.Region("U")
	if !snap.State.CanReachRegion(u) {
		t.Fatalf("U not reached in one recompute")
	}
	if !slices.Equal(snap.Events, []string{"Key2"}) {
		t.Fatalf("events=%v", snap.Events)
	}
	if !slices.Contains(snap.InLogic, "Prize") {
		t.Fatalf("Prize not in logic: %v", snap.InLogic)
	}
	if snap.ProgressionItems["Key"] != 1 || snap.AllItems["Key"] != 1 {
		t.Fatalf("item counts all=%v prog=%v", snap.AllItems, snap.ProgressionItems)
	}
	if _, ok := snap.AllItems["Key2"]; ok {
		t.Fatalf("event item counted as received: %v", snap.AllItems)
	}
}

func TestRecompute_CheckedAndIgnoredExcluded(t *testing.T) {
	g := oracleGraph(t)
	tr := newTracker(g, Settings{})
	in := Input{Items: recv(idKey), Missing: set(100), Ignored: set(100)}
	snap := mustRecompute(t, tr, in)
	if len(snap.InLogic) != 0 {
		t.Fatalf("ignored Chest still listed: %v", snap.InLogic)
	}
	if st, _ := snap.Status(100); st.Category != Ignored {
		t.Fatalf("status=%s want ignored", st)
	}

	in = Input{Items: recv(idKey), Missing: set(), Checked: set(100)}
	snap = mustRecompute(t, tr, in)
	if len(snap.InLogic) != 0 {
		t.Fatalf("checked Chest still listed: %v", snap.InLogic)
	}
	if st, _ := snap.Status(100); st.Category != Collected {
		t.Fatalf("status=%s want collected", st)
	}
}

func TestRecompute_HideExcluded(t *testing.T) {
	g := worldGraph(t)
	in := Input{Missing: AllMissing(g, nil)}

	shown := mustRecompute(t, newTracker(g, Settings{}), in)
	if !slices.Equal(shown.Readable, []string{"S | Shelf (Top)"}) {
		t.Fatalf("readable=%v", shown.Readable)
	}

	hidden := mustRecompute(t, newTracker(g, Settings{HideExcluded: true}), in)
	if len(hidden.InLogic) != 0 {
		t.Fatalf("excluded Shelf listed: %v", hidden.InLogic)
	}
	if _, ok := hidden.Status(103); ok {
		t.Fatalf("hidden Shelf has a status")
	}

	in.Checked = set(103)
	delete(in.Missing, 103)
	checked := mustRecompute(t, newTracker(g, Settings{HideExcluded: true}), in)
	if st, _ := checked.Status(103); st.Category != Collected {
		t.Fatalf("checked hidden Shelf status=%s want collected", st)
	}
}

func TestRecompute_Idempotent(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{ShowGlitched: true})
	in := Input{
		Items:   recv(idKey, idRupee, idRupee),
		Manual:  []string{"Boots"},
		Missing: AllMissing(g, set(100)),
		Checked: set(100),
		Hinted:  set(101),
	}
	a := mustRecompute(t, tr, in)
	b := mustRecompute(t, tr, in)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatalf("snapshots differ:\n%s\n%s", ja, jb)
	}
	if !reflect.DeepEqual(a.Statuses, b.Statuses) {
		t.Fatalf("statuses differ: %v vs %v", a.Statuses, b.Statuses)
	}
}

func TestRecompute_Monotonic(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{})
	logs := [][]int64{{}, {idRupee}, {idRupee, idKey}, {idRupee, idKey, idBoots}}
	var prev []string
	for _, ids := range logs {
		snap := mustRecompute(t, tr, Input{Items: recv(ids...), Missing: AllMissing(g, nil)})
		got := snap.State.ReachedRegions()
		for _, r := range prev {
			if !slices.Contains(got, r) {
				t.Fatalf("region %s lost with items %v", r, ids)
			}
		}
		prev = got
	}
}

func TestRecompute_Partition(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{ShowGlitched: true})
	missing := AllMissing(g, set(100))
	snap := mustRecompute(t, tr, Input{Items: recv(idKey), Missing: missing, Checked: set(100)})

	for _, name := range snap.Events {
		for _, l := range g.EventLocations() {
			if l.EventItem == name && l.HasAddress {
				t.Fatalf("event %s has an address", name)
			}
		}
	}
	for _, name := range append(slices.Clone(snap.InLogic), snap.Glitched...) {
		l, ok := g.Location(name)
		if !ok || !l.HasAddress || !missing[l.Address] {
			t.Fatalf("%s listed but not an outstanding addressed location", name)
		}
	}
}

func TestRecompute_GlitchPass(t *testing.T) {
	g := worldGraph(t)
	in := Input{Items: recv(idKey), Missing: AllMissing(g, nil), Hinted: set(102)}

	shown := mustRecompute(t, newTracker(g, Settings{ShowGlitched: true, Format: FormatLocation}), in)
	if !slices.Equal(shown.Glitched, []string{"Secret"}) {
		t.Fatalf("glitched=%v", shown.Glitched)
	}
	for _, name := range shown.Glitched {
		if slices.Contains(shown.InLogic, name) {
			t.Fatalf("%s both glitched and in logic", name)
		}
	}
	st, _ := shown.Status(102)
	if st.String() != "hinted_glitched" {
		t.Fatalf("Secret status=%s", st)
	}
	if !slices.Contains(shown.Hinted, "Secret") {
		t.Fatalf("hinted=%v", shown.Hinted)
	}
	if shown.Readable[len(shown.Readable)-1] != "Secret" {
		t.Fatalf("readable=%v", shown.Readable)
	}
	// the base state must not see the glitch item
	if shown.State.Count("Glitch") != 0 {
		t.Fatalf("glitch item leaked into base state")
	}
	v, _ := g.Region("V")
	if shown.State.CanReachRegion(v) {
		t.Fatalf("V reachable in base state")
	}

	if !slices.Contains(shown.Regions, "V") {
		t.Fatalf("regions=%v", shown.Regions)
	}

	hidden := mustRecompute(t, newTracker(g, Settings{}), in)
	if !slices.Equal(hidden.Glitched, []string{"Secret"}) {
		t.Fatalf("glitched while hidden=%v", hidden.Glitched)
	}
	if slices.Contains(hidden.Readable, "V | Secret") {
		t.Fatalf("hidden glitched location in readable: %v", hidden.Readable)
	}
	if !slices.Contains(hidden.Regions, "V") {
		t.Fatalf("regions=%v", hidden.Regions)
	}
	if st, _ := hidden.Status(102); st.Category != OutOfLogic {
		t.Fatalf("Secret status=%s want out_of_logic", st)
	}
	if slices.Contains(hidden.Hinted, "Secret") {
		t.Fatalf("hidden glitched location listed as hinted: %v", hidden.Hinted)
	}
}

func TestRecompute_DisplayFormats(t *testing.T) {
	g := worldGraph(t)
	in := Input{Items: recv(idKey), Missing: AllMissing(g, nil)}
	cases := []struct {
		format Format
		want   []string
	}{
		{FormatBoth, []string{"T | Chest", "U | Prize", "S | Shelf (Top)"}},
		{FormatLocation, []string{"Chest", "Prize", "Shelf (Top)"}},
		{FormatRegion, []string{"T", "U", "S"}},
	}
	for _, tc := range cases {
		snap := mustRecompute(t, newTracker(g, Settings{Format: tc.format}), in)
		if !slices.Equal(snap.Readable, tc.want) {
			t.Fatalf("%s: readable=%v want %v", tc.format, snap.Readable, tc.want)
		}
	}
}

func TestRecompute_DatapackageMismatch(t *testing.T) {
	g := oracleGraph(t)
	tr := newTracker(g, Settings{})
	_, err := tr.Recompute(Input{Items: recv(900, 901)})
	if !errors.Is(err, ErrDatapackageMismatch) {
		t.Fatalf("err=%v want ErrDatapackageMismatch", err)
	}
}

func TestRecompute_UnknownItemSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := New(zap.New(core), Settings{})
	g := oracleGraph(t)
	tr.Bind(g, 1)

	snap, err := tr.Recompute(Input{Items: recv(900, idKey), Missing: AllMissing(g, nil), Manual: []string{"Nope"}})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if !slices.Equal(snap.InLogic, []string{"Chest"}) {
		t.Fatalf("in logic=%v", snap.InLogic)
	}
	if n := logs.FilterMessage("unknown item id").Len(); n != 1 {
		t.Fatalf("unknown item warnings=%d want 1", n)
	}
	if n := logs.FilterMessage("unknown manual item").Len(); n != 1 {
		t.Fatalf("unknown manual warnings=%d want 1", n)
	}
}

func TestRecompute_FaultIsolated(t *testing.T) {
	g, err := graph.NewBuilder("faulty").
		Region("S").
		Scored("Broken", "S", 1, rules.Func{Name: "boom", Fn: func(rules.State) bool { panic("bad") }}).
		Scored("Fine", "S", 2, nil).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	snap := mustRecompute(t, newTracker(g, Settings{}), Input{Missing: AllMissing(g, nil)})
	if !slices.Equal(snap.InLogic, []string{"Fine"}) {
		t.Fatalf("in logic=%v", snap.InLogic)
	}
	if len(snap.Faults) != 1 {
		t.Fatalf("faults=%v", snap.Faults)
	}
}

func TestRecompute_Uninitialized(t *testing.T) {
	tr := New(nil, Settings{})
	snap, err := tr.Recompute(Input{Items: recv(idKey)})
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if snap.Initialized || len(snap.InLogic) != 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
	if _, err := snap.Path("S"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Path err=%v", err)
	}
}

func TestRecompute_LocalItems(t *testing.T) {
	g := oracleGraph(t)
	tr := newTracker(g, Settings{})
	local := []ReceivedItem{{ItemID: idKey, Location: 100, Player: 1}}

	snap := mustRecompute(t, tr, Input{LocalItems: local, ItemsHandling: 0b001, Missing: AllMissing(g, nil)})
	if snap.AllItems["Key"] != 1 {
		t.Fatalf("local item not folded in: %v", snap.AllItems)
	}
	snap = mustRecompute(t, tr, Input{LocalItems: local, ItemsHandling: 0b111, Missing: AllMissing(g, nil)})
	if snap.AllItems["Key"] != 0 {
		t.Fatalf("local item folded in although the server sends own items: %v", snap.AllItems)
	}
}

func TestRecompute_ManualItems(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{})
	snap := mustRecompute(t, tr, Input{Manual: []string{"Key", "Boots"}, Missing: AllMissing(g, nil)})
	if !slices.Contains(snap.InLogic, "Boots Chest") {
		t.Fatalf("in logic=%v", snap.InLogic)
	}
	if snap.ProgressionItems["Boots"] != 1 {
		t.Fatalf("manual item not progression: %v", snap.ProgressionItems)
	}
}

func TestRecompute_Entrances(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{})
	snap := mustRecompute(t, tr, Input{
		Items:          recv(idKey),
		Missing:        AllMissing(g, nil),
		FoundEntrances: map[string]bool{"S->T": true, "T->U": false, "S->V": true},
	})
	if !slices.Equal(snap.Unconnected, []string{"T Door"}) {
		t.Fatalf("unconnected=%v", snap.Unconnected)
	}
	want := map[string]EntranceState{"S->T": Passed, "T->U": Passable, "S->V": Impassable}
	if !reflect.DeepEqual(snap.Entrances, want) {
		t.Fatalf("entrances=%v want %v", snap.Entrances, want)
	}
}

func TestSnapshot_ExplainLeavesStateUnchanged(t *testing.T) {
	g, err := graph.NewBuilder("explain").
		Region("S").
		Scored("Ghostly", "S", 100, rules.Has{Item: "Ghost", Count: 1}).
		Scored("Gate", "S", 101, rules.ReachLocation{Location: "Ghostly"}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	// both locations are checked, so recompute never evaluates their rules
	snap := mustRecompute(t, newTracker(g, Settings{}), Input{Checked: set(100, 101), Missing: map[int64]bool{}})
	before := len(snap.State.Faults())

	ex, err := snap.Explain("Gate")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if ex.Result != rules.Unsatisfied {
		t.Fatalf("result=%s", ex.Result)
	}
	if after := len(snap.State.Faults()); after != before {
		t.Fatalf("explain recorded faults: before=%d after=%d", before, after)
	}
}

func TestSnapshot_PathAndExplain(t *testing.T) {
	g := worldGraph(t)
	tr := newTracker(g, Settings{})
	snap := mustRecompute(t, tr, Input{Items: recv(idKey), Missing: AllMissing(g, nil)})

	path, err := snap.Path("Prize")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if !slices.Equal(path, []string{"S->T", "T->U"}) {
		t.Fatalf("path=%v", path)
	}
	if path, _ := snap.Path("Secret"); len(path) != 0 {
		t.Fatalf("unreachable path=%v", path)
	}
	if _, err := snap.Path("Atlantis"); !errors.Is(err, ErrUnknownName) {
		t.Fatalf("err=%v", err)
	}

	ex, err := snap.Explain("Boots Chest")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if ex.Result != rules.Unsatisfied {
		t.Fatalf("result=%s", ex.Result)
	}
	failing := ex.Failing()
	if len(failing) != 1 || failing[0].Rule != "has(Boots)" {
		t.Fatalf("failing=%+v", failing)
	}

	ex, err = snap.Explain("V")
	if err != nil {
		t.Fatalf("Explain region: %v", err)
	}
	if ex.Result != rules.Unsatisfied || len(ex.Children) != 1 {
		t.Fatalf("region explanation=%s", ex)
	}
}

func TestSnapshot_RaceMode(t *testing.T) {
	g := oracleGraph(t)
	snap := mustRecompute(t, newTracker(g, Settings{}), Input{RaceMode: true})
	if _, err := snap.Path("T"); !errors.Is(err, ErrRaceMode) {
		t.Fatalf("Path err=%v", err)
	}
	if _, err := snap.Explain("Chest"); !errors.Is(err, ErrRaceMode) {
		t.Fatalf("Explain err=%v", err)
	}
}
