// Package observerproto defines the messages served to local snapshot
// observers (status overlays, browser views) by a running tracker.
package observerproto

import "reachtracker.dev/internal/tracker"

// Version is the observer protocol version (separate from the game
// server protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeSnapshot  = "SNAPSHOT"
)

// Client -> Server. First message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// CountsOnly omits the per-location lists.
	CountsOnly bool `json:"counts_only,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	Seq             uint64        `json:"seq"`
	Snapshot        *SnapshotView `json:"snapshot,omitempty"`
}

// Server -> Client. Sent after SUBSCRIBE and whenever a recompute
// produces a new snapshot.
type SnapshotMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Seq             uint64        `json:"seq"`
	Snapshot        *SnapshotView `json:"snapshot"`
}

// SnapshotView is the wire form of a tracker snapshot.
type SnapshotView struct {
	Initialized bool   `json:"initialized"`
	Game        string `json:"game,omitempty"`
	Player      int    `json:"player,omitempty"`

	Counts Counts `json:"counts"`

	InLogic     []string          `json:"in_logic,omitempty"`
	Glitched    []string          `json:"glitched,omitempty"`
	Hinted      []string          `json:"hinted,omitempty"`
	Regions     []string          `json:"regions,omitempty"`
	Events      []string          `json:"events,omitempty"`
	Readable    []string          `json:"readable,omitempty"`
	Items       map[string]int    `json:"items,omitempty"`
	Entrances   map[string]string `json:"entrances,omitempty"`
	Unconnected []string          `json:"unconnected,omitempty"`
}

type Counts struct {
	InLogic  int `json:"in_logic"`
	Glitched int `json:"glitched"`
	Hinted   int `json:"hinted"`
	Regions  int `json:"regions"`
	Events   int `json:"events"`
	Items    int `json:"items"`
}

// ViewOf converts snap. A nil snapshot yields an uninitialized view.
func ViewOf(snap *tracker.Snapshot) *SnapshotView {
	if snap == nil {
		return &SnapshotView{}
	}
	v := &SnapshotView{
		Initialized: snap.Initialized,
		Game:        snap.Game,
		Player:      snap.Player,
		InLogic:     snap.InLogic,
		Glitched:    snap.Glitched,
		Hinted:      snap.Hinted,
		Regions:     snap.Regions,
		Events:      snap.Events,
		Readable:    snap.Readable,
		Items:       snap.AllItems,
		Unconnected: snap.Unconnected,
	}
	v.Counts = Counts{
		InLogic:  len(snap.InLogic),
		Glitched: len(snap.Glitched),
		Hinted:   len(snap.Hinted),
		Regions:  len(snap.Regions),
		Events:   len(snap.Events),
	}
	for _, n := range snap.AllItems {
		v.Counts.Items += n
	}
	if len(snap.Entrances) > 0 {
		v.Entrances = make(map[string]string, len(snap.Entrances))
		for name, st := range snap.Entrances {
			v.Entrances[name] = string(st)
		}
	}
	return v
}

// CountsOnly returns a copy of v without the lists.
func (v *SnapshotView) CountsOnly() *SnapshotView {
	if v == nil {
		return nil
	}
	return &SnapshotView{
		Initialized: v.Initialized,
		Game:        v.Game,
		Player:      v.Player,
		Counts:      v.Counts,
	}
}
