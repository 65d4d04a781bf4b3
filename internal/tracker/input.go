package tracker

import "reachtracker.dev/internal/logic/graph"

// ItemsHandlingOwnWorld is the items-handling bit that makes the server
// send items found in the slot's own world. Without it, self-found items
// have to be supplied as Input.LocalItems.
const ItemsHandlingOwnWorld = 0b010

// ReceivedItem is one entry of the received-item log.
type ReceivedItem struct {
	ItemID   int64           `json:"item"`
	Location int64           `json:"location"`
	Player   int             `json:"player"`
	Flags    graph.ItemFlags `json:"flags"`
}

// Input is everything one recompute needs. Nothing carries over between
// calls; the full item log is replayed every time.
type Input struct {
	Items         []ReceivedItem
	LocalItems    []ReceivedItem
	ItemsHandling int
	// Manual holds item names injected by hand; they count as progression.
	Manual []string

	Missing map[int64]bool
	Checked map[int64]bool
	Ignored map[int64]bool
	Hinted  map[int64]bool

	// FoundEntrances maps connection names to whether their target has
	// been discovered externally.
	FoundEntrances map[string]bool
	RaceMode       bool
}

// AllMissing returns every address of g that is not in checked. It stands
// in for the server's missing set when running offline.
func AllMissing(g *graph.Graph, checked map[int64]bool) map[int64]bool {
	out := map[int64]bool{}
	for _, l := range g.Locations() {
		if l.HasAddress && !checked[l.Address] {
			out[l.Address] = true
		}
	}
	return out
}
