package tracker

import (
	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/logic/reach"
)

// Category is the logic category of an addressed location.
type Category string

const (
	InLogic    Category = "in_logic"
	Glitched   Category = "glitched"
	OutOfLogic Category = "out_of_logic"
	Collected  Category = "collected"
	Ignored    Category = "ignored"
)

// Status is a location's category plus the orthogonal hinted marker.
type Status struct {
	Category Category `json:"category"`
	Hinted   bool     `json:"hinted,omitempty"`
}

// Outstanding reports whether the location still needs checking.
func (s Status) Outstanding() bool {
	return s.Category == InLogic || s.Category == Glitched || s.Category == OutOfLogic
}

func (s Status) String() string {
	if s.Hinted && s.Outstanding() {
		return "hinted_" + string(s.Category)
	}
	return string(s.Category)
}

// EntranceState classifies a connection whose discovery is tracked
// externally.
type EntranceState string

const (
	Passed     EntranceState = "passed"
	Passable   EntranceState = "passable"
	Impassable EntranceState = "impassable"
)

// Snapshot is the result of one recompute.
type Snapshot struct {
	Initialized bool   `json:"initialized"`
	Game        string `json:"game,omitempty"`
	Player      int    `json:"player,omitempty"`

	AllItems         map[string]int `json:"all_items"`
	ProgressionItems map[string]int `json:"progression_items"`

	InLogic          []string `json:"in_logic"`
	InLogicAddresses []int64  `json:"in_logic_addresses"`
	Regions          []string `json:"regions"`
	Events           []string `json:"events"`
	Glitched         []string `json:"glitched"`
	Hinted           []string `json:"hinted"`
	Unconnected      []string `json:"unconnected"`
	Readable         []string `json:"readable"`

	Statuses  map[int64]Status         `json:"-"`
	Entrances map[string]EntranceState `json:"entrances,omitempty"`
	Faults    []string                 `json:"faults,omitempty"`

	// State is the solved collection state, kept for explain queries.
	State *reach.State `json:"-"`

	graph    *graph.Graph
	raceMode bool
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		AllItems:         map[string]int{},
		ProgressionItems: map[string]int{},
		Statuses:         map[int64]Status{},
	}
}

// Status returns the classification of the location at address.
func (s *Snapshot) Status(address int64) (Status, bool) {
	st, ok := s.Statuses[address]
	return st, ok
}

// Graph returns the graph the snapshot was computed on, nil when
// uninitialized.
func (s *Snapshot) Graph() *graph.Graph { return s.graph }
