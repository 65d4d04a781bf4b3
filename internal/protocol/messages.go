package protocol

import (
	"encoding/json"
	"fmt"
)

// Items-handling bits sent in Connect.
const (
	ItemsRemote   = 0b001
	ItemsOwnWorld = 0b010
	ItemsStarting = 0b100
	ItemsAll      = ItemsRemote | ItemsOwnWorld | ItemsStarting
)

// Data storage keys read by the tracker.
const RaceModeKey = "_read_race_mode"

// HintsKey is the data storage key holding the hints of a slot.
func HintsKey(team, slot int) string { return fmt.Sprintf("_read_hints_%d_%d", team, slot) }

type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

func NewVersion(major, minor, build int) Version {
	return Version{Major: major, Minor: minor, Build: build, Class: "Version"}
}

func (v Version) String() string { return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build) }

type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

type NetworkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

type NetworkSlot struct {
	Name string `json:"name"`
	Game string `json:"game"`
	Type int    `json:"type"`
}

// Server -> client.

type RoomInfo struct {
	Cmd                  string            `json:"cmd"`
	Version              Version           `json:"version"`
	GeneratorVersion     Version           `json:"generator_version"`
	Tags                 []string          `json:"tags"`
	Password             bool              `json:"password"`
	Games                []string          `json:"games"`
	DatapackageChecksums map[string]string `json:"datapackage_checksums"`
	SeedName             string            `json:"seed_name"`
}

type Connected struct {
	Cmd              string                 `json:"cmd"`
	Team             int                    `json:"team"`
	Slot             int                    `json:"slot"`
	Players          []NetworkPlayer        `json:"players"`
	MissingLocations []int64                `json:"missing_locations"`
	CheckedLocations []int64                `json:"checked_locations"`
	SlotData         json.RawMessage        `json:"slot_data,omitempty"`
	SlotInfo         map[string]NetworkSlot `json:"slot_info,omitempty"`
	HintPoints       int                    `json:"hint_points"`
}

type ConnectionRefused struct {
	Cmd    string   `json:"cmd"`
	Errors []string `json:"errors"`
}

// ReceivedItems carries items starting at Index. Index 0 is a full resend.
type ReceivedItems struct {
	Cmd   string        `json:"cmd"`
	Index int           `json:"index"`
	Items []NetworkItem `json:"items"`
}

type LocationInfo struct {
	Cmd       string        `json:"cmd"`
	Locations []NetworkItem `json:"locations"`
}

type RoomUpdate struct {
	Cmd              string          `json:"cmd"`
	CheckedLocations []int64         `json:"checked_locations,omitempty"`
	Players          []NetworkPlayer `json:"players,omitempty"`
	HintPoints       *int            `json:"hint_points,omitempty"`
}

type Retrieved struct {
	Cmd  string                     `json:"cmd"`
	Keys map[string]json.RawMessage `json:"keys"`
}

type SetReply struct {
	Cmd           string          `json:"cmd"`
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	OriginalValue json.RawMessage `json:"original_value,omitempty"`
	Slot          int             `json:"slot,omitempty"`
}

// Client -> server.

type Connect struct {
	Cmd           string   `json:"cmd"`
	Password      string   `json:"password"`
	Game          string   `json:"game"`
	Name          string   `json:"name"`
	UUID          string   `json:"uuid"`
	Version       Version  `json:"version"`
	ItemsHandling int      `json:"items_handling"`
	Tags          []string `json:"tags"`
	SlotData      bool     `json:"slot_data"`
}

type LocationScouts struct {
	Cmd          string  `json:"cmd"`
	Locations    []int64 `json:"locations"`
	CreateAsHint int     `json:"create_as_hint"`
}

type Sync struct {
	Cmd string `json:"cmd"`
}

type Get struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

type SetNotify struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

// HintFound is the hint status of a hint whose location has been checked.
const HintFound = 40

type Hint struct {
	ReceivingPlayer int    `json:"receiving_player"`
	FindingPlayer   int    `json:"finding_player"`
	Location        int64  `json:"location"`
	Item            int64  `json:"item"`
	Found           bool   `json:"found"`
	Entrance        string `json:"entrance"`
	ItemFlags       int    `json:"item_flags"`
	Status          int    `json:"status"`
}

// HintedLocations returns the unfound hinted locations slot has to check.
// A null value decodes to an empty set.
func HintedLocations(raw json.RawMessage, slot int) (map[int64]bool, error) {
	out := map[int64]bool{}
	if len(raw) == 0 {
		return out, nil
	}
	var hints []Hint
	if err := json.Unmarshal(raw, &hints); err != nil {
		return nil, fmt.Errorf("decode hints: %w", err)
	}
	for _, h := range hints {
		if h.FindingPlayer != slot || h.Found || h.Status == HintFound {
			continue
		}
		out[h.Location] = true
	}
	return out, nil
}

// Truthy reports whether a data storage value is set to something other
// than null, false, 0 or an empty string.
func Truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	}
	return true
}
