package log

import (
	"path/filepath"
	"time"

	"reachtracker.dev/internal/tracker"
)

const historyPrefix = "history"

// HistoryEntry is one recompute summary in the history stream.
type HistoryEntry struct {
	At         time.Time      `json:"at"`
	Game       string         `json:"game"`
	Player     int            `json:"player"`
	Digest     string         `json:"digest,omitempty"`
	InLogic    []string       `json:"in_logic"`
	Glitched   []string       `json:"glitched,omitempty"`
	Events     []string       `json:"events,omitempty"`
	Items      map[string]int `json:"items,omitempty"`
	Faults     []string       `json:"faults,omitempty"`
	DurationMS float64        `json:"duration_ms"`
}

// HistoryLogger writes one JSONL entry per recompute (compressed).
type HistoryLogger struct{ w *JSONLZstdWriter }

func NewHistoryLogger(dataDir string) *HistoryLogger {
	return &HistoryLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "history"), historyPrefix)}
}

func (l *HistoryLogger) WriteSnapshot(snap *tracker.Snapshot, took time.Duration) error {
	if l == nil || snap == nil || !snap.Initialized {
		return nil
	}
	e := HistoryEntry{
		At:         l.w.now().UTC(),
		Game:       snap.Game,
		Player:     snap.Player,
		InLogic:    snap.InLogic,
		Glitched:   snap.Glitched,
		Events:     snap.Events,
		Items:      snap.AllItems,
		Faults:     snap.Faults,
		DurationMS: float64(took.Microseconds()) / 1000,
	}
	if g := snap.Graph(); g != nil {
		e.Digest = g.Digest
	}
	return l.w.Write(e)
}

func (l *HistoryLogger) Close() error { return l.w.Close() }

// ReadHistory returns every entry written under dataDir, oldest first.
func ReadHistory(dataDir string) ([]HistoryEntry, error) {
	return ReadAll[HistoryEntry](filepath.Join(dataDir, "history"), historyPrefix)
}
