// Package runner owns the recompute loop: it coalesces change signals,
// recomputes on one goroutine and publishes the latest snapshot.
package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/tracker"
)

const DefaultDebounce = 125 * time.Millisecond

// Source supplies session input and signals when it changed.
type Source interface {
	Input() tracker.Input
	Updates() <-chan struct{}
}

// Overlay is locally persisted state layered over the session input.
type Overlay interface {
	Ignored(scope string) (map[int64]bool, error)
	ManualItems(scope string) ([]string, error)
}

// Observer is told about every recompute.
type Observer interface {
	ObserveRecompute(snap *tracker.Snapshot, took time.Duration, err error)
}

type HistoryWriter interface {
	WriteSnapshot(snap *tracker.Snapshot, took time.Duration) error
}

type Indexer interface {
	RecordRecompute(snap *tracker.Snapshot, took time.Duration)
	RecordWorld(path string, g *graph.Graph)
}

type Options struct {
	Debounce time.Duration
	Logger   *zap.Logger

	Overlay Overlay
	Scope   string

	Metrics Observer
	History HistoryWriter
	Index   Indexer

	// OnSnapshot runs on the loop goroutine after each successful recompute.
	OnSnapshot func(*tracker.Snapshot)
}

type request struct {
	reply chan result
}

type result struct {
	snap *tracker.Snapshot
	err  error
}

type Runner struct {
	tr   *tracker.Tracker
	src  Source
	opts Options
	log  *zap.Logger

	trigger chan struct{}
	reqs    chan request
	latest  atomic.Pointer[tracker.Snapshot]
}

func New(tr *tracker.Tracker, src Source, opts Options) *Runner {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Runner{
		tr:      tr,
		src:     src,
		opts:    opts,
		log:     opts.Logger,
		trigger: make(chan struct{}, 1),
		reqs:    make(chan request),
	}
}

// Trigger schedules a debounced recompute. It never blocks.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Reload binds a freshly loaded graph and schedules a recompute.
func (r *Runner) Reload(path string, g *graph.Graph) {
	r.tr.Bind(g, r.tr.Player())
	if r.opts.Index != nil {
		r.opts.Index.RecordWorld(path, g)
	}
	r.log.Info("world reloaded", zap.String("path", path), zap.String("digest", g.Digest))
	r.Trigger()
}

// Latest returns the most recent successful snapshot, nil before the first.
func (r *Runner) Latest() *tracker.Snapshot { return r.latest.Load() }

// RecomputeNow recomputes on the loop goroutine without waiting for the
// debounce window. Run must be active.
func (r *Runner) RecomputeNow(ctx context.Context) (*tracker.Snapshot, error) {
	req := request{reply: make(chan result, 1)}
	select {
	case r.reqs <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.snap, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run processes triggers until ctx is done. A datapackage mismatch stops
// the loop and is returned.
func (r *Runner) Run(ctx context.Context) error {
	var updates <-chan struct{}
	if r.src != nil {
		updates = r.src.Updates()
	}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	pending := false

	schedule := func() {
		if !pending {
			pending = true
			timer.Reset(r.opts.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			schedule()
		case <-r.trigger:
			schedule()
		case <-timer.C:
			pending = false
			if _, err := r.recompute(); errors.Is(err, tracker.ErrDatapackageMismatch) {
				return err
			}
		case req := <-r.reqs:
			snap, err := r.recompute()
			req.reply <- result{snap: snap, err: err}
			if errors.Is(err, tracker.ErrDatapackageMismatch) {
				return err
			}
		}
	}
}

func (r *Runner) recompute() (*tracker.Snapshot, error) {
	in := tracker.Input{}
	if r.src != nil {
		in = r.src.Input()
	}
	r.overlay(&in)

	start := time.Now()
	snap, err := r.tr.Recompute(in)
	took := time.Since(start)
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveRecompute(snap, took, err)
	}
	if err != nil {
		r.log.Error("recompute failed", zap.Error(err))
		return nil, err
	}
	r.latest.Store(snap)
	if snap.Initialized {
		if r.opts.History != nil {
			if err := r.opts.History.WriteSnapshot(snap, took); err != nil {
				r.log.Warn("history write failed", zap.Error(err))
			}
		}
		if r.opts.Index != nil {
			r.opts.Index.RecordRecompute(snap, took)
		}
	}
	r.log.Debug("recomputed",
		zap.Bool("initialized", snap.Initialized),
		zap.Int("in_logic", len(snap.InLogic)),
		zap.Int("glitched", len(snap.Glitched)),
		zap.Duration("took", took))
	if r.opts.OnSnapshot != nil {
		r.opts.OnSnapshot(snap)
	}
	return snap, nil
}

func (r *Runner) overlay(in *tracker.Input) {
	if r.opts.Overlay == nil {
		return
	}
	ignored, err := r.opts.Overlay.Ignored(r.opts.Scope)
	if err != nil {
		r.log.Warn("load ignored locations", zap.Error(err))
	} else if len(ignored) > 0 {
		merged := make(map[int64]bool, len(in.Ignored)+len(ignored))
		for a := range in.Ignored {
			merged[a] = true
		}
		for a := range ignored {
			merged[a] = true
		}
		in.Ignored = merged
	}
	manual, err := r.opts.Overlay.ManualItems(r.opts.Scope)
	if err != nil {
		r.log.Warn("load manual items", zap.Error(err))
	} else if len(manual) > 0 {
		in.Manual = append(append([]string(nil), in.Manual...), manual...)
	}
}
