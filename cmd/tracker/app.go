package main

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reachtracker.dev/internal/config"
	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/persistence/settings"
	"reachtracker.dev/internal/runner"
	"reachtracker.dev/internal/tracker"
	"reachtracker.dev/internal/transport/ws"
	"reachtracker.dev/internal/worldfile"
)

// app is the state every subcommand shares: config with stored overrides
// applied, a logger and the settings store.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	store  *settings.Store
	out    io.Writer
	errOut io.Writer
}

func openApp(cmd *cobra.Command, o *rootOptions) (*app, error) {
	cfg, err := config.Load(o.configPath, func(c *config.Config) {
		if o.world != "" {
			c.WorldFile = o.world
		}
		if o.slot != "" {
			c.Slot = o.slot
		}
		if o.server != "" {
			c.Server = o.server
		}
		if o.password != "" {
			c.Password = o.password
		}
	})
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	store, err := settings.OpenSQLite(filepath.Join(cfg.DataDir, "settings.db"))
	if err != nil {
		return nil, err
	}
	kv, err := store.All(cfg.Scope())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := cfg.ApplyOverrides(kv); err != nil {
		logger.Warn("ignoring stored display overrides", zap.Error(err))
	}
	return &app{
		cfg:    cfg,
		log:    logger,
		store:  store,
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.log.Sync()
}

func newLogger(mode string) (*zap.Logger, error) {
	if mode == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func (a *app) loadWorld() (*graph.Graph, error) {
	return worldfile.Load(a.cfg.WorldFile)
}

func (a *app) wsConfig(g *graph.Graph) ws.Config {
	game := a.cfg.Game
	if game == "" {
		game = g.Game
	}
	return ws.Config{
		URL:           a.cfg.Server,
		Slot:          a.cfg.Slot,
		Password:      a.cfg.Password,
		Game:          game,
		ItemsHandling: a.cfg.ItemsHandling,
	}
}

// offlineSource stands in for a session: nothing received, nothing checked.
type offlineSource struct{ in tracker.Input }

func (s offlineSource) Input() tracker.Input     { return s.in }
func (s offlineSource) Updates() <-chan struct{} { return nil }

// snapshot computes one snapshot, from a live session unless offline.
func (a *app) snapshot(ctx context.Context, o *rootOptions) (*tracker.Snapshot, error) {
	g, err := a.loadWorld()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr := tracker.New(a.log.Named("tracker"), a.cfg.TrackerSettings())
	var src runner.Source
	if o.offline {
		tr.Bind(g, 1)
		src = offlineSource{in: tracker.Input{
			ItemsHandling: a.cfg.ItemsHandling,
			Missing:       tracker.AllMissing(g, nil),
		}}
	} else {
		c, err := ws.Dial(ctx, a.wsConfig(g), a.log.Named("session"))
		if err != nil {
			return nil, err
		}
		defer c.Close()
		_, slot := c.Slot()
		tr.Bind(g, slot)
		go func() { _ = c.Run(ctx) }()
		waitQuiet(ctx, c.Updates(), o.settle, 10*o.settle)
		src = c
	}

	r := runner.New(tr, src, runner.Options{
		Logger:  a.log.Named("runner"),
		Overlay: a.store,
		Scope:   a.cfg.Scope(),
	})
	go func() { _ = r.Run(ctx) }()
	return r.RecomputeNow(ctx)
}

// waitQuiet returns once updates has been silent for quiet, or after limit.
func waitQuiet(ctx context.Context, updates <-chan struct{}, quiet, limit time.Duration) {
	if quiet <= 0 {
		return
	}
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	idle := time.NewTimer(quiet)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-idle.C:
			return
		case <-updates:
			idle.Reset(quiet)
		}
	}
}
