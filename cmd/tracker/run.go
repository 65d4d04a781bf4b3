package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/metrics"
	"reachtracker.dev/internal/persistence/indexdb"
	plog "reachtracker.dev/internal/persistence/log"
	"reachtracker.dev/internal/runner"
	"reachtracker.dev/internal/tracker"
	"reachtracker.dev/internal/transport/observer"
	"reachtracker.dev/internal/transport/ws"
	"reachtracker.dev/internal/worldfile"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stay connected and print the in-logic list whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, o)
			if err != nil {
				return err
			}
			defer a.close()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	g, err := a.loadWorld()
	if err != nil {
		return err
	}
	client, err := ws.Dial(ctx, a.wsConfig(g), a.log.Named("session"))
	if err != nil {
		return err
	}
	defer client.Close()
	team, slot := client.Slot()
	a.log.Info("connected",
		zap.String("server", a.cfg.Server),
		zap.String("slot", a.cfg.Slot),
		zap.Int("team", team),
		zap.Int("player", slot))

	tr := tracker.New(a.log.Named("tracker"), a.cfg.TrackerSettings())
	tr.Bind(g, slot)

	idx, err := indexdb.OpenSQLite(filepath.Join(a.cfg.DataDir, "index", "tracker.sqlite"))
	if err != nil {
		return err
	}
	defer idx.Close()
	idx.RecordWorld(a.cfg.WorldFile, g)

	hist := plog.NewHistoryLogger(a.cfg.DataDir)
	defer hist.Close()

	m := metrics.New()
	obs := observer.NewServer(a.log.Named("observer"))
	printChanges := changePrinter(a.out)
	r := runner.New(tr, client, runner.Options{
		Debounce:   a.cfg.Debounce(),
		Logger:     a.log.Named("runner"),
		Overlay:    a.store,
		Scope:      a.cfg.Scope(),
		Metrics:    m,
		History:    hist,
		Index:      idx,
		OnSnapshot: func(snap *tracker.Snapshot) {
			printChanges(snap)
			obs.Publish(snap)
		},
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return client.Run(ctx) })
	eg.Go(func() error { return r.Run(ctx) })
	eg.Go(func() error {
		return worldfile.Watch(ctx, a.cfg.WorldFile, a.log.Named("world"), func(g *graph.Graph, err error) {
			m.ObserveReload(err)
			if err == nil {
				r.Reload(a.cfg.WorldFile, g)
			}
		})
	})
	if a.cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		obs.Register(mux)
		eg.Go(func() error { return serveHTTP(ctx, a.cfg.MetricsListen, mux, a.log) })
	}
	r.Trigger()

	err = eg.Wait()
	st := idx.Stats()
	a.log.Info("stopped",
		zap.Uint64("index_dropped_recomputes", st.DropRecomputeTotal),
		zap.Uint64("index_dropped_worlds", st.DropWorldTotal))
	return err
}

// changePrinter prints the readable list whenever it differs from the last
// one printed.
func changePrinter(w io.Writer) func(*tracker.Snapshot) {
	var last []string
	printed := false
	return func(snap *tracker.Snapshot) {
		if printed && slices.Equal(last, snap.Readable) {
			return
		}
		printed = true
		last = slices.Clone(snap.Readable)
		fmt.Fprintf(w, "--- %s: %d in logic", time.Now().Format(time.TimeOnly), len(snap.InLogic))
		if len(snap.Glitched) > 0 {
			fmt.Fprintf(w, ", %d glitched", len(snap.Glitched))
		}
		fmt.Fprintln(w)
		for _, line := range snap.Readable {
			fmt.Fprintln(w, line)
		}
	}
}

// serveHTTP serves /metrics and the observer feed until ctx is done.
func serveHTTP(ctx context.Context, addr string, mux *http.ServeMux, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()
	logger.Info("http listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
