package worldfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"reachtracker.dev/internal/logic/graph"
)

// DebounceWindow groups the burst of events editors emit on save.
const DebounceWindow = 200 * time.Millisecond

// Watch reloads path whenever it changes and hands each result to fn. On a
// failed reload fn gets the error; the caller keeps its previous graph.
// The parent directory is watched so that atomic replace-on-save works.
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *zap.Logger, fn func(*graph.Graph, error)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(DebounceWindow)
			} else {
				timer.Reset(DebounceWindow)
			}
			timerC = timer.C
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("world file watcher error", zap.Error(err))
		case <-timerC:
			timerC = nil
			g, err := Load(abs)
			if err != nil {
				logger.Error("world file reload failed", zap.String("path", abs), zap.Error(err))
				fn(nil, err)
				continue
			}
			logger.Info("world file reloaded", zap.String("path", abs), zap.String("digest", g.Digest))
			fn(g, nil)
		}
	}
}
