// Package indexdb keeps a queryable sqlite index of loaded worlds and
// recompute results. Writes are queued and applied by one goroutine;
// the history log remains the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"reachtracker.dev/internal/logic/graph"
	"reachtracker.dev/internal/tracker"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropWorld     atomic.Uint64
	dropRecompute atomic.Uint64
}

type QueueStats struct {
	QueueDepth         int
	QueueCapacity      int
	DropWorldTotal     uint64
	DropRecomputeTotal uint64
}

type reqKind int

const (
	reqWorld reqKind = iota + 1
	reqRecompute
)

type req struct {
	kind reqKind

	world     worldRow
	recompute recomputeRow
}

type worldRow struct {
	Digest    string
	Game      string
	Path      string
	Regions   int
	Locations int
	Events    int
	LoadedAt  string
}

type recomputeRow struct {
	At         string
	Digest     string
	Game       string
	Player     int
	InLogic    int
	Glitched   int
	Events     int
	Items      int
	Faults     int
	DurationUS int64
	RawJSON    string
}

const defaultQueueSize = 4096

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, defaultQueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS worlds (
			digest TEXT PRIMARY KEY,
			game TEXT NOT NULL,
			path TEXT NOT NULL,
			regions INTEGER NOT NULL,
			locations INTEGER NOT NULL,
			events INTEGER NOT NULL,
			loaded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS recomputes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			digest TEXT NOT NULL,
			game TEXT NOT NULL,
			player INTEGER NOT NULL,
			in_logic INTEGER NOT NULL,
			glitched INTEGER NOT NULL,
			events INTEGER NOT NULL,
			items INTEGER NOT NULL,
			faults INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_recomputes_game_player ON recomputes(game, player, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropWorldTotal:     s.dropWorld.Load(),
		DropRecomputeTotal: s.dropRecompute.Load(),
	}
}

// RecordWorld indexes a loaded world file by digest.
func (s *SQLiteIndex) RecordWorld(path string, g *graph.Graph) {
	if s == nil || s.closed.Load() || g == nil {
		return
	}
	r := worldRow{
		Digest:    g.Digest,
		Game:      g.Game,
		Path:      path,
		Regions:   len(g.Regions()),
		Locations: len(g.Locations()) - len(g.EventLocations()),
		Events:    len(g.EventLocations()),
		LoadedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqWorld, world: r}:
	default:
		s.dropWorld.Add(1)
	}
}

// RecordRecompute indexes the summary of one snapshot.
func (s *SQLiteIndex) RecordRecompute(snap *tracker.Snapshot, took time.Duration) {
	if s == nil || s.closed.Load() || snap == nil {
		return
	}
	raw, _ := json.Marshal(snap)
	digest := ""
	if g := snap.Graph(); g != nil {
		digest = g.Digest
	}
	items := 0
	for _, n := range snap.AllItems {
		items += n
	}
	r := recomputeRow{
		At:         time.Now().UTC().Format(time.RFC3339Nano),
		Digest:     digest,
		Game:       snap.Game,
		Player:     snap.Player,
		InLogic:    len(snap.InLogic),
		Glitched:   len(snap.Glitched),
		Events:     len(snap.Events),
		Items:      items,
		Faults:     len(snap.Faults),
		DurationUS: took.Microseconds(),
		RawJSON:    string(raw),
	}
	select {
	case s.ch <- req{kind: reqRecompute, recompute: r}:
	default:
		// Drop if the indexer falls behind.
		s.dropRecompute.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertWorld, _ := s.db.Prepare(`INSERT OR REPLACE INTO worlds(digest,game,path,regions,locations,events,loaded_at) VALUES(?,?,?,?,?,?,?)`)
	insertRecompute, _ := s.db.Prepare(`INSERT INTO recomputes(at,digest,game,player,in_logic,glitched,events,items,faults,duration_us,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertWorld != nil {
			_ = insertWorld.Close()
		}
		if insertRecompute != nil {
			_ = insertRecompute.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 200
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqWorld:
			w := r.world
			if insertWorld != nil {
				if _, err := tx.Stmt(insertWorld).Exec(w.Digest, w.Game, w.Path, w.Regions, w.Locations, w.Events, w.LoadedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqRecompute:
			rc := r.recompute
			if insertRecompute != nil {
				if _, err := tx.Stmt(insertRecompute).Exec(
					rc.At,
					rc.Digest,
					rc.Game,
					rc.Player,
					rc.InLogic,
					rc.Glitched,
					rc.Events,
					rc.Items,
					rc.Faults,
					rc.DurationUS,
					rc.RawJSON,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if len(s.ch) == 0 {
			// Idle: make the batch visible to readers.
			commit()
			continue
		}
		flushIfNeeded()
	}

	commit()
}
