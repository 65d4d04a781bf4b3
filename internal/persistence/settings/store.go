// Package settings persists per-slot tracker settings in sqlite: display
// overrides, the ignored-location list and manually collected items.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Keys understood by config.ApplyOverrides.
const (
	KeyFormat       = "format"
	KeyHideExcluded = "hide_excluded"
	KeyShowGlitched = "show_glitched"
)

// Scope names the settings of one slot in one game.
func Scope(game, slot string) string { return game + "/" + slot }

type Store struct {
	db *sql.DB
}

func OpenSQLite(path string) (*Store, error) {
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
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
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
		`CREATE TABLE IF NOT EXISTS settings (
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (scope, key)
		);`,
		`CREATE TABLE IF NOT EXISTS ignored_locations (
			scope TEXT NOT NULL,
			address INTEGER NOT NULL,
			PRIMARY KEY (scope, address)
		);`,
		`CREATE TABLE IF NOT EXISTS manual_items (
			scope TEXT NOT NULL,
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			PRIMARY KEY (scope, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(scope, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE scope=? AND key=?`, scope, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(scope, key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings(scope,key,value) VALUES(?,?,?)`, scope, key, value)
	return err
}

func (s *Store) All(scope string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key,value FROM settings WHERE scope=?`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) Ignore(scope string, addrs ...int64) error {
	return s.eachAddress(`INSERT OR IGNORE INTO ignored_locations(scope,address) VALUES(?,?)`, scope, addrs)
}

func (s *Store) Unignore(scope string, addrs ...int64) error {
	return s.eachAddress(`DELETE FROM ignored_locations WHERE scope=? AND address=?`, scope, addrs)
}

func (s *Store) eachAddress(query, scope string, addrs []int64) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, a := range addrs {
		if _, err := stmt.Exec(scope, a); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) Ignored(scope string) (map[int64]bool, error) {
	rows, err := s.db.Query(`SELECT address FROM ignored_locations WHERE scope=?`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]bool{}
	for rows.Next() {
		var a int64
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out[a] = true
	}
	return out, rows.Err()
}

func (s *Store) ResetIgnored(scope string) error {
	_, err := s.db.Exec(`DELETE FROM ignored_locations WHERE scope=?`, scope)
	return err
}

// AddManualItem appends one copy of name; adding the same item twice
// yields two copies.
func (s *Store) AddManualItem(scope, name string) error {
	_, err := s.db.Exec(`INSERT INTO manual_items(scope,seq,name)
		VALUES(?, (SELECT COALESCE(MAX(seq),0)+1 FROM manual_items WHERE scope=?), ?)`, scope, scope, name)
	return err
}

// ManualItems lists manual items in the order they were added.
func (s *Store) ManualItems(scope string) ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM manual_items WHERE scope=? ORDER BY seq`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) ResetManualItems(scope string) error {
	_, err := s.db.Exec(`DELETE FROM manual_items WHERE scope=?`, scope)
	return err
}
