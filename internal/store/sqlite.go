package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	session    TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (session, key)
)`

var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLite is a Store backed by an SQLite database. Keys are scoped to a session so
// several browsing contexts can share one file.
type SQLite struct {
	db      *sql.DB
	session string
	log     *zap.Logger
	now     func() time.Time
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func OpenSQLite(path, session string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if session == "" {
		session = NewSessionID()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory for %s: %w", path, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if path == ":memory:" {
		// every new connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, multierr.Append(fmt.Errorf("store: %s: %w", p, err), db.Close())
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(fmt.Errorf("store: create schema: %w", err), db.Close())
	}
	log.Debug("Session store opened", zap.String("path", path), zap.String("session", session))
	return &SQLite{db: db, session: session, log: log.Named("store"), now: time.Now}, nil
}

// Session returns the session the store is scoped to.
func (s *SQLite) Session() string { return s.session }

func (s *SQLite) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE session = ? AND key = ?`, s.session, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (session, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.session, key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
