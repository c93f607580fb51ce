// Package store is the SQLite persistence layer shared by the ingest
// writer and the publish reader. The file is opened in WAL mode with a
// bounded busy timeout so one writer and one reader can work on it
// concurrently without either blocking for long.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/cnehgus0620/aiot-manager/internal/log"
)

const busyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS metrics (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    dev    TEXT    NOT NULL,
    ts     TEXT    NOT NULL,
    t      REAL,
    h      REAL,
    lx     REAL,
    g      REAL,
    pm1_0  REAL,
    pm2_5  REAL,
    pm10   REAL
);
CREATE INDEX IF NOT EXISTS idx_metrics_dev_ts ON metrics(dev, ts);
CREATE TABLE IF NOT EXISTS rejects (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    dev     TEXT,
    ts      TEXT,
    reason  TEXT    NOT NULL,
    payload TEXT    NOT NULL,
    created TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS iot_checkpoint (
    last_end_utc INTEGER
);
`

// Store wraps one SQLite connection pool plus the fixed civil zone the
// ts column is written in.
type Store struct {
	db     *sql.DB
	loc    *time.Location
	logger log.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. loc is the zone of the stored civil timestamps.
func Open(path string, loc *time.Location, logger log.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.WithMessage(err, "failed to create db dir")
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to open sqlite db")
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "failed to apply schema")
	}
	return &Store{db: db, loc: loc, logger: logger.Named("store")}, nil
}

// Zone returns the civil zone of the stored timestamps.
func (s *Store) Zone() *time.Location {
	return s.loc
}

func (s *Store) Close() error {
	return s.db.Close()
}
