// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package sqlitedb provides a bounded connection pool over a single SQLite
database file.

It specializes in managing [database/sql.DB] instances backed by the
'mattn/go-sqlite3' driver, ensuring that connections are recycled
efficiently and that the file can tolerate concurrent readers and a
single writer without corrupting state.

Architecture:

  - Pool: database/sql's built-in pooling, tuned for a single-file store.
  - WAL mode: enabled via the driver DSN so readers never block on a writer.
  - Safety: a bounded busy-timeout avoids SQLITE_BUSY under write contention.

This package acts as the bridge between the store and the physical file.
*/
package sqlitedb

import (
	stdctx "context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// # Pool Configuration (Tuning)

// Opinionated pool settings for a single-writer SQLite workload.
const (
	// maxOpenConns bounds total connections; SQLite serializes writers
	// regardless, so this mainly bounds concurrent readers.
	maxOpenConns = 10

	// maxIdleConns keeps a warm set of connections to avoid cold-start latency.
	maxIdleConns = 5

	// connMaxLifetime ensures connections are periodically recycled.
	connMaxLifetime = 60 * time.Minute

	// connMaxIdleTime closes connections that have been idle too long.
	connMaxIdleTime = 10 * time.Minute

	// busyTimeoutMillis is how long a connection waits on SQLITE_BUSY before failing.
	busyTimeoutMillis = 5000

	// pingTimeout is the maximum duration for a health check ping.
	pingTimeout = 2 * time.Second
)

// # Lifecycle Management

// Open creates and validates a new pool over the SQLite file at path.
// The file is created if it does not already exist.
func Open(context stdctx.Context, path string, logger *slog.Logger) (*sql.DB, error) {

	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeoutMillis,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: invalid DSN: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := Ping(context, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite pool connected",
		slog.String("path", path),
		slog.Int("max_open_conns", maxOpenConns),
	)

	return db, nil
}

// # Health Checks

// Ping verifies that the SQLite connection pool is healthy.
func Ping(context stdctx.Context, db *sql.DB) error {
	pingCtx, cancel := stdctx.WithTimeout(context, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("sqlitedb: ping failed: %w", err)
	}

	return nil
}
