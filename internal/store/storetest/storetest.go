// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package storetest builds an in-memory [store.Store] for tests, applying
// the same tables migrations/0001_init.up.sql installs against a real
// file (without that file's two secondary indexes), so
// store/crawl/progress/recommend tests exercise real SQL rather than a
// mock.
package storetest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/collectify/internal/store"
)

const schema = `
create table collector (
    fan_id        integer primary key,
    username      text not null unique,
    name          text not null default '',
    token         text,
    last_updated  integer not null default 0
);

create table item (
    item_id                integer primary key,
    item_type              text not null,
    item_title             text not null default '',
    item_url               text not null default '',
    band_id                integer not null default 0,
    band_name              text not null default '',
    token                  text,
    also_collected_count   integer not null default 0,
    last_updated           integer not null default 0
);

create table collects (
    fan_id   integer not null references collector (fan_id),
    item_id  integer not null references item (item_id),
    primary key (fan_id, item_id)
);

create table collected_by (
    item_id  integer not null references item (item_id),
    fan_id   integer not null references collector (fan_id),
    primary key (item_id, fan_id)
);

create table collector_collection_queue (
    fan_id  integer primary key references collector (fan_id)
);

create table item_collected_by_queue (
    item_id  integer primary key references item (item_id)
);

create table collection_target (
    fan_id       integer primary key references collector (fan_id),
    stage        integer not null,
    count_left   integer not null,
    count_total  integer not null,
    eta          integer not null
);
`

// New opens a fresh in-memory SQLite database, applies the schema, and
// returns a ready-to-use [store.Store] alongside the raw [*sql.DB] (for
// tests that need to backdate rows directly via [SetLastUpdated]). The
// database is closed automatically via t.Cleanup.
func New(t *testing.T) (*store.Store, *sql.DB) {
	t.Helper()

	// A shared-cache memory DB with a single connection keeps every
	// statement on the same in-memory database; a plain ":memory:" DSN
	// would hand out a fresh empty database per connection.
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared&_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return store.New(db), db
}

// SetLastUpdated backdates a collector or item's last_updated column
// directly, bypassing the store's API, so tests can construct stale or
// fresh rows without waiting on real time.
func SetLastUpdated(t *testing.T, db *sql.DB, table, keyColumn string, key int64, epochSeconds int64) {
	t.Helper()
	_, err := db.Exec("update "+table+" set last_updated = ? where "+keyColumn+" = ?", epochSeconds, key)
	require.NoError(t, err)
}
