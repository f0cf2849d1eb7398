// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/taibuivan/collectify/internal/platform/dberr"
)

// Store is the persistence layer. All methods are safe for concurrent use;
// database/sql's pool serializes writers against SQLite's single-writer
// constraint and the WAL journal lets readers proceed regardless.
type Store struct {
	db *sql.DB

	stmtsMu sync.RWMutex
	stmts   map[string]*sql.Stmt
}

// New wraps an already-opened, already-migrated database handle.
//
// # Parameters
//   - db: A pool opened by [sqlitedb.Open].
//
// # Returns
//   - A ready-to-use [Store]. Statements are prepared lazily on first use
//     and cached for the lifetime of the Store.
func New(db *sql.DB) *Store {
	return &Store{db: db, stmts: make(map[string]*sql.Stmt)}
}

// prepared returns a cached prepared statement for query, preparing it on
// first request and reusing it for the lifetime of the Store. Safe for
// concurrent use: the background workers and HTTP handlers share one Store
// and may all race to prepare a query for the first time.
func (s *Store) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	s.stmtsMu.RLock()
	stmt, ok := s.stmts[query]
	s.stmtsMu.RUnlock()
	if ok {
		return stmt, nil
	}

	s.stmtsMu.Lock()
	defer s.stmtsMu.Unlock()
	if stmt, ok := s.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, dberr.Wrap(err, "prepare_statement")
	}
	s.stmts[query] = stmt
	return stmt, nil
}

// Ping verifies the underlying pool is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// # Collector & Item Upserts

const upsertCollectorQuery = `
insert into collector (fan_id, username, name, token, last_updated)
values (?, ?, ?, ?, 0)
on conflict (fan_id) do update set token = case when collector.token is null then excluded.token else collector.token end`

// UpsertCollector inserts a collector or, if one already exists for that
// fan_id, fills in its token only when the stored token is currently
// null. An existing row keeps its prior name/username; only the insert
// path sets them.
func (s *Store) UpsertCollector(ctx context.Context, collector Collector) error {
	stmt, err := s.prepared(ctx, upsertCollectorQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, collector.FanID, collector.Username, collector.Name, collector.Token)
	return dberr.Wrap(err, "upsert_collector")
}

const upsertItemQuery = `
insert into item (
	item_id, item_type, item_title, item_url, band_id, band_name, token,
	also_collected_count, last_updated
) values (?, ?, ?, ?, ?, ?, ?, ?, 0)
on conflict (item_id) do update set token = case when item.token is null then excluded.token else item.token end`

/*
UpsertItem inserts an item under its resolved identity (tracks collapse
into their containing album), filling in the token only when null.

# Parameters
  - item: The remote item payload; AlbumID/AlbumTitle drive the collapse
    but are never themselves persisted.

# Returns
  - The resolved item_id the row was stored under, and an error.
*/
func (s *Store) UpsertItem(ctx context.Context, item Item) (int64, error) {
	stmt, err := s.prepared(ctx, upsertItemQuery)
	if err != nil {
		return 0, err
	}
	itemID := item.ResolvedItemID()
	_, err = stmt.ExecContext(ctx,
		itemID, string(item.ItemType), item.ResolvedTitle(), item.ItemURL,
		item.BandID, item.BandName, item.Token, item.AlsoCollectedCount,
	)
	if err != nil {
		return 0, dberr.Wrap(err, "upsert_item")
	}
	return itemID, nil
}

// # Edges

const insertCollectsQuery = `insert or ignore into collects (fan_id, item_id) values (?, ?)`

/*
InsertCollects records that fan_id collects item_id.

# Returns
  - inserted: true if the edge was newly created, false if it already
    existed. Callers use this as the "done" signal that stops pagination.
*/
func (s *Store) InsertCollects(ctx context.Context, fanID, itemID int64) (bool, error) {
	stmt, err := s.prepared(ctx, insertCollectsQuery)
	if err != nil {
		return false, err
	}
	result, err := stmt.ExecContext(ctx, fanID, itemID)
	if err != nil {
		return false, dberr.Wrap(err, "insert_collects")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, dberr.Wrap(err, "insert_collects")
	}
	return affected > 0, nil
}

const insertCollectedByQuery = `insert or ignore into collected_by (item_id, fan_id) values (?, ?)`

// InsertCollectedBy records that item_id is collected by fan_id. See
// [Store.InsertCollects] for the "done signal" semantics of the bool return.
func (s *Store) InsertCollectedBy(ctx context.Context, itemID, fanID int64) (bool, error) {
	stmt, err := s.prepared(ctx, insertCollectedByQuery)
	if err != nil {
		return false, err
	}
	result, err := stmt.ExecContext(ctx, itemID, fanID)
	if err != nil {
		return false, dberr.Wrap(err, "insert_collected_by")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, dberr.Wrap(err, "insert_collected_by")
	}
	return affected > 0, nil
}

const removeCollectsForQuery = `delete from collects where fan_id = ?`

// RemoveCollectsFor deletes every collects edge recorded for a fan, used
// when a rate limit forces a retry so a half-applied crawl cannot falsely
// look "done" on the next attempt.
func (s *Store) RemoveCollectsFor(ctx context.Context, fanID int64) error {
	stmt, err := s.prepared(ctx, removeCollectsForQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, fanID)
	return dberr.Wrap(err, "remove_collects_for")
}

const removeCollectedByForQuery = `delete from collected_by where item_id = ?`

// RemoveCollectedByFor is the item-worker counterpart of [Store.RemoveCollectsFor].
func (s *Store) RemoveCollectedByFor(ctx context.Context, itemID int64) error {
	stmt, err := s.prepared(ctx, removeCollectedByForQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, itemID)
	return dberr.Wrap(err, "remove_collected_by_for")
}

// # Freshness & Lookups

const fanIDForUsernameQuery = `select fan_id from collector where username = ?`

// FanIDForUsername resolves a username to its numeric fan_id.
//
// Returns [dberr.ErrNotFound] if no collector with that username exists.
func (s *Store) FanIDForUsername(ctx context.Context, username string) (int64, error) {
	stmt, err := s.prepared(ctx, fanIDForUsernameQuery)
	if err != nil {
		return 0, err
	}
	var fanID int64
	err = stmt.QueryRowContext(ctx, username).Scan(&fanID)
	if err != nil {
		return 0, dberr.Wrap(err, "fan_id_for_username")
	}
	return fanID, nil
}

const collectorFreshQuery = `
select unixepoch('now') - unixepoch(last_updated, 'unixepoch', '30 days') from collector where username = ?`

// CollectorFresh reports whether a collector row exists and was updated
// within the freshness window.
func (s *Store) CollectorFresh(ctx context.Context, username string) (bool, error) {
	stmt, err := s.prepared(ctx, collectorFreshQuery)
	if err != nil {
		return false, err
	}
	var delta int64
	err = stmt.QueryRowContext(ctx, username).Scan(&delta)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, dberr.Wrap(err, "collector_fresh")
	}
	return delta < 0, nil
}

const itemFreshQuery = `
select unixepoch('now') - unixepoch(last_updated, 'unixepoch', '30 days') from item where item_id = ?`

// ItemFresh is the item-worker counterpart of [Store.CollectorFresh].
func (s *Store) ItemFresh(ctx context.Context, itemID int64) (bool, error) {
	stmt, err := s.prepared(ctx, itemFreshQuery)
	if err != nil {
		return false, err
	}
	var delta int64
	err = stmt.QueryRowContext(ctx, itemID).Scan(&delta)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, dberr.Wrap(err, "item_fresh")
	}
	return delta < 0, nil
}

const getItemQuery = `
select item_id, item_type, item_title, item_url, band_id, band_name, token, also_collected_count
from item where item_id = ?`

// GetItem loads a persisted item by its resolved identity.
func (s *Store) GetItem(ctx context.Context, itemID int64) (Item, error) {
	stmt, err := s.prepared(ctx, getItemQuery)
	if err != nil {
		return Item{}, err
	}
	var item Item
	var itemType string
	err = stmt.QueryRowContext(ctx, itemID).Scan(
		&item.ItemID, &itemType, &item.ItemTitle, &item.ItemURL,
		&item.BandID, &item.BandName, &item.Token, &item.AlsoCollectedCount,
	)
	if err != nil {
		return Item{}, dberr.Wrap(err, "get_item")
	}
	item.ItemType = ItemType(itemType)
	return item, nil
}

const markCollectorDoneQuery = `update collector set last_updated = unixepoch('now') where username = ?`

// MarkCollectorDone stamps a collector as freshly crawled.
func (s *Store) MarkCollectorDone(ctx context.Context, username string) error {
	stmt, err := s.prepared(ctx, markCollectorDoneQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, username)
	return dberr.Wrap(err, "mark_collector_done")
}

const markItemDoneQuery = `update item set last_updated = unixepoch('now') where item_id = ?`

// MarkItemDone stamps an item as freshly crawled.
func (s *Store) MarkItemDone(ctx context.Context, itemID int64) error {
	stmt, err := s.prepared(ctx, markItemDoneQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, itemID)
	return dberr.Wrap(err, "mark_item_done")
}

// # Work Queues

const enqueueCollectorQuery = `
insert or ignore into collector_collection_queue (fan_id)
values ((select fan_id from collector where username = ?))`

// EnqueueCollector schedules a username for (re-)crawling.
func (s *Store) EnqueueCollector(ctx context.Context, username string) error {
	stmt, err := s.prepared(ctx, enqueueCollectorQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, username)
	return dberr.Wrap(err, "enqueue_collector")
}

const enqueueCollectorByFanIDQuery = `insert or ignore into collector_collection_queue (fan_id) values (?)`

// EnqueueCollectorByFanID is [Store.EnqueueCollector] for callers that
// already resolved the fan_id, avoiding a redundant username lookup.
func (s *Store) EnqueueCollectorByFanID(ctx context.Context, fanID int64) error {
	stmt, err := s.prepared(ctx, enqueueCollectorByFanIDQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, fanID)
	return dberr.Wrap(err, "enqueue_collector_by_fan_id")
}

const enqueueItemQuery = `insert or ignore into item_collected_by_queue (item_id) values (?)`

// EnqueueItem schedules an item for its collected-by crawl.
func (s *Store) EnqueueItem(ctx context.Context, itemID int64) error {
	stmt, err := s.prepared(ctx, enqueueItemQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, itemID)
	return dberr.Wrap(err, "enqueue_item")
}

const selectFirstQueueCollectorQuery = `
select fan_id, username from collector_collection_queue join collector using (fan_id) order by fan_id asc limit 1`

const removeCollectorFromQueueQuery = `delete from collector_collection_queue where fan_id = ?`

/*
DequeueCollector peeks the queued collector with the lowest fan_id and
removes it from the queue in the same call: an atomic peek+delete, not a
true FIFO pop-then-ack.

When the queue is empty and crawl is true, it falls back to the stale
collector with the lowest fan_id instead of idling — the "crawl" mode
fallback.

# Returns
  - username, ok. ok is false when there is nothing to do.
*/
func (s *Store) DequeueCollector(ctx context.Context, crawl bool) (string, bool, error) {
	stmt, err := s.prepared(ctx, selectFirstQueueCollectorQuery)
	if err != nil {
		return "", false, err
	}
	var fanID int64
	var username string
	err = stmt.QueryRowContext(ctx).Scan(&fanID, &username)
	switch {
	case err == sql.ErrNoRows:
		if !crawl {
			return "", false, nil
		}
		return s.staleCollector(ctx)
	case err != nil:
		return "", false, dberr.Wrap(err, "dequeue_collector")
	}
	if err := s.RemoveCollectorFromQueue(ctx, fanID); err != nil {
		return "", false, err
	}
	return username, true, nil
}

const selectStaleCollectorQuery = `
select username from collector
where unixepoch('now') > unixepoch(last_updated, 'unixepoch', '30 days')
order by fan_id asc limit 1`

// staleCollector backs the crawl-mode fallback of [Store.DequeueCollector].
func (s *Store) staleCollector(ctx context.Context) (string, bool, error) {
	stmt, err := s.prepared(ctx, selectStaleCollectorQuery)
	if err != nil {
		return "", false, err
	}
	var username string
	err = stmt.QueryRowContext(ctx).Scan(&username)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, dberr.Wrap(err, "stale_collector")
	}
	return username, true, nil
}

// RemoveCollectorFromQueue removes a fan_id from the collection queue;
// [Store.DequeueCollector] calls it on the row it returns.
func (s *Store) RemoveCollectorFromQueue(ctx context.Context, fanID int64) error {
	stmt, err := s.prepared(ctx, removeCollectorFromQueueQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, fanID)
	return dberr.Wrap(err, "remove_collector_from_queue")
}

const selectFirstQueueItemQuery = `select item_id from item_collected_by_queue order by item_id asc limit 1`

const selectStaleItemQuery = `
select item_id from item
where unixepoch('now') > unixepoch(last_updated, 'unixepoch', '30 days')
order by item_id asc limit 1`

const removeItemFromQueueQuery = `delete from item_collected_by_queue where item_id = ?`

// DequeueItem is the item-worker counterpart of [Store.DequeueCollector].
// Unlike the collector queue, this peek does not remove the row; the
// caller removes it explicitly via [Store.RemoveItemFromQueue] once the
// crawl actually finishes, so a crash mid-fetch leaves the item queued.
func (s *Store) DequeueItem(ctx context.Context, crawl bool) (int64, bool, error) {
	stmt, err := s.prepared(ctx, selectFirstQueueItemQuery)
	if err != nil {
		return 0, false, err
	}
	var itemID int64
	err = stmt.QueryRowContext(ctx).Scan(&itemID)
	switch {
	case err == sql.ErrNoRows:
		if !crawl {
			return 0, false, nil
		}
		return s.staleItem(ctx)
	case err != nil:
		return 0, false, dberr.Wrap(err, "dequeue_item")
	}
	return itemID, true, nil
}

// staleItem backs the crawl-mode fallback of [Store.DequeueItem].
func (s *Store) staleItem(ctx context.Context) (int64, bool, error) {
	stmt, err := s.prepared(ctx, selectStaleItemQuery)
	if err != nil {
		return 0, false, err
	}
	var itemID int64
	err = stmt.QueryRowContext(ctx).Scan(&itemID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, dberr.Wrap(err, "stale_item")
	}
	return itemID, true, nil
}

// RemoveItemFromQueue removes an item_id from the collected-by queue.
func (s *Store) RemoveItemFromQueue(ctx context.Context, itemID int64) error {
	stmt, err := s.prepared(ctx, removeItemFromQueueQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, itemID)
	return dberr.Wrap(err, "remove_item_from_queue")
}

// # Progress Targets

const upsertTargetQuery = `
insert into collection_target (fan_id, stage, count_left, count_total, eta)
values (?, ?, ?, ?, ?)
on conflict (fan_id) do update
set stage = excluded.stage,
    count_left = excluded.count_left,
    count_total = case when excluded.count_total > collection_target.count_total
                       then excluded.count_total else collection_target.count_total end,
    eta = excluded.eta`

// UpsertTarget writes a target's progress, keeping count_total monotone so
// a tick refresh can never make the reported denominator shrink.
func (s *Store) UpsertTarget(ctx context.Context, target Target) error {
	stmt, err := s.prepared(ctx, upsertTargetQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, target.FanID, target.Stage, target.CountLeft, target.CountTotal, target.ETA)
	return dberr.Wrap(err, "upsert_target")
}

const deleteTargetQuery = `delete from collection_target where fan_id = ?`

// DeleteTarget removes a target, e.g. once a fan reaches stage 3.
func (s *Store) DeleteTarget(ctx context.Context, fanID int64) error {
	stmt, err := s.prepared(ctx, deleteTargetQuery)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, fanID)
	return dberr.Wrap(err, "delete_target")
}

const getTargetQuery = `
select fan_id, stage, count_left, count_total, eta from collection_target where fan_id = ?`

// GetTarget loads a fan's progress, or the stage-3 "done" sentinel if no
// row exists (meaning either it was never requested or fully satisfied).
func (s *Store) GetTarget(ctx context.Context, fanID int64) (Target, error) {
	stmt, err := s.prepared(ctx, getTargetQuery)
	if err != nil {
		return Target{}, err
	}
	var target Target
	err = stmt.QueryRowContext(ctx, fanID).Scan(
		&target.FanID, &target.Stage, &target.CountLeft, &target.CountTotal, &target.ETA,
	)
	if err == sql.ErrNoRows {
		return doneStage3(fanID), nil
	}
	if err != nil {
		return Target{}, dberr.Wrap(err, "get_target")
	}
	return target, nil
}

const allTargetFanIDsQuery = `select fan_id from collection_target`

// AllTargetFanIDs lists every fan currently being tracked, for the
// progress manager's background refresh tick.
func (s *Store) AllTargetFanIDs(ctx context.Context) ([]int64, error) {
	stmt, err := s.prepared(ctx, allTargetFanIDsQuery)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, dberr.Wrap(err, "all_target_fan_ids")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dberr.Wrap(err, "all_target_fan_ids")
		}
		ids = append(ids, id)
	}
	return ids, dberr.Wrap(rows.Err(), "all_target_fan_ids")
}

// # Progress Requirements & Recommender Support

const collectsSizeForUsernameQuery = `
select count(*) from collector join collects using (fan_id) where username = ?`

// CollectsSizeForUsername counts how many items a username's collector
// row collects. Zero both when the collector does not exist and when
// their collection is empty.
func (s *Store) CollectsSizeForUsername(ctx context.Context, username string) (int64, error) {
	stmt, err := s.prepared(ctx, collectsSizeForUsernameQuery)
	if err != nil {
		return 0, err
	}
	var count int64
	err = stmt.QueryRowContext(ctx, username).Scan(&count)
	return count, dberr.Wrap(err, "collects_size_for_username")
}

const stage1RequirementsQuery = `
select item_id from collects c
where fan_id = ? and
(select unixepoch('now') > unixepoch(last_updated, 'unixepoch', '30 days') from item i where i.item_id = c.item_id)`

// Stage1Requirements lists items a fan collects that are not yet fresh —
// the set the progress manager must crawl before a stage-2 target opens.
func (s *Store) Stage1Requirements(ctx context.Context, fanID int64) ([]int64, error) {
	return s.queryInt64List(ctx, stage1RequirementsQuery, fanID)
}

const stage2RequirementsQuery = `
select fan_id from collected_by c
where item_id in (select item_id from collects where fan_id = ?1) and
c.fan_id <> ?1 and
(select unixepoch('now') > unixepoch(last_updated, 'unixepoch', '30 days') from collector co where co.fan_id = c.fan_id)
group by fan_id
having count(fan_id) > 1`

// Stage2Requirements lists other collectors who share at least two items
// with fanID and are not yet fresh — the population the recommender needs
// crawled to produce meaningful overlap scores.
func (s *Store) Stage2Requirements(ctx context.Context, fanID int64) ([]int64, error) {
	return s.queryInt64List(ctx, stage2RequirementsQuery, fanID)
}

// queryInt64List runs a single-column int64 query and collects the results.
func (s *Store) queryInt64List(ctx context.Context, query string, arg int64) ([]int64, error) {
	stmt, err := s.prepared(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, arg)
	if err != nil {
		return nil, dberr.Wrap(err, "query_int64_list")
	}
	defer rows.Close()

	var results []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, dberr.Wrap(err, "query_int64_list")
		}
		results = append(results, v)
	}
	return results, dberr.Wrap(rows.Err(), "query_int64_list")
}

const relevantUsersQuery = `
select fan_id, group_concat(item_id) from collects
where fan_id in (
	select fan_id from collects
	where item_id in (
		select item_id from collects where fan_id = (select fan_id from collector where username = ?)
	)
	group by fan_id
	having count(fan_id) > 1
)
group by fan_id`

/*
RelevantUsersWithItems returns, for a given username, every collector who
shares at least two items with them, mapped to the full set of item ids
that collector collects (including the requesting user themself).

This is the raw material the recommender scores against; it never
touches the network and only reads rows already materialized by the
collection/item workers.
*/
func (s *Store) RelevantUsersWithItems(ctx context.Context, username string) (map[int64]map[int64]struct{}, error) {
	stmt, err := s.prepared(ctx, relevantUsersQuery)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, username)
	if err != nil {
		return nil, dberr.Wrap(err, "relevant_users_with_items")
	}
	defer rows.Close()

	result := make(map[int64]map[int64]struct{})
	for rows.Next() {
		var fanID int64
		var itemIDsCSV string
		if err := rows.Scan(&fanID, &itemIDsCSV); err != nil {
			return nil, dberr.Wrap(err, "relevant_users_with_items")
		}
		items := make(map[int64]struct{})
		for _, raw := range strings.Split(itemIDsCSV, ",") {
			var itemID int64
			if _, err := fmt.Sscanf(raw, "%d", &itemID); err != nil {
				return nil, dberr.Wrap(err, "relevant_users_with_items")
			}
			items[itemID] = struct{}{}
		}
		result[fanID] = items
	}
	return result, dberr.Wrap(rows.Err(), "relevant_users_with_items")
}

// Close releases every cached prepared statement. It does not close the
// underlying pool, which the caller (main) owns.
func (s *Store) Close() error {
	s.stmtsMu.Lock()
	defer s.stmtsMu.Unlock()

	var firstErr error
	for _, stmt := range s.stmts {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
