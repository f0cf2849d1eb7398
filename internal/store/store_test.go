// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/collectify/internal/store"
	"github.com/taibuivan/collectify/internal/store/storetest"
)

func ptr[T any](v T) *T { return &v }

func seedCollector(t *testing.T, ctx context.Context, st *store.Store, fanID int64, username string) {
	t.Helper()
	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: fanID, Username: username, Name: username}))
}

func seedItem(t *testing.T, ctx context.Context, st *store.Store, itemID int64) int64 {
	t.Helper()
	resolved, err := st.UpsertItem(ctx, store.Item{ItemID: itemID, ItemType: store.ItemTypeAlbum, ItemTitle: "t", ItemURL: "https://x.bandcamp.com/album/t"})
	require.NoError(t, err)
	return resolved
}

// TestEdgeIdempotence is property 1: repeated inserts of the same pair
// report "newly inserted" only on the first call, and the edge count
// never grows past one.
func TestEdgeIdempotence(t *testing.T) {
	ctx := context.Background()
	st, db := storetest.New(t)
	seedCollector(t, ctx, st, 1, "alice")
	seedItem(t, ctx, st, 100)

	for i := 0; i < 3; i++ {
		inserted, err := st.InsertCollects(ctx, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, i == 0, inserted, "iteration %d", i)
	}

	var count int
	require.NoError(t, db.QueryRow(`select count(*) from collects where fan_id = 1 and item_id = 100`).Scan(&count))
	assert.Equal(t, 1, count)
}

// TestTokenFillMonotonicity is property 2: a non-null token is never
// overwritten with a subsequent null, but a null token does get filled.
func TestTokenFillMonotonicity(t *testing.T) {
	ctx := context.Background()
	st, db := storetest.New(t)

	token := func() sql.NullString {
		t.Helper()
		var tok sql.NullString
		require.NoError(t, db.QueryRow(`select token from collector where fan_id = 1`).Scan(&tok))
		return tok
	}
	tok1 := sql.NullString{String: "tok-1", Valid: true}

	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: 1, Username: "alice", Token: nil}))
	assert.False(t, token().Valid)
	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: 1, Username: "alice", Token: ptr("tok-1")}))
	assert.Equal(t, tok1, token(), "a null token is filled")
	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: 1, Username: "alice", Token: ptr("tok-2")}))
	assert.Equal(t, tok1, token(), "a non-null token is kept")
	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: 1, Username: "alice", Token: nil}))
	assert.Equal(t, tok1, token(), "a non-null token is never overwritten with null")

	fanID, err := st.FanIDForUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), fanID)
}

// TestFreshnessWindow is property 3: a collector is fresh iff its row
// exists and was updated within the last 30 days.
func TestFreshnessWindow(t *testing.T) {
	ctx := context.Background()
	st, db := storetest.New(t)

	fresh, err := st.CollectorFresh(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, fresh, "a missing row is never fresh")

	seedCollector(t, ctx, st, 1, "alice")
	fresh, err = st.CollectorFresh(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, fresh, "last_updated defaults to 0 (never crawled)")

	require.NoError(t, st.MarkCollectorDone(ctx, "alice"))
	fresh, err = st.CollectorFresh(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, fresh)

	storetest.SetLastUpdated(t, db, "collector", "fan_id", 1, 1)
	fresh, err = st.CollectorFresh(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, fresh, "a 1970 timestamp is long past the 30-day window")
}

// TestTargetProgressMonotonicity is property 4: across successive
// UpsertTarget calls for the same (fan_id, stage), count_total never
// decreases.
func TestTargetProgressMonotonicity(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedCollector(t, ctx, st, 1, "alice")

	require.NoError(t, st.UpsertTarget(ctx, store.Target{FanID: 1, Stage: 1, CountLeft: 5, CountTotal: 5, ETA: 10}))
	require.NoError(t, st.UpsertTarget(ctx, store.Target{FanID: 1, Stage: 1, CountLeft: 3, CountTotal: 3, ETA: 6}))

	target, err := st.GetTarget(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), target.CountLeft)
	assert.Equal(t, int64(5), target.CountTotal, "count_total must not shrink")

	require.NoError(t, st.UpsertTarget(ctx, store.Target{FanID: 1, Stage: 1, CountLeft: 1, CountTotal: 8, ETA: 2}))
	target, err = st.GetTarget(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), target.CountTotal, "a larger new total is still adopted")
}

// TestGetTargetSynthesizesStage3 covers the sentinel GetTarget returns
// once a target row has been deleted (or never existed).
func TestGetTargetSynthesizesStage3(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)

	target, err := st.GetTarget(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, store.Target{FanID: 42, Stage: 3, CountLeft: 0, CountTotal: 0, ETA: 0}, target)
}

// TestRemoveCollectsForRollsBackPartialProgress is the store-level half
// of S3 (rate-limit rollback): after a partial crawl inserts some edges,
// rolling them back leaves nothing behind for that fan, so a retry
// re-inserts everything as new rather than tripping the done-signal.
func TestRemoveCollectsForRollsBackPartialProgress(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedCollector(t, ctx, st, 1, "bob")
	seedItem(t, ctx, st, 10)
	seedItem(t, ctx, st, 11)

	inserted, err := st.InsertCollects(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = st.InsertCollects(ctx, 1, 11)
	require.NoError(t, err)
	assert.True(t, inserted)

	require.NoError(t, st.RemoveCollectsFor(ctx, 1))

	size, err := st.CollectsSizeForUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, size)

	// Re-crawl: both edges look new again, not a spurious done-signal.
	for _, itemID := range []int64{10, 11} {
		inserted, err := st.InsertCollects(ctx, 1, itemID)
		require.NoError(t, err)
		assert.True(t, inserted, "item %d must look newly inserted after rollback", itemID)
	}
}

// TestDequeueCollectorRemovesOnPeek covers the collector queue's
// peek+delete semantics: a dequeue both returns and removes the row, so
// callers that want the entity to stay in flight must re-enqueue it.
func TestDequeueCollectorRemovesOnPeek(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedCollector(t, ctx, st, 1, "alice")
	require.NoError(t, st.EnqueueCollector(ctx, "alice"))

	username, ok, err := st.DequeueCollector(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", username)

	_, ok, err = st.DequeueCollector(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok, "the row was removed by the first dequeue")
}

// TestDequeueItemDoesNotRemoveOnPeek covers the item queue's weaker
// peek semantics: the row survives until the caller explicitly removes
// it, so a crash mid-fetch leaves the item queued for retry.
func TestDequeueItemDoesNotRemoveOnPeek(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedItem(t, ctx, st, 100)
	require.NoError(t, st.EnqueueItem(ctx, 100))

	itemID, ok, err := st.DequeueItem(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), itemID)

	itemID, ok, err = st.DequeueItem(ctx, false)
	require.NoError(t, err)
	require.True(t, ok, "the row is still queued until explicitly removed")
	assert.Equal(t, int64(100), itemID)

	require.NoError(t, st.RemoveItemFromQueue(ctx, 100))
	_, ok, err = st.DequeueItem(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestDequeueCrawlModeFallsBackToStale covers the --crawl fallback: once
// a queue is empty, a stale (or never-crawled) entity is dequeued instead
// of idling.
func TestDequeueCrawlModeFallsBackToStale(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedCollector(t, ctx, st, 1, "alice")

	_, ok, err := st.DequeueCollector(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok, "crawl mode disabled: nothing queued means nothing to do")

	username, ok, err := st.DequeueCollector(ctx, true)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", username)
}

// TestRelevantUsersWithItemsRequiresTwoSharedItems covers the ≥2-overlap
// filter that feeds both stage2Requirements and the recommender.
func TestRelevantUsersWithItemsRequiresTwoSharedItems(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	seedCollector(t, ctx, st, 1, "u")
	seedCollector(t, ctx, st, 2, "a")
	seedCollector(t, ctx, st, 3, "onehit")
	for _, id := range []int64{1, 2, 3, 4, 5} {
		seedItem(t, ctx, st, id)
	}

	insert := func(fanID, itemID int64) {
		_, err := st.InsertCollects(ctx, fanID, itemID)
		require.NoError(t, err)
	}
	// u: {1,2,3}
	insert(1, 1)
	insert(1, 2)
	insert(1, 3)
	// a: {1,2,4} shares 2 with u
	insert(2, 1)
	insert(2, 2)
	insert(2, 4)
	// onehit: {1,5} shares only 1 with u
	insert(3, 1)
	insert(3, 5)

	relevant, err := st.RelevantUsersWithItems(ctx, "u")
	require.NoError(t, err)
	assert.Contains(t, relevant, int64(1))
	assert.Contains(t, relevant, int64(2))
	assert.NotContains(t, relevant, int64(3), "onehit shares fewer than two items")
}
