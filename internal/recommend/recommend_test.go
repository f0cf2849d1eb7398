// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recommend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/collectify/internal/recommend"
	"github.com/taibuivan/collectify/internal/store"
	"github.com/taibuivan/collectify/internal/store/storetest"
)

func seedFan(t *testing.T, ctx context.Context, st *store.Store, fanID int64, username string, itemIDs ...int64) {
	t.Helper()
	require.NoError(t, st.UpsertCollector(ctx, store.Collector{FanID: fanID, Username: username, Name: username}))
	for _, itemID := range itemIDs {
		_, err := st.UpsertItem(ctx, store.Item{ItemID: itemID, ItemType: store.ItemTypeAlbum, ItemTitle: "item", ItemURL: "https://x.bandcamp.com/album/item"})
		require.NoError(t, err)
		_, err = st.InsertCollects(ctx, fanID, itemID)
		require.NoError(t, err)
	}
}

// TestScoreMatchesWorkedExample is scenario S4: u collects {1,2,3}; a:
// {1,2,4}, b: {1,2,3,5}, c: {4,5}. With similar_boost=2.0, c's overlap of
// zero produces a weight of 0 and is skipped entirely, a scores item 4
// at 4.0, and b scores item 5 at 9.0.
func TestScoreMatchesWorkedExample(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)

	seedFan(t, ctx, st, 1, "u", 1, 2, 3)
	seedFan(t, ctx, st, 2, "a", 1, 2, 4)
	seedFan(t, ctx, st, 3, "b", 1, 2, 3, 5)
	seedFan(t, ctx, st, 4, "c", 4, 5)

	results, err := recommend.Score(ctx, st, "u", 2.0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, int64(5), results[0].ItemID)
	assert.Equal(t, 9.0, *results[0].Score)
	assert.Equal(t, int64(4), results[1].ItemID)
	assert.Equal(t, 4.0, *results[1].Score)
}

// TestScoreExcludesAlreadyCollectedItems covers property 6: an item the
// target already collects never appears in their own recommendations,
// even when a similar fan contributes weight to it.
func TestScoreExcludesAlreadyCollectedItems(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)

	seedFan(t, ctx, st, 1, "u", 1, 2, 3)
	seedFan(t, ctx, st, 2, "a", 1, 2, 3, 4)

	results, err := recommend.Score(ctx, st, "u", 2.0)
	require.NoError(t, err)
	for _, item := range results {
		assert.NotEqual(t, int64(1), item.ItemID)
		assert.NotEqual(t, int64(2), item.ItemID)
		assert.NotEqual(t, int64(3), item.ItemID)
	}
}

// TestScoreSortsDescendingByScore is property 7: results come back sorted
// highest score first.
func TestScoreSortsDescendingByScore(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)

	seedFan(t, ctx, st, 1, "u", 1, 2, 3)
	seedFan(t, ctx, st, 2, "a", 1, 2, 4)
	seedFan(t, ctx, st, 3, "b", 1, 2, 3, 5)

	results, err := recommend.Score(ctx, st, "u", 2.0)
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, *results[i-1].Score, *results[i].Score)
	}
}

// TestScoreWithNoOverlapReturnsNothing covers the case where the target
// shares fewer than two items with every other collector: there is no
// relevant population to draw a recommendation from.
func TestScoreWithNoOverlapReturnsNothing(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)

	seedFan(t, ctx, st, 1, "u", 1, 2, 3)
	seedFan(t, ctx, st, 2, "stranger", 4, 5)

	results, err := recommend.Score(ctx, st, "u", 2.0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
