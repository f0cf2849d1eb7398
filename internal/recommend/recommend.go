// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package recommend scores a fan's catalog recommendations by collaborative
filtering over the bipartite collects graph already materialized in the
store: two fans are "similar" in proportion to how many items they both
collect, and a similar fan's other items are surfaced weighted by that
similarity.

This package never touches the network; it is pure read-then-compute
over rows the crawl workers have already landed.
*/
package recommend

import (
	"context"
	"math"
	"sort"

	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/platform/dberr"
	"github.com/taibuivan/collectify/internal/store"
)

// Score ranks candidate items for username by collaborative-filtering
// overlap, returning at most [constants.RecommendationLimit] items sorted
// by descending score. similarBoost amplifies the weight given to users
// who overlap more heavily with the target; callers are expected to have
// already clamped it to [1.0, 5.0].
func Score(ctx context.Context, st *store.Store, username string, similarBoost float64) ([]store.Item, error) {
	fanID, err := st.FanIDForUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	usersToItems, err := st.RelevantUsersWithItems(ctx, username)
	if err != nil {
		return nil, err
	}

	forbidden, ok := usersToItems[fanID]
	if !ok {
		// The target collects nothing that overlaps with anyone, including
		// themself — there is nothing to recommend.
		return []store.Item{}, nil
	}

	scores := make(map[int64]float64)
	for otherFanID, items := range usersToItems {
		if otherFanID == fanID {
			continue
		}
		overlap := intersectionSize(items, forbidden)
		weight := math.Pow(float64(overlap), similarBoost)
		if weight <= 1.0 {
			continue
		}
		for itemID := range items {
			if _, excluded := forbidden[itemID]; excluded {
				continue
			}
			scores[itemID] += weight
		}
	}

	type scoredItem struct {
		itemID int64
		score  float64
	}
	ranked := make([]scoredItem, 0, len(scores))
	for itemID, score := range scores {
		ranked = append(ranked, scoredItem{itemID: itemID, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > constants.RecommendationLimit {
		ranked = ranked[:constants.RecommendationLimit]
	}

	results := make([]store.Item, 0, len(ranked))
	for _, entry := range ranked {
		item, err := st.GetItem(ctx, entry.itemID)
		if err != nil {
			return nil, dberr.Wrap(err, "load_recommended_item")
		}
		score := entry.score
		item.Score = &score
		results = append(results, item)
	}
	return results, nil
}

// intersectionSize counts how many keys a and b have in common.
func intersectionSize(a, b map[int64]struct{}) int {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	count := 0
	for k := range small {
		if _, ok := large[k]; ok {
			count++
		}
	}
	return count
}
