// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package progress tracks how far a recommendation request is from being
answerable. It plays two roles against the same store:

  - AddTarget (Role 1) is called synchronously from the HTTP boundary to
    plan the crawl work a fan_id still needs and report current progress.
  - Manager.Run (Role 2) is a background tick that refreshes every
    tracked target, advancing it through its stages as crawl work lands.

A target moves through three stages: 1 (crawling the fan's own items),
2 (crawling the collectors of those items), 3 (satisfied — no row is
persisted for stage 3, [store.Store.GetTarget] synthesizes it).
*/
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/store"
)

// AddTarget plans (or re-reads) the crawl work needed before the fan's
// recommendations are meaningful, enqueueing any newly discovered work,
// and returns the resulting [store.Target].
//
// Stage 1 must be fully satisfied before stage 2 is ever considered: a
// fan whose own items are not yet crawled cannot have a meaningful
// overlap computed against other collectors.
func AddTarget(ctx context.Context, st *store.Store, fanID int64) (store.Target, error) {
	if err := handleStage1(ctx, st, fanID, nil); err != nil {
		return store.Target{}, err
	}
	return st.GetTarget(ctx, fanID)
}

// UpdateTarget re-evaluates a tracked target's current stage, advancing it
// when its requirement set has emptied out. Re-enqueueing only happens on
// a stage transition: queue rows from the first pass stay queued between
// ticks, a plain refresh must not duplicate them.
func UpdateTarget(ctx context.Context, st *store.Store, fanID int64) error {
	target, err := st.GetTarget(ctx, fanID)
	if err != nil {
		return err
	}
	switch target.Stage {
	case 1:
		return handleStage1(ctx, st, fanID, &target.CountTotal)
	case 2:
		return handleStage2(ctx, st, fanID, &target.CountTotal)
	default:
		return nil
	}
}

// handleStage1 computes the fan's own items still needing a crawl. A nil
// oldCountTotal means this is the target's first evaluation (transition
// into stage 1), so the requirement set is also enqueued; a non-nil value
// means this is a refresh and nothing new is enqueued.
func handleStage1(ctx context.Context, st *store.Store, fanID int64, oldCountTotal *int64) error {
	requirements, err := st.Stage1Requirements(ctx, fanID)
	if err != nil {
		return err
	}
	if len(requirements) == 0 {
		return handleStage2(ctx, st, fanID, nil)
	}

	countTotal := int64(len(requirements))
	if oldCountTotal != nil && *oldCountTotal > countTotal {
		countTotal = *oldCountTotal
	}
	if err := st.UpsertTarget(ctx, store.Target{
		FanID:      fanID,
		Stage:      1,
		CountLeft:  int64(len(requirements)),
		CountTotal: countTotal,
		ETA:        int64(len(requirements)) * constants.Stage1PerItem,
	}); err != nil {
		return err
	}

	if oldCountTotal == nil {
		for _, itemID := range requirements {
			if err := st.EnqueueItem(ctx, itemID); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleStage2 is the stage-2 counterpart of handleStage1, computing which
// other collectors still need crawling before overlap scores are complete.
func handleStage2(ctx context.Context, st *store.Store, fanID int64, oldCountTotal *int64) error {
	requirements, err := st.Stage2Requirements(ctx, fanID)
	if err != nil {
		return err
	}
	if len(requirements) == 0 {
		return st.DeleteTarget(ctx, fanID)
	}

	countTotal := int64(len(requirements))
	if oldCountTotal != nil && *oldCountTotal > countTotal {
		countTotal = *oldCountTotal
	}
	if err := st.UpsertTarget(ctx, store.Target{
		FanID:      fanID,
		Stage:      2,
		CountLeft:  int64(len(requirements)),
		CountTotal: countTotal,
		ETA:        int64(len(requirements)) * constants.Stage2PerItem,
	}); err != nil {
		return err
	}

	if oldCountTotal == nil {
		for _, peerFanID := range requirements {
			if err := st.EnqueueCollectorByFanID(ctx, peerFanID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Manager runs Role 2, the background refresh tick.
type Manager struct {
	store *store.Store
	log   *slog.Logger
}

// NewManager constructs a [Manager].
func NewManager(st *store.Store, log *slog.Logger) *Manager {
	return &Manager{store: st, log: log.With(slog.String("worker", "progress"))}
}

// Run ticks every [constants.ProgressManagerTick] until ctx is canceled,
// refreshing every tracked target once per tick, in sequence.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.ProgressManagerTick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		fanIDs, err := m.store.AllTargetFanIDs(ctx)
		if err != nil {
			m.log.Error("list_targets_failed", slog.Any("error", err))
		} else {
			for _, fanID := range fanIDs {
				if err := UpdateTarget(ctx, m.store, fanID); err != nil {
					m.log.Error("update_target_failed", slog.Int64("fan_id", fanID), slog.Any("error", err))
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
