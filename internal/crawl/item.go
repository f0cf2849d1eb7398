// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package crawl

import (
	"context"
	"log/slog"
	"time"

	"github.com/taibuivan/collectify/internal/bandcamp"
	"github.com/taibuivan/collectify/internal/bcerr"
	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/store"
)

// itemFetcher is the slice of [bandcamp.Fetcher]'s behavior the item
// worker needs. Narrowing to an interface lets worker-level tests
// substitute a fake that never touches the network.
type itemFetcher interface {
	FetchItemCollectorsPage(ctx context.Context, itemURL string) (*bandcamp.ItemCollectorsPage, error)
	FetchCollectorsPage(ctx context.Context, cursor bandcamp.Cursor) (*bandcamp.CollectorsPage, error)
	ResolveCursor(page *bandcamp.ItemCollectorsPage) (*bandcamp.Cursor, error)
}

// ItemWorker drains the collected-by queue, fetching every collector of
// an item and recording the reverse edge.
type ItemWorker struct {
	store   *store.Store
	fetcher itemFetcher
	log     *slog.Logger
	crawl   bool
}

// NewItemWorker constructs an [ItemWorker]. crawl enables the stale-entity
// fallback once the queue is empty.
func NewItemWorker(st *store.Store, fetcher itemFetcher, log *slog.Logger, crawl bool) *ItemWorker {
	return &ItemWorker{store: st, fetcher: fetcher, log: log.With(slog.String("worker", "item")), crawl: crawl}
}

// Run ticks every [constants.ItemWorkerTick] until ctx is canceled,
// processing at most one item per tick.
func (w *ItemWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.ItemWorkerTick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		itemID, ok, err := w.store.DequeueItem(ctx, w.crawl)
		if err != nil {
			w.log.Error("dequeue_failed", slog.Any("error", err))
		} else if ok {
			w.processOne(ctx, itemID)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// processOne runs one fetch-and-store cycle for itemID and applies the
// outcome policy from the error taxonomy.
func (w *ItemWorker) processOne(ctx context.Context, itemID int64) {
	err := w.FetchCollectors(ctx, itemID)

	switch {
	case err == nil:
		if markErr := w.store.MarkItemDone(ctx, itemID); markErr != nil {
			w.log.Error("mark_done_failed", slog.Int64("item_id", itemID), slog.Any("error", markErr))
		}
		if removeErr := w.store.RemoveItemFromQueue(ctx, itemID); removeErr != nil {
			w.log.Error("remove_from_queue_failed", slog.Int64("item_id", itemID), slog.Any("error", removeErr))
		}
		w.log.Info("item_crawled", slog.Int64("item_id", itemID), slog.String("outcome", "success"))

	case bcerr.Is(err, bcerr.KindNotFound):
		if markErr := w.store.MarkItemDone(ctx, itemID); markErr != nil {
			w.log.Error("mark_done_failed", slog.Int64("item_id", itemID), slog.Any("error", markErr))
		}
		if removeErr := w.store.RemoveItemFromQueue(ctx, itemID); removeErr != nil {
			w.log.Error("remove_from_queue_failed", slog.Int64("item_id", itemID), slog.Any("error", removeErr))
		}
		w.log.Info("item_not_found", slog.Int64("item_id", itemID), slog.String("outcome", "not_found"))

	case bcerr.Is(err, bcerr.KindRateLimit):
		if rollbackErr := w.store.RemoveCollectedByFor(ctx, itemID); rollbackErr != nil {
			w.log.Error("rollback_failed", slog.Int64("item_id", itemID), slog.Any("error", rollbackErr))
		}
		w.log.Warn("rate_limited", slog.Int64("item_id", itemID), slog.Duration("backoff", constants.RateLimitBackoff))
		time.Sleep(constants.RateLimitBackoff)

	default:
		w.log.Error("item_crawl_failed", slog.Int64("item_id", itemID), slog.Any("error", err), slog.String("outcome", "retry_later"))
	}
}

// FetchCollectors fetches every collector of an item, paginating until the
// done signal fires or the remote reports no more pages. A fresh item is
// skipped entirely (the item worker never force-crawls).
func (w *ItemWorker) FetchCollectors(ctx context.Context, itemID int64) error {
	fresh, err := w.store.ItemFresh(ctx, itemID)
	if err != nil {
		return err
	}
	if fresh {
		return nil
	}

	item, err := w.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}

	page, err := w.fetcher.FetchItemCollectorsPage(ctx, item.ItemURL)
	if err != nil {
		return err
	}

	done, err := w.storeCollectors(ctx, itemID, page.Collectors)
	if err != nil {
		return err
	}
	if done || !page.MoreAvailable {
		return nil
	}

	resolved, err := w.fetcher.ResolveCursor(page)
	if err != nil {
		return err
	}

	cursor := *resolved
	for {
		nextPage, err := w.fetcher.FetchCollectorsPage(ctx, cursor)
		if err != nil {
			return err
		}
		done, err = w.storeCollectors(ctx, itemID, nextPage.Collectors)
		if err != nil {
			return err
		}
		cursor.Token = nextPage.Token
		if done || !nextPage.MoreAvailable {
			return nil
		}
	}
}

// storeCollectors upserts every collector and records the item's
// collected-by edge, returning whether any edge in this page was already
// present (the pagination done-signal).
func (w *ItemWorker) storeCollectors(ctx context.Context, itemID int64, collectors []store.Collector) (bool, error) {
	done := false
	for _, collector := range collectors {
		if err := w.store.UpsertCollector(ctx, collector); err != nil {
			return false, err
		}
		inserted, err := w.store.InsertCollectedBy(ctx, itemID, collector.FanID)
		if err != nil {
			return false, err
		}
		if !inserted {
			done = true
		}
	}
	return done, nil
}
