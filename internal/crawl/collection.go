// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package crawl runs the two perpetual background workers that keep the
store populated: the collection worker (who does a fan collect?) and the
item worker (who else collects this item?). Both share the same shape —
dequeue, fetch, upsert, classify the outcome — paced by a fixed tick so
the remote service is never hammered faster than one request group per
tick per worker.
*/
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

// collectionFetcher is the slice of [bandcamp.Fetcher]'s behavior the
// collection worker needs. Narrowing to an interface lets worker-level
// tests substitute a fake that never touches the network.
type collectionFetcher interface {
	FetchCollectionPage(ctx context.Context, username string) (*bandcamp.CollectionPage, error)
	FetchCollectionItemsPage(ctx context.Context, fanID int64, olderThanToken string) (*bandcamp.CollectionItemsPage, error)
}

// CollectionWorker drains the collector queue, fetching each fan's full
// collection and recording every item they collect.
type CollectionWorker struct {
	store   *store.Store
	fetcher collectionFetcher
	log     *slog.Logger
	crawl   bool
}

// NewCollectionWorker constructs a [CollectionWorker]. crawl enables the
// stale-entity fallback once the queue is empty.
func NewCollectionWorker(st *store.Store, fetcher collectionFetcher, log *slog.Logger, crawl bool) *CollectionWorker {
	return &CollectionWorker{store: st, fetcher: fetcher, log: log.With(slog.String("worker", "collection")), crawl: crawl}
}

// Run ticks every [constants.CollectionWorkerTick] until ctx is canceled,
// processing at most one collector per tick.
func (w *CollectionWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.CollectionWorkerTick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		username, ok, err := w.store.DequeueCollector(ctx, w.crawl)
		if err != nil {
			w.log.Error("dequeue_failed", slog.Any("error", err))
		} else if ok {
			w.processOne(ctx, username)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// processOne runs one fetch-and-store cycle for username and applies the
// outcome policy from the error taxonomy.
func (w *CollectionWorker) processOne(ctx context.Context, username string) {
	err := w.FetchCollection(ctx, username, false)

	switch {
	case err == nil:
		if markErr := w.store.MarkCollectorDone(ctx, username); markErr != nil {
			w.log.Error("mark_done_failed", slog.String("username", username), slog.Any("error", markErr))
		}
		w.log.Info("collector_crawled", slog.String("username", username), slog.String("outcome", "success"))

	case bcerr.Is(err, bcerr.KindNotFound):
		if markErr := w.store.MarkCollectorDone(ctx, username); markErr != nil {
			w.log.Error("mark_done_failed", slog.String("username", username), slog.Any("error", markErr))
		}
		w.log.Info("collector_not_found", slog.String("username", username), slog.String("outcome", "not_found"))

	case bcerr.Is(err, bcerr.KindRateLimit):
		// Only a collector that already exists can have partial edges to
		// roll back; a rate limit on the very first request has nothing
		// to undo.
		if fanID, lookupErr := w.store.FanIDForUsername(ctx, username); lookupErr == nil {
			if rollbackErr := w.store.RemoveCollectsFor(ctx, fanID); rollbackErr != nil {
				w.log.Error("rollback_failed", slog.String("username", username), slog.Any("error", rollbackErr))
			}
		}
		// DequeueCollector already removed this row; put it back since
		// the crawl is being retried, not abandoned.
		if requeueErr := w.store.EnqueueCollector(ctx, username); requeueErr != nil {
			w.log.Error("requeue_failed", slog.String("username", username), slog.Any("error", requeueErr))
		}
		w.log.Warn("rate_limited", slog.String("username", username), slog.Duration("backoff", constants.RateLimitBackoff))
		time.Sleep(constants.RateLimitBackoff)

	default:
		if requeueErr := w.store.EnqueueCollector(ctx, username); requeueErr != nil {
			w.log.Error("requeue_failed", slog.String("username", username), slog.Any("error", requeueErr))
		}
		w.log.Error("collector_crawl_failed", slog.String("username", username), slog.Any("error", err), slog.String("outcome", "retry_later"))
	}
}

// FetchCollection fetches a fan's entire collection, paginating until the
// done signal fires or the remote reports no more pages. When force is
// false and the collector is already fresh, it returns immediately.
func (w *CollectionWorker) FetchCollection(ctx context.Context, username string, force bool) error {
	if !force {
		fresh, err := w.store.CollectorFresh(ctx, username)
		if err != nil {
			return err
		}
		if fresh {
			return nil
		}
	}

	page, err := w.fetcher.FetchCollectionPage(ctx, username)
	if err != nil {
		return err
	}
	if err := w.store.UpsertCollector(ctx, page.Collector); err != nil {
		return err
	}

	fanID := page.Collector.FanID
	done, err := w.storeItems(ctx, fanID, page.Items)
	if err != nil {
		return err
	}

	if done || !page.MoreAvailable {
		return nil
	}

	lastToken := page.LastToken
	for {
		nextPage, err := w.fetcher.FetchCollectionItemsPage(ctx, fanID, lastToken)
		if err != nil {
			return err
		}
		done, err = w.storeItems(ctx, fanID, nextPage.Items)
		if err != nil {
			return err
		}
		for _, item := range nextPage.Items {
			if item.Token != nil {
				lastToken = *item.Token
			}
		}
		if done || !nextPage.MoreAvailable {
			return nil
		}
	}
}

// storeItems upserts every item and records the fan's collects edge,
// returning whether any edge in this page was already present (the
// pagination done-signal).
func (w *CollectionWorker) storeItems(ctx context.Context, fanID int64, items []store.Item) (bool, error) {
	done := false
	for _, item := range items {
		itemID, err := w.store.UpsertItem(ctx, item)
		if err != nil {
			return false, err
		}
		inserted, err := w.store.InsertCollects(ctx, fanID, itemID)
		if err != nil {
			return false, err
		}
		if !inserted {
			done = true
		}
	}
	return done, nil
}
