// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package crawl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/collectify/internal/bandcamp"
	"github.com/taibuivan/collectify/internal/bcerr"
	"github.com/taibuivan/collectify/internal/store"
	"github.com/taibuivan/collectify/internal/store/storetest"
)

// fakeItemFetcher scripts the pages an itemFetcher would return.
type fakeItemFetcher struct {
	itemPage    *bandcamp.ItemCollectorsPage
	itemPageErr error
	cursor      *bandcamp.Cursor
	cursorErr   error
	nextPages   []*bandcamp.CollectorsPage
	nextErrs    []error
	calls       int
}

func (f *fakeItemFetcher) FetchItemCollectorsPage(ctx context.Context, itemURL string) (*bandcamp.ItemCollectorsPage, error) {
	return f.itemPage, f.itemPageErr
}

func (f *fakeItemFetcher) ResolveCursor(page *bandcamp.ItemCollectorsPage) (*bandcamp.Cursor, error) {
	return f.cursor, f.cursorErr
}

func (f *fakeItemFetcher) FetchCollectorsPage(ctx context.Context, cursor bandcamp.Cursor) (*bandcamp.CollectorsPage, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.nextErrs) && f.nextErrs[idx] != nil {
		return nil, f.nextErrs[idx]
	}
	return f.nextPages[idx], nil
}

func collector(fanID int64, username string) store.Collector {
	return store.Collector{FanID: fanID, Username: username}
}

// TestFetchCollectorsStopsOnDoneSignal is the item-worker half of
// property 5: pagination stops at the first page reporting an edge
// already known.
func TestFetchCollectorsStopsOnDoneSignal(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	_, err := st.UpsertItem(ctx, store.Item{ItemID: 100, ItemType: store.ItemTypeAlbum, ItemTitle: "t", ItemURL: "https://band.bandcamp.com/album/t"})
	require.NoError(t, err)

	fetcher := &fakeItemFetcher{
		itemPage: &bandcamp.ItemCollectorsPage{
			Collectors:    []store.Collector{collector(1, "alice")},
			MoreAvailable: true,
		},
		cursor: &bandcamp.Cursor{Token: "tok0"},
		nextPages: []*bandcamp.CollectorsPage{
			{Collectors: []store.Collector{collector(1, "alice")}, MoreAvailable: true},
		},
	}
	w := NewItemWorker(st, fetcher, discardLogger(), false)

	require.NoError(t, w.FetchCollectors(ctx, 100))
	assert.Equal(t, 1, fetcher.calls, "pagination must stop at the first page reporting a known edge")
}

// TestFetchCollectorsSkipsCursorResolutionWhenFirstPageIsDone verifies that
// a first page whose collectors are already fully known never resolves a
// cursor, even though the remote claims more pages exist: a missing
// bc-page-properties meta tag on such a page must never surface as an
// error, since the worker was never going to follow it anyway.
func TestFetchCollectorsSkipsCursorResolutionWhenFirstPageIsDone(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	_, err := st.UpsertItem(ctx, store.Item{ItemID: 100, ItemType: store.ItemTypeAlbum, ItemTitle: "t", ItemURL: "https://band.bandcamp.com/album/t"})
	require.NoError(t, err)
	require.NoError(t, st.UpsertCollector(ctx, collector(1, "alice")))
	_, err = st.InsertCollectedBy(ctx, 100, 1)
	require.NoError(t, err)

	fetcher := &fakeItemFetcher{
		itemPage: &bandcamp.ItemCollectorsPage{
			Collectors:    []store.Collector{collector(1, "alice")},
			MoreAvailable: true,
		},
		cursorErr: bcerr.New(bcerr.KindPage, nil),
	}
	w := NewItemWorker(st, fetcher, discardLogger(), false)

	require.NoError(t, w.FetchCollectors(ctx, 100), "a done first page must never resolve its cursor")
}

// TestFetchCollectorsSkipsWhenFresh mirrors the collection worker's
// fast path for an already-fresh item.
func TestFetchCollectorsSkipsWhenFresh(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	_, err := st.UpsertItem(ctx, store.Item{ItemID: 100, ItemType: store.ItemTypeAlbum, ItemTitle: "t", ItemURL: "https://band.bandcamp.com/album/t"})
	require.NoError(t, err)
	require.NoError(t, st.MarkItemDone(ctx, 100))

	fetcher := &fakeItemFetcher{}
	w := NewItemWorker(st, fetcher, discardLogger(), false)

	require.NoError(t, w.FetchCollectors(ctx, 100))
	assert.Nil(t, fetcher.itemPage)
}

// TestProcessOneUnreachableURLMarksDoneWithoutFetching is scenario S6:
// an item whose URL is not a Bandcamp subdomain is marked done and
// dequeued without the worker ever attempting a network call.
func TestProcessOneUnreachableURLMarksDoneWithoutFetching(t *testing.T) {
	ctx := context.Background()
	st, _ := storetest.New(t)
	_, err := st.UpsertItem(ctx, store.Item{ItemID: 100, ItemType: store.ItemTypeAlbum, ItemTitle: "t", ItemURL: "https://example.com/foo"})
	require.NoError(t, err)
	require.NoError(t, st.EnqueueItem(ctx, 100))

	fetcher := &fakeItemFetcher{itemPageErr: bcerr.New(bcerr.KindNotFound, nil)}
	w := NewItemWorker(st, fetcher, discardLogger(), false)

	itemID, ok, err := st.DequeueItem(ctx, false)
	require.NoError(t, err)
	require.True(t, ok)
	w.processOne(ctx, itemID)

	fresh, err := st.ItemFresh(ctx, 100)
	require.NoError(t, err)
	assert.True(t, fresh, "item must be marked done")

	_, ok, err = st.DequeueItem(ctx, false)
	require.NoError(t, err)
	assert.False(t, ok, "item must be removed from the queue")
}
