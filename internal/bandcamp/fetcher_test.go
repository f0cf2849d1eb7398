// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package bandcamp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/collectify/internal/bcerr"
)

// TestFetchItemCollectorsPageRejectsNonBandcampHost is scenario S6: a
// non-Bandcamp item URL is rejected before any HTTP call is attempted.
func TestFetchItemCollectorsPageRejectsNonBandcampHost(t *testing.T) {
	fetcher := NewFetcher(&http.Client{})

	_, err := fetcher.FetchItemCollectorsPage(context.Background(), "https://example.com/foo")
	require.Error(t, err)
	assert.True(t, bcerr.Is(err, bcerr.KindNotFound))
}

func TestClassifyStatusMapsKnownCodes(t *testing.T) {
	assert.Nil(t, classifyStatus(http.StatusOK))
	assert.True(t, bcerr.Is(classifyStatus(http.StatusTooManyRequests), bcerr.KindRateLimit))
	assert.True(t, bcerr.Is(classifyStatus(http.StatusNotFound), bcerr.KindNotFound))
	assert.True(t, bcerr.Is(classifyStatus(http.StatusInternalServerError), bcerr.KindNetwork))
}

// TestFetchCollectionPageParsesEmbeddedBlob exercises the GET+blob+decode
// path end to end against a local server standing in for bandcamp.com.
func TestFetchCollectionPageParsesEmbeddedBlob(t *testing.T) {
	body := `<html><body><div id="pagedata" data-blob="{&quot;fan_data&quot;:{&quot;fan_id&quot;:1,&quot;username&quot;:&quot;alice&quot;,&quot;name&quot;:&quot;Alice&quot;},&quot;collection_data&quot;:{&quot;last_token&quot;:&quot;tok0&quot;,&quot;item_count&quot;:5,&quot;batch_size&quot;:2},&quot;item_cache&quot;:{&quot;collection&quot;:{&quot;a1&quot;:{&quot;item_id&quot;:100,&quot;item_type&quot;:&quot;album&quot;,&quot;item_title&quot;:&quot;T&quot;,&quot;item_url&quot;:&quot;https://x.bandcamp.com/album/t&quot;,&quot;band_id&quot;:9,&quot;band_name&quot;:&quot;B&quot;}}}}"></div></body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := NewFetcherWithBaseURL(server.Client(), server.URL)
	page, err := fetcher.FetchCollectionPage(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, int64(1), page.Collector.FanID)
	assert.Equal(t, "alice", page.Collector.Username)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(100), page.Items[0].ItemID)
	assert.True(t, page.MoreAvailable, "item_count (5) exceeds batch_size (2)")
	assert.Equal(t, "tok0", page.LastToken)
}

func TestFetchCollectionPageMissingBlobIsPageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer server.Close()

	fetcher := NewFetcherWithBaseURL(server.Client(), server.URL)
	_, err := fetcher.FetchCollectionPage(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, bcerr.Is(err, bcerr.KindPage))
}
