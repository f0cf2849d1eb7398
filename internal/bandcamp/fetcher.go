// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package bandcamp talks to the public bandcamp.com surface the crawler
depends on: a fan's collection page, the paginated collection-items API,
an item's page, and the paginated track-collectors API.

It holds no state of its own — every method takes what it needs and
returns a plain result or a [bcerr.Error] classifying the failure so the
collection and item workers can decide whether to retry, back off, or
give up on an entity.
*/
package bandcamp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/taibuivan/collectify/internal/bcerr"
	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/store"
	"github.com/taibuivan/collectify/pkg/slice"
)

const defaultBaseURL = "https://bandcamp.com"

// bandcampHostPattern matches an item_url belonging to a Bandcamp artist
// subdomain, as opposed to an external/custom domain the crawler cannot
// scrape using the collectors-data attachment point.
var bandcampHostPattern = regexp.MustCompile(`^https?://[a-z0-9-]+\.bandcamp\.com`)

// Fetcher performs the four HTTP request shapes the crawler needs.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher wraps an [http.Client]. Callers own the client's lifecycle
// and timeout configuration.
func NewFetcher(client *http.Client) *Fetcher {
	return &Fetcher{client: client, baseURL: defaultBaseURL}
}

// NewFetcherWithBaseURL is [NewFetcher] for tests that stand in a local
// server for bandcamp.com.
func NewFetcherWithBaseURL(client *http.Client, baseURL string) *Fetcher {
	return &Fetcher{client: client, baseURL: baseURL}
}

// classifyStatus maps an HTTP response status to the crawl-error taxonomy.
func classifyStatus(statusCode int) error {
	switch statusCode {
	case http.StatusTooManyRequests:
		return bcerr.New(bcerr.KindRateLimit, nil)
	case http.StatusNotFound:
		return bcerr.New(bcerr.KindNotFound, nil)
	default:
		if statusCode >= 200 && statusCode < 300 {
			return nil
		}
		return bcerr.New(bcerr.KindNetwork, fmt.Errorf("unexpected status %d", statusCode))
	}
}

// doGet issues a GET and returns the body bytes, classifying non-2xx
// statuses per [classifyStatus].
func (f *Fetcher) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	return body, nil
}

// doPostJSON issues a POST with a JSON body and returns the response bytes.
func (f *Fetcher) doPostJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, bcerr.New(bcerr.KindNetwork, err)
	}
	return body, nil
}

// # Collection Endpoints (Collection Worker)

// FetchCollectionPage fetches https://bandcamp.com/<username> and decodes
// the embedded "pagedata" blob into the fan's collector record, their
// initial page of collected items, and the pagination cursor needed for
// subsequent pages.
func (f *Fetcher) FetchCollectionPage(ctx context.Context, username string) (*CollectionPage, error) {
	body, err := f.doGet(ctx, f.baseURL+"/"+username)
	if err != nil {
		return nil, err
	}

	_, blob, found := findBlob(bytes.NewReader(body), "pagedata")
	if !found {
		return nil, bcerr.New(bcerr.KindPage, fmt.Errorf("missing pagedata element"))
	}

	var decoded pageData
	if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}

	items := make([]store.Item, 0, len(decoded.ItemCache.Collection))
	for _, raw := range decoded.ItemCache.Collection {
		items = append(items, raw.toStoreItem())
	}

	return &CollectionPage{
		Collector:     decoded.FanData.toStoreCollector(),
		Items:         items,
		MoreAvailable: decoded.CollectionData.ItemCount > decoded.CollectionData.BatchSize,
		LastToken:     decoded.CollectionData.LastToken,
	}, nil
}

// FetchCollectionItemsPage fetches one page of a fan's paginated
// collection via POST api/fancollection/1/collection_items.
func (f *Fetcher) FetchCollectionItemsPage(ctx context.Context, fanID int64, olderThanToken string) (*CollectionItemsPage, error) {
	body, err := f.doPostJSON(ctx, f.baseURL+"/api/fancollection/1/collection_items", map[string]any{
		"count":            constants.RemoteRequestBatchSize,
		"fan_id":           fanID,
		"older_than_token": olderThanToken,
	})
	if err != nil {
		return nil, err
	}

	var decoded collectionItemsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}

	items := slice.Map(decoded.Items, rawItem.toStoreItem)
	return &CollectionItemsPage{Items: items, MoreAvailable: decoded.MoreAvailable}, nil
}

// # Collectors Endpoints (Item Worker)

// FetchItemCollectorsPage fetches an item's page and decodes the embedded
// "collectors-data" blob into its initial page of collectors. It returns
// [bcerr.KindNotFound] for non-Bandcamp-hosted URLs and for subscription
// pages (deliberately not crawled), and [bcerr.KindPage] when neither
// attachment point is present at all.
func (f *Fetcher) FetchItemCollectorsPage(ctx context.Context, itemURL string) (*ItemCollectorsPage, error) {
	if !bandcampHostPattern.MatchString(itemURL) {
		return nil, bcerr.New(bcerr.KindNotFound, fmt.Errorf("not a bandcamp subdomain"))
	}

	body, err := f.doGet(ctx, itemURL)
	if err != nil {
		return nil, err
	}

	_, blob, found := findBlob(bytes.NewReader(body), "collectors-data")
	if !found {
		if hasElementWithID(bytes.NewReader(body), "subscription-collectors-data") {
			return nil, bcerr.New(bcerr.KindNotFound, fmt.Errorf("subscription item, not crawled"))
		}
		return nil, bcerr.New(bcerr.KindPage, fmt.Errorf("missing collectors-data element"))
	}

	var decoded collectorsData
	if err := json.Unmarshal([]byte(blob), &decoded); err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}

	collectors := make([]store.Collector, 0, len(decoded.Thumbs))
	token := ""
	for _, raw := range decoded.Thumbs {
		collectors = append(collectors, raw.toStoreCollector())
		if raw.Token != nil {
			token = *raw.Token
		}
	}

	return &ItemCollectorsPage{
		Collectors:    collectors,
		MoreAvailable: decoded.MoreThumbsAvailable,
		token:         token,
		body:          body,
	}, nil
}

// ResolveCursor parses the bc-page-properties meta tag to build the cursor
// for an item's next collectors page. Callers should only invoke this
// after confirming a further page will actually be requested: a page whose
// collectors turn out to be fully known already never needs its cursor,
// and some such pages lack the meta tag entirely.
func (f *Fetcher) ResolveCursor(page *ItemCollectorsPage) (*Cursor, error) {
	metaContent, found := findMetaContent(bytes.NewReader(page.body), "bc-page-properties")
	if !found {
		return nil, bcerr.New(bcerr.KindPage, fmt.Errorf("missing bc-page-properties meta tag"))
	}
	var properties albumProperties
	if err := json.Unmarshal([]byte(metaContent), &properties); err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}
	return &Cursor{Token: page.token, AlbumID: properties.ItemID, AlbumType: properties.ItemType}, nil
}

// FetchCollectorsPage fetches one page of an item's paginated collectors
// via POST api/tralbumcollectors/2/thumbs.
func (f *Fetcher) FetchCollectorsPage(ctx context.Context, cursor Cursor) (*CollectorsPage, error) {
	body, err := f.doPostJSON(ctx, f.baseURL+"/api/tralbumcollectors/2/thumbs", map[string]any{
		"count":        constants.RemoteRequestBatchSize,
		"token":        cursor.Token,
		"tralbum_id":   cursor.AlbumID,
		"tralbum_type": cursor.AlbumType,
	})
	if err != nil {
		return nil, err
	}

	var decoded collectorsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, bcerr.New(bcerr.KindSerialization, err)
	}

	collectors := make([]store.Collector, 0, len(decoded.Results))
	token := cursor.Token
	for _, raw := range decoded.Results {
		collectors = append(collectors, raw.toStoreCollector())
		if raw.Token != nil {
			token = *raw.Token
		}
	}
	return &CollectorsPage{Collectors: collectors, Token: token, MoreAvailable: decoded.MoreAvailable}, nil
}
