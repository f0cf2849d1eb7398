// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package bandcamp

import "github.com/taibuivan/collectify/internal/store"

// rawItem mirrors the JSON shape Bandcamp's fan-collection and
// track-collectors endpoints emit for a single catalog entry.
type rawItem struct {
	ItemID             int64   `json:"item_id"`
	ItemType           string  `json:"item_type"`
	ItemTitle          string  `json:"item_title"`
	ItemURL            string  `json:"item_url"`
	AlbumID            *int64  `json:"album_id"`
	AlbumTitle         *string `json:"album_title"`
	BandID             int64   `json:"band_id"`
	BandName           string  `json:"band_name"`
	Token              *string `json:"token"`
	AlsoCollectedCount int64   `json:"also_collected_count"`
}

func (r rawItem) toStoreItem() store.Item {
	return store.Item{
		ItemID:             r.ItemID,
		ItemType:           store.ItemType(r.ItemType),
		ItemTitle:          r.ItemTitle,
		ItemURL:            r.ItemURL,
		AlbumID:            r.AlbumID,
		AlbumTitle:         r.AlbumTitle,
		BandID:             r.BandID,
		BandName:           r.BandName,
		Token:              r.Token,
		AlsoCollectedCount: r.AlsoCollectedCount,
	}
}

// rawCollector mirrors the JSON shape of a fan entry, whether it is the
// page owner ("fan_data") or a thumbnail in a "thumbs"/"results" list.
type rawCollector struct {
	FanID    int64   `json:"fan_id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Token    *string `json:"token"`
}

func (r rawCollector) toStoreCollector() store.Collector {
	return store.Collector{FanID: r.FanID, Username: r.Username, Name: r.Name, Token: r.Token}
}

// pageData is the JSON blob embedded in a fan's bandcamp.com/<username>
// page under the element with id="pagedata".
type pageData struct {
	FanData struct {
		rawCollector
	} `json:"fan_data"`
	CollectionData struct {
		LastToken string `json:"last_token"`
		ItemCount int64  `json:"item_count"`
		BatchSize int64  `json:"batch_size"`
	} `json:"collection_data"`
	ItemCache struct {
		Collection map[string]rawItem `json:"collection"`
	} `json:"item_cache"`
}

// collectionItemsResponse is the JSON body of a POST to
// api/fancollection/1/collection_items.
type collectionItemsResponse struct {
	Items         []rawItem `json:"items"`
	MoreAvailable bool      `json:"more_available"`
}

// collectorsData is the JSON blob embedded in an item's page under the
// element with id="collectors-data".
type collectorsData struct {
	Thumbs             []rawCollector `json:"thumbs"`
	MoreThumbsAvailable bool          `json:"more_thumbs_available"`
}

// albumProperties is the JSON blob embedded in the
// <meta name="bc-page-properties"> tag.
type albumProperties struct {
	ItemType string `json:"item_type"`
	ItemID   int64  `json:"item_id"`
}

// collectorsResponse is the JSON body of a POST to
// api/tralbumcollectors/2/thumbs.
type collectorsResponse struct {
	Results       []rawCollector `json:"results"`
	MoreAvailable bool           `json:"more_available"`
}

// CollectionPage is the result of fetching a fan's initial collection page.
type CollectionPage struct {
	Collector     store.Collector
	Items         []store.Item
	MoreAvailable bool
	LastToken     string
}

// CollectionItemsPage is the result of fetching one page of a fan's
// paginated collection items.
type CollectionItemsPage struct {
	Items         []store.Item
	MoreAvailable bool
}

// Cursor threads the state needed to request the next page of an item's
// collectors once the initial page indicates more are available.
type Cursor struct {
	Token     string
	AlbumID   int64
	AlbumType string
}

// ItemCollectorsPage is the result of fetching an item's initial
// collectors page. MoreAvailable only reports whether the remote claims a
// further page exists; the cursor to fetch it is resolved lazily by
// [Fetcher.ResolveCursor], since that requires a meta tag this page may
// not carry and callers should only pay for it once they know a further
// request will actually happen.
type ItemCollectorsPage struct {
	Collectors    []store.Collector
	MoreAvailable bool

	token string
	body  []byte
}

// CollectorsPage is the result of fetching one page of an item's
// paginated collectors.
type CollectorsPage struct {
	Collectors []store.Collector
	Token      string
	MoreAvailable bool
}
