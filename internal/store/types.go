// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package store is the persistence layer for the crawler and recommender.

It owns the single SQLite file backing every collector, item, edge, queue,
and progress target in the system, and exposes the narrow set of operations
the crawl workers, progress manager, and HTTP handlers need. Callers never
see SQL; they see domain verbs (UpsertCollector, DequeueItem, GetTarget...).

Architecture:

  - Connection discipline: every exported method leases a connection from
    the pool for the duration of one statement (or one transaction) and
    releases it before returning. No method holds a connection across a
    network call — callers that need to fetch remote data between two
    store operations must call the store twice.
  - Idempotency: edge inserts (Collects, CollectedBy) report whether the
    row was newly created so callers can detect "no new data" and stop
    paginating.
  - Freshness: a row is fresh when it was last updated within the last
    30 days; staleness drives both queue fallback and progress targets.
*/
package store

// ItemType enumerates the catalog entity kinds a collected item can be.
type ItemType string

// The five item kinds the remote service reports.
const (
	ItemTypeAlbum        ItemType = "album"
	ItemTypeTrack        ItemType = "track"
	ItemTypePackage      ItemType = "package"
	ItemTypeLepledge     ItemType = "lepledge"
	ItemTypeSubscription ItemType = "subscription"
)

// Collector is a Bandcamp fan account that owns a collection.
type Collector struct {
	FanID    int64   `json:"fan_id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Token    *string `json:"token,omitempty"`
}

// Item is a catalog entity (album, track, package...) that can be collected.
//
// AlbumID and AlbumTitle are populated only while decoding a remote
// response; the store never persists them, since an item's identity
// already folds album tracks up to their containing album before storage.
type Item struct {
	ItemID             int64    `json:"item_id"`
	ItemType           ItemType `json:"item_type"`
	ItemTitle          string   `json:"item_title"`
	ItemURL            string   `json:"item_url"`
	AlbumID            *int64   `json:"album_id,omitempty"`
	AlbumTitle         *string  `json:"album_title,omitempty"`
	BandID             int64    `json:"band_id"`
	BandName           string   `json:"band_name"`
	Token              *string  `json:"token,omitempty"`
	AlsoCollectedCount int64    `json:"also_collected_count"`

	// Score is set only on items returned by the recommender; omitted
	// from every other response.
	Score *float64 `json:"score,omitempty"`
}

// ResolvedItemID returns the identity this item should be stored under:
// tracks fold up to their containing album, everything else keys on
// its own item_id.
func (item *Item) ResolvedItemID() int64 {
	if item.AlbumID != nil {
		return *item.AlbumID
	}
	return item.ItemID
}

// ResolvedTitle returns the title this item should be stored under,
// preferring the containing album's title when present.
func (item *Item) ResolvedTitle() string {
	if item.AlbumTitle != nil {
		return *item.AlbumTitle
	}
	return item.ItemTitle
}

// Target tracks crawl progress toward being able to recommend for one fan.
//
// Stage 3 is a sentinel meaning "no target exists" (fully satisfied or
// never requested); it is never persisted.
type Target struct {
	FanID      int64 `json:"fan_id"`
	Stage      int64 `json:"stage"`
	CountLeft  int64 `json:"count_left"`
	CountTotal int64 `json:"count_total"`
	ETA        int64 `json:"eta"`
}

// doneStage3 is returned by GetTarget when no row exists for a fan.
func doneStage3(fanID int64) Target {
	return Target{FanID: fanID, Stage: 3, CountLeft: 0, CountTotal: 0, ETA: 0}
}
