// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Crawl & Recommender: worker ticks, back-off, freshness window, ETA
    costs, and scoring bounds.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "collectify-api"
	AppVersion = "0.1.0-dev"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Crawl Timing

const (
	// CollectionWorkerTick paces the collector worker's perpetual loop.
	CollectionWorkerTick = 3 * time.Second

	// ItemWorkerTick paces the item worker's perpetual loop.
	ItemWorkerTick = 3 * time.Second

	// ProgressManagerTick paces the background refresh of all tracked targets.
	ProgressManagerTick = 1 * time.Second

	// RateLimitBackoff is how long a worker sleeps after the remote returns 429.
	RateLimitBackoff = 10 * time.Second

	// RemoteRequestBatchSize is the page size used on every paginated remote request.
	RemoteRequestBatchSize = 500
)

// # Freshness & Staleness

const (
	// FreshnessWindow is how long a collector/item row is considered up to date
	// before it becomes eligible for re-crawling.
	FreshnessWindow = 30 * 24 * time.Hour
)

// # Progress Stages

const (
	// Stage1PerItem is the per-item cost used to estimate stage 1 ETA.
	Stage1PerItem = 2

	// Stage2PerItem is the per-item cost used to estimate stage 2 ETA.
	Stage2PerItem = 3
)

// # Recommender

const (
	// RecommendationLimit caps the number of scored items returned.
	RecommendationLimit = 50

	// MinSimilarBoost is the lower clamp bound for the similar_boost parameter.
	MinSimilarBoost = 1.0

	// MaxSimilarBoost is the upper clamp bound for the similar_boost parameter.
	MaxSimilarBoost = 5.0

	// DefaultSimilarBoost is used when the caller omits similar_boost.
	DefaultSimilarBoost = 2.0

	// MinCollectionSizeForUser is the collection size get_user must exceed
	// to report success.
	MinCollectionSizeForUser = 2
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)
