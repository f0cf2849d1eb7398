// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api — this file implements the three domain routes that expose
the crawler and recommender over HTTP: status (plan/report crawl
progress), user (force a fresh crawl), and recommendations (score the
catalog for a fan).

Architecture:

  - These handlers are thin: all domain logic lives in 'progress',
    'crawl', and 'recommend'. A handler only parses the request,
    delegates, and maps the result to a status code.
  - Response bodies are bare JSON, not the ambient success envelope —
    the external contract specifies exact shapes (a Target object, an
    array of items) with no wrapper.
*/
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/taibuivan/collectify/internal/bcerr"
	"github.com/taibuivan/collectify/internal/platform/apperr"
	"github.com/taibuivan/collectify/internal/platform/constants"
	"github.com/taibuivan/collectify/internal/platform/dberr"
	requestutil "github.com/taibuivan/collectify/internal/platform/request"
	"github.com/taibuivan/collectify/internal/platform/respond"
	"github.com/taibuivan/collectify/internal/progress"
	"github.com/taibuivan/collectify/internal/recommend"
	"github.com/taibuivan/collectify/internal/store"
	"github.com/taibuivan/collectify/pkg/convert"
)

// CollectionFetcher is the slice of [crawl.CollectionWorker]'s behavior
// the HTTP boundary needs: force-fetching one fan's collection inline
// with the request instead of waiting for the background worker's queue.
type CollectionFetcher interface {
	FetchCollection(ctx context.Context, username string, force bool) error
}

// catalogHandler serves the crawler/recommender HTTP boundary.
type catalogHandler struct {
	store      *store.Store
	collection CollectionFetcher
	log        *slog.Logger
}

// NewCatalogHandler constructs the get_status/get_user/get_recommendations
// handler set.
func NewCatalogHandler(st *store.Store, collection CollectionFetcher, log *slog.Logger) *catalogHandler {
	return &catalogHandler{store: st, collection: collection, log: log}
}

// notFoundOrInternal maps a store/bcerr failure to the two HTTP outcomes
// the external interface allows: 404 for "doesn't exist", 500 otherwise.
func notFoundOrInternal(writer http.ResponseWriter, request *http.Request, err error) {
	if errors.Is(err, dberr.ErrNotFound) || bcerr.Is(err, bcerr.KindNotFound) {
		respond.Error(writer, request, apperr.NotFound("User"))
		return
	}
	respond.Error(writer, request, apperr.Internal(err))
}

// GetStatus handles GET /api/get_status?username=.
//
// It resolves the username to a fan_id, plans (or re-reads) the crawl
// work still needed, and returns the resulting progress [store.Target]
// as bare JSON.
func (h *catalogHandler) GetStatus(writer http.ResponseWriter, request *http.Request) {
	username := requestutil.Query(request, "username")
	if username == "" {
		respond.Error(writer, request, apperr.ValidationError("username is required"))
		return
	}

	ctx := request.Context()
	fanID, err := h.store.FanIDForUsername(ctx, username)
	if err != nil {
		notFoundOrInternal(writer, request, err)
		return
	}

	target, err := progress.AddTarget(ctx, h.store, fanID)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	respond.JSON(writer, http.StatusOK, target)
}

// GetUser handles GET /api/get_user?username=.
//
// It force-crawls the fan's collection inline with the request (bypassing
// the freshness check and the background queue), then reports success
// only if the resulting collection is large enough to recommend from.
func (h *catalogHandler) GetUser(writer http.ResponseWriter, request *http.Request) {
	username := requestutil.Query(request, "username")
	if username == "" {
		respond.Error(writer, request, apperr.ValidationError("username is required"))
		return
	}

	ctx := request.Context()
	if err := h.collection.FetchCollection(ctx, username, true); err != nil {
		notFoundOrInternal(writer, request, err)
		return
	}

	size, err := h.store.CollectsSizeForUsername(ctx, username)
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}
	if size <= constants.MinCollectionSizeForUser {
		respond.Error(writer, request, apperr.NotFound("User"))
		return
	}

	respond.JSON(writer, http.StatusOK, struct{}{})
}

// GetRecommendations handles GET /api/get_recommendations?username=&similar_boost=.
//
// similar_boost is optional and clamped to [1.0, 5.0], defaulting to 2.0
// when absent or unparsable.
func (h *catalogHandler) GetRecommendations(writer http.ResponseWriter, request *http.Request) {
	username := requestutil.Query(request, "username")
	if username == "" {
		respond.Error(writer, request, apperr.ValidationError("username is required"))
		return
	}

	raw := requestutil.Query(request, "similar_boost")
	similarBoost := convert.ToFloat64D(raw, constants.DefaultSimilarBoost)
	similarBoost = clampFloat(similarBoost, constants.MinSimilarBoost, constants.MaxSimilarBoost)

	ctx := request.Context()
	items, err := recommend.Score(ctx, h.store, username, similarBoost)
	if err != nil {
		notFoundOrInternal(writer, request, err)
		return
	}

	respond.JSON(writer, http.StatusOK, items)
}

// clampFloat restricts value to [min, max].
func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
