// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codevault-ai/codevault/services/vault/graph"
	"github.com/codevault-ai/codevault/services/vault/lock"
	syncer "github.com/codevault-ai/codevault/services/vault/sync"
	"github.com/codevault-ai/codevault/services/vault/vector"
)

// SyncService is the slice of the sync orchestrator the API drives.
type SyncService interface {
	DeltaSync(ctx context.Context, opts syncer.Options) (*syncer.DeltaSyncResult, error)
	DeltaStats(ctx context.Context) (*syncer.DeltaStats, error)
	LoadSyncState() (*syncer.SyncState, error)
	SyncReportSnapshot() (*syncer.SyncReport, error)
}

// GraphService is the slice of the graph store the API reads.
type GraphService interface {
	Stats(ctx context.Context) (*graph.Stats, error)
}

// SearchService is the slice of the vector store the API queries.
// May be nil when no vector store is configured.
type SearchService interface {
	IsConnected(ctx context.Context) bool
	Search(ctx context.Context, collection, query string, limit int) ([]vector.SearchResult, error)
}

// ErrorResponse is the JSON error body for every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Handlers contains the HTTP handlers for the vault API.
//
// # Thread Safety
//
// Safe for concurrent use; state lives in the underlying services.
type Handlers struct {
	syncs      SyncService
	graphs     GraphService
	search     SearchService
	collection string
	events     *EventHub
	log        *slog.Logger
}

// NewHandlers wires the API handlers. search may be nil; the search
// endpoint then reports 503.
func NewHandlers(syncs SyncService, graphs GraphService, search SearchService, collection string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if collection == "" {
		collection = vector.DefaultCollection
	}
	return &Handlers{
		syncs:      syncs,
		graphs:     graphs,
		search:     search,
		collection: collection,
		events:     NewEventHub(logger),
		log:        logger,
	}
}

// HandleHealth handles GET /v1/vault/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	vectorState := "disabled"
	if h.search != nil {
		if h.search.IsConnected(c.Request.Context()) {
			vectorState = "connected"
		} else {
			vectorState = "degraded"
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"vector": vectorState,
		"time":   time.Now().UTC(),
	})
}

// HandleStats handles GET /v1/vault/stats: graph counts, the last
// pass summary, and delta tracking state.
func (h *Handlers) HandleStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.graphs.Stats(ctx)
	if err != nil {
		h.log.Error("graph stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "graph stats unavailable"})
		return
	}

	resp := gin.H{"graph": stats}

	if state, err := h.syncs.LoadSyncState(); err != nil {
		h.log.Warn("loading sync state", "error", err)
	} else if state != nil {
		resp["last_sync"] = state
	}

	if ds, err := h.syncs.DeltaStats(ctx); err != nil {
		// Contended while a sync pass holds the state lock; report
		// what we have rather than failing the whole endpoint.
		h.log.Warn("delta stats unavailable", "error", err)
	} else {
		resp["delta"] = ds
	}

	c.JSON(http.StatusOK, resp)
}

// syncRequest is the body of POST /v1/vault/sync. All fields are
// optional.
type syncRequest struct {
	CommitDepth int  `json:"commit_depth"`
	SkipVectors bool `json:"skip_vectors"`
}

// HandleSync handles POST /v1/vault/sync by running a delta sync.
// A pass already holding the state lock yields 409.
func (h *Handlers) HandleSync(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
			return
		}
	}

	h.events.Publish(Event{Type: EventSyncStarted, Time: time.Now().UTC()})

	result, err := h.syncs.DeltaSync(c.Request.Context(), syncer.Options{
		CommitDepth: req.CommitDepth,
		SkipVectors: req.SkipVectors,
	})
	if err != nil {
		h.events.Publish(Event{Type: EventSyncFailed, Time: time.Now().UTC(), Error: err.Error()})
		if errors.Is(err, lock.ErrAcquireTimeout) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "another sync is holding the state lock",
				Code:  "sync_in_progress",
			})
			return
		}
		h.log.Error("delta sync failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	h.events.Publish(Event{
		Type:      EventSyncFinished,
		Time:      time.Now().UTC(),
		Processed: result.State.FilesProcessed,
		Failed:    result.State.FilesFailed,
	})
	c.JSON(http.StatusOK, result)
}

// HandleSearch handles GET /v1/vault/search?q=...&limit=N.
func (h *Handlers) HandleSearch(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "vector store is not configured",
			Code:  "vectors_disabled",
		})
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing query parameter q"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be an integer in [1,100]"})
			return
		}
		limit = n
	}

	results, err := h.search.Search(c.Request.Context(), h.collection, query, limit)
	if err != nil {
		h.log.Error("search failed", "query", query, "error", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "search failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

// HandleReport handles GET /v1/vault/report.
func (h *Handlers) HandleReport(c *gin.Context) {
	report, err := h.syncs.SyncReportSnapshot()
	if err != nil {
		h.log.Error("reading sync report", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "sync report unavailable"})
		return
	}
	if report == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no sync has completed yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}
