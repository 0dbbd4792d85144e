// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the vault API under the given group.
//
// Endpoints:
//
//	GET  /v1/vault/health  - liveness plus vector store state
//	GET  /v1/vault/stats   - graph counts, last sync, delta state
//	POST /v1/vault/sync    - trigger a delta sync (409 when locked)
//	GET  /v1/vault/search  - vector/keyword search over chunks
//	GET  /v1/vault/report  - last sync report
//	GET  /v1/vault/events  - websocket stream of sync events
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	vault := rg.Group("/vault")
	{
		vault.GET("/health", handlers.HandleHealth)
		vault.GET("/stats", handlers.HandleStats)
		vault.POST("/sync", handlers.HandleSync)
		vault.GET("/search", handlers.HandleSearch)
		vault.GET("/report", handlers.HandleReport)
		vault.GET("/events", handlers.HandleEvents)
	}
}
