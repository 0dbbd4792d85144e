// Copyright (C) 2025 CodeVault AI (engineering@codevault.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType names a sync lifecycle event.
type EventType string

const (
	EventSyncStarted  EventType = "sync_started"
	EventSyncFinished EventType = "sync_finished"
	EventSyncFailed   EventType = "sync_failed"
)

// Event is one entry on the /v1/vault/events stream.
type Event struct {
	Type      EventType `json:"type"`
	Time      time.Time `json:"time"`
	Processed int       `json:"processed,omitempty"`
	Failed    int       `json:"failed,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// EventHub fans sync events out to websocket subscribers.
//
// # Thread Safety
//
// Safe for concurrent use. Publish never blocks: a subscriber that
// cannot keep up has events dropped rather than stalling the sync
// path.
type EventHub struct {
	mu   sync.Mutex
	subs map[string]chan Event
	log  *slog.Logger
}

// NewEventHub creates an empty hub.
func NewEventHub(logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subs: make(map[string]chan Event),
		log:  logger,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (h *EventHub) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers an event to every subscriber, dropping it for
// subscribers whose buffer is full.
func (h *EventHub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("dropping event for slow subscriber", "subscriber", id, "type", string(ev.Type))
		}
	}
}

// CloseAll disconnects every subscriber, used during server shutdown.
func (h *EventHub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// subscriberCount is a test hook.
func (h *EventHub) subscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// The server binds to loopback by default; origin checks add
		// nothing for a local developer tool.
		return true
	},
}

// HandleEvents handles GET /v1/vault/events: upgrades to a websocket
// and streams sync events until the client disconnects.
func (h *Handlers) HandleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	id, ch := h.events.Subscribe()
	defer h.events.Unsubscribe(id)
	h.log.Info("event subscriber connected", "subscriber", id)

	// Reader goroutine: we never expect client messages, but reading
	// is how websocket close frames are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := ws.WriteJSON(ev); err != nil {
				h.log.Debug("event subscriber write failed", "subscriber", id, "error", err)
				return
			}
		case <-done:
			h.log.Info("event subscriber disconnected", "subscriber", id)
			return
		}
	}
}
