// Package handlers serves the freshen read API.
package handlers

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/server/cache"
	"github.com/agentstation/freshen/internal/server/events"
	ws "github.com/agentstation/freshen/internal/server/websocket"
)

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	client    freshen.Client
	cache     *cache.Cache
	broker    *events.Broker
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	startTime time.Time
}

// New creates a new Handlers instance.
func New(
	client freshen.Client,
	cache *cache.Cache,
	broker *events.Broker,
	wsHub *ws.Hub,
	upgrader websocket.Upgrader,
	logger *zerolog.Logger,
	startTime time.Time,
) *Handlers {
	return &Handlers{
		client:    client,
		cache:     cache,
		broker:    broker,
		wsHub:     wsHub,
		upgrader:  upgrader,
		logger:    logger,
		startTime: startTime,
	}
}
