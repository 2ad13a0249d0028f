// Package server provides the HTTP server for the freshen read API.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/freshen"
	"github.com/agentstation/freshen/internal/server/cache"
	"github.com/agentstation/freshen/internal/server/events"
	"github.com/agentstation/freshen/internal/server/events/adapters"
	ws "github.com/agentstation/freshen/internal/server/websocket"
	"github.com/agentstation/freshen/internal/telemetry"
	"github.com/agentstation/freshen/pkg/refresh"
)

// Server holds the HTTP server state and dependencies.
type Server struct {
	client    freshen.Client
	metrics   *telemetry.Metrics
	cache     *cache.Cache
	broker    *events.Broker
	wsHub     *ws.Hub
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	config    Config
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
}

// New creates a new server over client. metrics may be nil, which
// disables /metrics and HTTP instrumentation.
func New(client freshen.Client, metrics *telemetry.Metrics, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	broker := events.NewBroker(logger)
	wsHub := ws.NewHub(logger)
	broker.Subscribe(adapters.NewWebSocketSubscriber(wsHub))

	s := &Server{
		client:  client,
		metrics: metrics,
		cache:   cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		broker:  broker,
		wsHub:   wsHub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}

	s.connectHooks()
	logger.Debug().Msg("Server instance created")
	return s, nil
}

// connectHooks publishes client refresh events to the broker and drops
// cached responses for the modules they touch.
func (s *Server) connectHooks() {
	s.client.OnModuleRefreshed(func(res refresh.ModuleResult) {
		s.cache.InvalidateModule(res.Module)
		s.broker.Publish(events.ModuleRefreshed, res)
	})

	// A failed cycle keeps the writes applied before the failure.
	s.client.OnModuleFailed(func(res refresh.ModuleResult) {
		s.cache.InvalidateModule(res.Module)
		s.broker.Publish(events.ModuleFailed, res)
	})

	s.client.OnContentExpired(func(module string, count int) {
		if module == "" {
			module = cache.AnyModule
		}
		s.cache.InvalidateModule(module)
		s.broker.Publish(events.ContentExpired, map[string]any{
			"module": module,
			"count":  count,
		})
	})

	s.client.OnRunCompleted(func(run *refresh.RunResult) {
		if run.HasChanges() {
			s.cache.InvalidateModule(cache.AnyModule)
		}
		s.broker.Publish(events.RunCompleted, map[string]any{
			"run_id":        run.RunID,
			"refresh_type":  run.RefreshType,
			"refreshed":     run.Refreshed,
			"failed":        run.Failed,
			"skipped":       run.Skipped,
			"items_updated": run.ItemsUpdated,
			"items_created": run.ItemsCreated,
			"items_removed": run.ItemsRemoved,
			"tokens_used":   run.TokensUsed,
		})
	})
}

// Start starts the broker and WebSocket hub. They stop when ctx is done
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.broker.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.wsHub.Run(ctx)
	}()
	s.logger.Debug().Msg("Background services started")
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer returns an http.Server for the configured address and timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// Shutdown stops background services and waits for them until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Background services shut down")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *ws.Hub {
	return s.wsHub
}

// Broker returns the event broker for publishing events.
func (s *Server) Broker() *events.Broker {
	return s.broker
}
