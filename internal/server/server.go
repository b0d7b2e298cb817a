// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/services"
	"github.com/noldarim/agentmarket/internal/protocol"

	"github.com/go-chi/chi/v5"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server is the REST + WebSocket API server.
type Server struct {
	httpServer  *http.Server
	broadcaster *EventBroadcaster
}

// New creates and wires up the API server. It does NOT start listening;
// call Run() for that.
func New(
	cfg *config.ServerConfig,
	eventChan <-chan protocol.Event,
	agents *services.AgentService,
	executions *services.ExecutionService,
) *Server {
	registry := NewClientRegistry()
	broadcaster := NewEventBroadcaster(eventChan, registry)
	handlers := NewHandlers(agents, executions)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg, handlers, registry),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Agent calls may take the full default webhook timeout.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		broadcaster: broadcaster,
	}
}

// NewRouter builds the chi router with middleware, REST routes and the
// WebSocket endpoint.
func NewRouter(cfg *config.ServerConfig, handlers *Handlers, registry *ClientRegistry) http.Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recovery)
	r.Use(Logger)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(MaxBodySize(maxBody))

	r.Get("/", handlers.Root)
	r.NotFound(handlers.NotFound)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		// Agents
		r.Get("/agents", handlers.ListAgents)
		r.Get("/agents/{agentId}", handlers.GetAgent)
		r.Put("/agents/{agentId}", handlers.UpdateAgent)
		r.Get("/agents/{agentId}/form", handlers.GetAgentForm)
		r.Post("/create-agent", handlers.CreateAgent)
		r.Get("/creator/{creatorId}/agents", handlers.ListCreatorAgents)

		// Executions
		r.Post("/submit-execution", handlers.SubmitExecution)
		r.Get("/executions/{userId}", handlers.ListExecutions)
		r.Get("/executions/{userId}/{executionId}", handlers.GetExecution)
	})

	// WebSocket
	r.Get("/ws", HandleWebSocket(registry, cfg.AllowedOrigins))

	return r
}

// Run starts the event broadcaster goroutine and the HTTP server.
// Blocks until the server is shut down or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		const maxRetries = 3
		for attempt := 1; attempt <= maxRetries; attempt++ {
			func() {
				defer func() {
					if r := recover(); r != nil {
						getLog().Error().Interface("panic", r).Int("attempt", attempt).Msg("Event broadcaster panic")
					}
				}()
				s.broadcaster.Run(ctx)
			}()

			// Normal return (context cancelled): exit without retry.
			if ctx.Err() != nil {
				return
			}

			if attempt < maxRetries {
				getLog().Warn().Int("attempt", attempt).Msg("Restarting event broadcaster after panic")
				time.Sleep(1 * time.Second)
			}
		}
		getLog().Error().Msg("Event broadcaster exhausted retries - events will no longer be dispatched")
	}()

	getLog().Info().Str("addr", s.httpServer.Addr).Msg("API server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
