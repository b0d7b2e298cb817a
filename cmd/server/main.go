// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace"
	"github.com/noldarim/agentmarket/internal/protocol"
	"github.com/noldarim/agentmarket/internal/server"
	"github.com/noldarim/agentmarket/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.CloseGlobal()

	mainLog := logger.GetLogger("main")
	mainLog.Info().Msg("Starting agentmarket API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error setting up tracing")
		fmt.Fprintf(os.Stderr, "Error setting up tracing: %v\n", err)
		os.Exit(1)
	}

	// Services publish lifecycle events here; the server fans them out to
	// WebSocket clients.
	eventChan := make(chan protocol.Event, 100)

	market, err := marketplace.New(cfg, eventChan)
	if err != nil {
		mainLog.Error().Err(err).Msg("Error creating marketplace")
		fmt.Fprintf(os.Stderr, "Error creating marketplace: %v\n", err)
		os.Exit(1)
	}

	if err := market.ImportSeed(ctx); err != nil {
		mainLog.Error().Err(err).Msg("Error importing seed agents")
		fmt.Fprintf(os.Stderr, "Error importing seed agents: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(&cfg.Server, eventChan, market.Agents(), market.Executions())

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- srv.Run(ctx)
	}()

	// Wait for signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		mainLog.Info().Msgf("Received signal %v, shutting down...", sig)
	case err := <-serverErrChan:
		if err != nil {
			mainLog.Error().Err(err).Msg("Server error")
		}
	}

	// Graceful shutdown: fresh context with timeout so in-flight executions
	// can finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error shutting down server")
	}

	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Error flushing traces")
	}
	if err := market.Close(); err != nil {
		mainLog.Error().Err(err).Msg("Error closing marketplace")
	}

	mainLog.Info().Msg("API server shut down")
}
