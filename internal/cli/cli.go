// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the agentmarket command line: listing agents and
// running them in-process against the configured database.
package cli

import (
	"fmt"
	"os"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace"
)

const (
	appName    = "agentmarket"
	appVersion = "1.0.0"
)

// Execute runs the CLI application
func Execute() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "agents":
		return agentsCommand(args)
	case "run":
		return runCommand(args)
	case "sample":
		return sampleCommand(args)
	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)
		return nil
	case "help", "-h", "--help":
		return printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		return printUsage()
	}
}

func printUsage() error {
	fmt.Printf(`%s - AI agent marketplace

Usage:
  %s <command> [arguments]

Commands:
  agents         List registered agents
  run            Execute an agent and record the execution
  sample         Print sample input for an agent
  version        Print version information
  help           Show this help message

Examples:
  %s agents
  %s agents --creator creator-1
  %s run --agent agent_cf15c39b --user u1
  %s run --agent agent_social_001 --user u1 --input topic="Go 1.24" --input platform=twitter
  %s run --agent agent_social_001 --user u1 --interactive
  %s sample --agent agent_cf15c39b

`, appName, appName, appName, appName, appName, appName, appName, appName)
	return nil
}

// openMarketplace loads config, initializes file logging and opens the
// marketplace. The returned func closes everything.
func openMarketplace(configPath string) (*marketplace.Marketplace, func(), error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Initialize(&cfg.Log); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	m, err := marketplace.New(cfg, nil)
	if err != nil {
		logger.CloseGlobal()
		return nil, nil, fmt.Errorf("failed to open marketplace: %w", err)
	}

	return m, func() {
		m.Close()
		logger.CloseGlobal()
	}, nil
}
