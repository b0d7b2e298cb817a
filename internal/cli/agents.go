// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/noldarim/agentmarket/internal/marketplace/models"
)

type agentsOptions struct {
	configPath string
	creator    string
}

func agentsCommand(args []string) error {
	opts := &agentsOptions{}
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&opts.creator, "creator", "", "Only list agents of this creator")

	if err := fs.Parse(args); err != nil {
		return err
	}

	return listAgents(opts)
}

func listAgents(opts *agentsOptions) error {
	m, closeFn, err := openMarketplace(opts.configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var agents []*models.Agent
	if opts.creator != "" {
		agents, err = m.Agents().ListByCreator(ctx, opts.creator)
	} else {
		agents, err = m.Agents().List(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}

	printAgents(os.Stdout, agents)
	return nil
}

func printAgents(w io.Writer, agents []*models.Agent) {
	if len(agents) == 0 {
		fmt.Fprintln(w, "No agents found.")
		fmt.Fprintln(w, "\nRegister one with POST /api/create-agent or set agents.seed_file in config.yaml")
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-24s  %-28s  %-6s  %s\n", "ID", "TITLE", "METHOD", "URL")
	fmt.Fprintln(w, "────────────────────────  ────────────────────────────  ──────  ────────────────────────────────")
	for _, a := range agents {
		fmt.Fprintf(w, "%-24s  %-28s  %-6s  %s\n",
			truncate(a.ID, 24), truncate(a.Title, 28), a.HTTPMethod, a.ExecutionURL)
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
