// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/noldarim/agentmarket/internal/marketplace/schema"
)

func sampleCommand(args []string) error {
	var configPath, agentID string
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&agentID, "agent", "", "Agent ID")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if agentID == "" {
		return fmt.Errorf("--agent is required\n\nUsage:\n  %s sample --agent <agent_id>", appName)
	}

	m, closeFn, err := openMarketplace(configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agent, err := m.Agents().Get(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent %s: %w", agentID, err)
	}

	out, err := json.MarshalIndent(schema.SampleInput(agent.InputSchema), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
