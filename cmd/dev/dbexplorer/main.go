// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command dbexplorer inspects recorded executions.
// Usage:
//
//	go run cmd/dev/dbexplorer/main.go --user <id>
//	go run cmd/dev/dbexplorer/main.go --user <id> --execution <id> --raw
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/noldarim/agentmarket/internal/config"
	"github.com/noldarim/agentmarket/internal/marketplace/database"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
)

func main() {
	userID := flag.String("user", "", "User whose executions to list")
	executionID := flag.String("execution", "", "Show a single execution")
	status := flag.String("status", "", "Filter by status (running, completed, failed)")
	showRaw := flag.Bool("raw", false, "Show inputs and full result JSON")
	limit := flag.Int("limit", 50, "Maximum number of executions to show")
	configFile := flag.String("config", "config.yaml", "Config file path")

	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(2)
	}

	ctx := context.Background()

	cfg, err := config.NewConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewGormDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *executionID != "" {
		exec, err := db.GetExecution(ctx, *executionID)
		if err != nil || exec.UserID != *userID {
			fmt.Fprintf(os.Stderr, "Execution %s not found for user %s\n", *executionID, *userID)
			os.Exit(1)
		}
		printExecution(exec, true)
		return
	}

	execs, err := db.ListExecutionsByUser(ctx, *userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list executions: %v\n", err)
		os.Exit(1)
	}

	shown := 0
	for _, e := range execs {
		if *status != "" && string(e.Status) != *status {
			continue
		}
		if shown >= *limit {
			break
		}
		printExecution(e, *showRaw)
		shown++
	}
	fmt.Printf("\n%d of %d executions shown\n", shown, len(execs))
}

func printExecution(e *models.Execution, raw bool) {
	fmt.Println(strings.Repeat("─", 72))
	fmt.Printf("%s  %-9s  agent=%s  created=%s\n", e.ID, e.Status, e.AgentID, e.CreatedAt.Format("2006-01-02 15:04:05"))
	if e.CompletedAt != nil {
		fmt.Printf("  took %s\n", e.CompletedAt.Sub(e.CreatedAt).Round(time.Millisecond))
	}
	if e.Error != "" {
		fmt.Printf("  error: %s\n", e.Error)
	}
	if !raw {
		return
	}
	inputs, _ := json.MarshalIndent(e.Inputs, "  ", "  ")
	fmt.Printf("  inputs: %s\n", inputs)
	if len(e.Result) > 0 {
		var pretty any
		if json.Unmarshal(e.Result, &pretty) == nil {
			out, _ := json.MarshalIndent(pretty, "  ", "  ")
			fmt.Printf("  result: %s\n", out)
		}
	}
}
