// Copyright (C) 2025-2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"

	"github.com/noldarim/agentmarket/internal/logger"
	"github.com/noldarim/agentmarket/internal/marketplace/models"
	"github.com/noldarim/agentmarket/internal/marketplace/schema"
	"github.com/noldarim/agentmarket/internal/marketplace/services"
)

type runOptions struct {
	configPath  string
	agentID     string
	userID      string
	inputs      map[string]string // --input key=value flags
	interactive bool
	jsonOutput  bool
	noColor     bool
}

func runCommand(args []string) error {
	opts := &runOptions{inputs: make(map[string]string)}
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", "config.yaml", "Path to config file")
	fs.StringVar(&opts.agentID, "agent", "", "Agent ID to execute")
	fs.StringVar(&opts.userID, "user", "", "User ID recorded on the execution")
	fs.BoolVar(&opts.interactive, "interactive", false, "Prompt for every input field")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print the normalized result as JSON")
	fs.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	// Custom flag for --input (can be repeated)
	fs.Func("input", "Set an input (key=value), can be repeated", func(s string) error {
		key, value, ok := strings.Cut(s, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid input format, use key=value")
		}
		opts.inputs[key] = value
		return nil
	})

	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.agentID == "" || opts.userID == "" {
		return fmt.Errorf("--agent and --user are required\n\nUsage:\n  %s run --agent <agent_id> --user <user_id> [--input key=value ...]", appName)
	}

	return executeRun(opts)
}

func executeRun(opts *runOptions) error {
	m, closeFn, err := openMarketplace(opts.configPath)
	if err != nil {
		return err
	}
	defer closeFn()

	log := logger.GetCLILogger()

	// Ctrl-C before the call is dispatched aborts; once the call is running
	// the execution is completed regardless.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, err := m.Agents().Get(ctx, opts.agentID)
	if err != nil {
		return fmt.Errorf("failed to load agent %s: %w", opts.agentID, err)
	}
	log.Info().Str("agent_id", agent.ID).Str("user_id", opts.userID).Msg("Running agent from CLI")

	var inputs map[string]any
	if opts.interactive {
		inputs, err = promptInputs(agent)
		if err != nil {
			return err
		}
	} else {
		inputs = schema.SampleInput(agent.InputSchema)
		for k, v := range coerceInputs(agent.InputSchema, opts.inputs) {
			inputs[k] = v
		}
	}

	var (
		sub    *services.Submission
		runErr error
	)
	submit := func() {
		sub, runErr = m.Executions().Submit(ctx, services.SubmitRequest{
			AgentID: agent.ID,
			UserID:  opts.userID,
			Inputs:  inputs,
		})
	}

	if opts.jsonOutput || opts.noColor {
		submit()
	} else {
		if err := spinner.New().
			Title(fmt.Sprintf(" Running %s...", agent.Title)).
			Action(submit).
			Run(); err != nil {
			return err
		}
	}

	if runErr != nil {
		var verr *schema.ValidationError
		if errors.As(runErr, &verr) {
			return fmt.Errorf("invalid inputs:\n  - %s", strings.Join(verr.Errors, "\n  - "))
		}
		return runErr
	}

	if opts.jsonOutput {
		out, err := json.MarshalIndent(sub.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		fmt.Print(newStyles(opts.noColor).renderSubmission(sub))
	}

	if sub.Failed() {
		return errors.New("agent execution failed")
	}
	return nil
}

// coerceInputs converts command-line strings to the types the schema
// expects. Values that do not parse are kept as strings so validation can
// report them.
func coerceInputs(fields models.Schema, raw map[string]string) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		f, ok := fields.Field(k)
		if ok && f.Type == models.FieldTypeNumber {
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}

// promptInputs renders a form for the agent schema, prefilled with sample
// values, and returns the non-empty answers.
func promptInputs(agent *models.Agent) (map[string]any, error) {
	sample := schema.SampleInput(agent.InputSchema)
	values := make(map[string]*string, len(agent.InputSchema))

	var fields []huh.Field
	for _, ff := range schema.FormFields(agent.InputSchema) {
		v := ""
		if s, ok := sample[ff.Name]; ok {
			v = fmt.Sprint(s)
		}
		values[ff.Name] = &v
		fields = append(fields, formField(ff, values[ff.Name]))
	}
	if len(fields) == 0 {
		return map[string]any{}, nil
	}

	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeCharm())
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, errors.New("cancelled")
		}
		return nil, err
	}

	raw := make(map[string]string, len(values))
	for name, v := range values {
		if strings.TrimSpace(*v) != "" {
			raw[name] = *v
		}
	}
	return coerceInputs(agent.InputSchema, raw), nil
}

func formField(ff schema.FormField, value *string) huh.Field {
	title := ff.Label
	if ff.Required {
		title += " *"
	}
	validate := func(s string) error {
		if ff.Required && strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", ff.Label)
		}
		return nil
	}

	switch ff.Type {
	case "select":
		return huh.NewSelect[string]().
			Title(title).
			Description(ff.Description).
			Options(huh.NewOptions(ff.Options...)...).
			Value(value)
	case "textarea":
		return huh.NewText().
			Title(title).
			Description(ff.Description).
			Placeholder(ff.Placeholder).
			Validate(validate).
			Value(value)
	case "password":
		return huh.NewInput().
			Title(title).
			Description(ff.Description).
			EchoMode(huh.EchoModePassword).
			Validate(validate).
			Value(value)
	default:
		return huh.NewInput().
			Title(title).
			Description(ff.Description).
			Placeholder(ff.Placeholder).
			Validate(validate).
			Value(value)
	}
}
