// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/devnet"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/diag"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/compose"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/git"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/infra/process"
	"github.com/zippiehq/coprocessor-devnet/cmd/copro/internal/util"
	"github.com/zippiehq/coprocessor-devnet/pkg/logging"
	"github.com/zippiehq/coprocessor-devnet/pkg/ux"
)

// phaseLabels maps manager phase names to user-facing text.
var phaseLabels = map[string]string{
	devnet.PhaseSync:   "Syncing coprocessor checkout",
	devnet.PhaseBuild:  "Building containers",
	devnet.PhasePull:   "Pulling images",
	devnet.PhaseUp:     "Starting devnet",
	devnet.PhaseDown:   "Stopping devnet",
	devnet.PhaseRemove: "Removing checkout",
}

// uxProgress renders manager phase events as styled lines.
type uxProgress struct{}

var _ devnet.Progress = uxProgress{}

func (uxProgress) label(name string) string {
	if l, ok := phaseLabels[name]; ok {
		return l
	}
	return name
}

func (p uxProgress) Phase(name string) {
	ux.Info(p.label(name) + "...")
}

func (p uxProgress) PhaseDone(name string) {
	ux.Success(p.label(name))
}

func (p uxProgress) PhaseFailed(name string, err error) {
	ux.Error(fmt.Sprintf("%s: %v", p.label(name), err))
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "copro.yaml"
	}
	return filepath.Join(home, ".copro", "config.yaml")
}

// buildManager wires the full dependency graph from config.
func buildManager() (devnet.Manager, *logging.Logger, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(level),
		LogDir:  cfg.Logging.Dir,
		Service: "copro",
		JSON:    cfg.Logging.JSON,
	})
	logger.SetAsDefault()

	checkout, err := cfg.CheckoutDir()
	if err != nil {
		return nil, logger, err
	}
	diagDir, err := cfg.DiagnosticsDir()
	if err != nil {
		return nil, logger, err
	}

	runner := process.NewDefaultRunner()

	syncer := git.NewDefaultSynchronizer(git.SyncConfig{
		RemoteURL: cfg.Repo.URL,
		Branch:    cfg.Repo.Branch,
		Dir:       checkout,
		Submodules: process.PollConfig{
			Interval:      cfg.Sync.SubmodulePollInterval.Std(),
			MaxWait:       cfg.Sync.SubmoduleTimeout.Std(),
			KillOnTimeout: true,
		},
	}, runner)

	executor := compose.NewDefaultExecutor(compose.ComposeConfig{
		File: cfg.Compose.File,
		Dir:  checkout,
		Poll: process.PollConfig{
			Interval:      cfg.Compose.PollInterval.Std(),
			MaxWait:       cfg.Compose.Timeout.Std(),
			KillOnTimeout: true,
		},
	}, runner)

	manager, err := devnet.NewDefaultManager(devnet.Deps{
		Sync:       syncer,
		Stack:      executor,
		GitSink:    ux.GitStream(),
		DockerSink: ux.DockerStream(),
		Diag:       diag.NewDefaultCollector(diagDir, checkout, executor),
		Progress:   uxProgress{},
		Log:        logger,
	})
	return manager, logger, err
}

// actionContext returns a context cancelled by SIGINT/SIGTERM so a
// Ctrl-C tears down in-flight subprocesses.
func actionContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runAction wires a manager, runs one lifecycle verb, and exits
// non-zero on failure.
func runAction(verb string, fn func(context.Context, devnet.Manager) error) {
	manager, logger, err := buildManager()
	if logger != nil {
		defer logger.Close()
	}
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := actionContext()
	defer cancel()

	if err := fn(ctx, manager); err != nil {
		ux.Error(fmt.Sprintf("devnet %s failed: %v", verb, err))
		os.Exit(1)
	}
}

func runDevnetStart(cmd *cobra.Command, args []string) {
	runAction("start", func(ctx context.Context, m devnet.Manager) error {
		if err := m.Start(ctx); err != nil {
			return err
		}
		printSummary(ctx, m)
		return nil
	})
}

func runDevnetStop(cmd *cobra.Command, args []string) {
	runAction("stop", func(ctx context.Context, m devnet.Manager) error {
		if err := m.Stop(ctx); err != nil {
			return err
		}
		ux.Success("Devnet stopped and volumes removed")
		return nil
	})
}

func runDevnetUpdate(cmd *cobra.Command, args []string) {
	runAction("update", func(ctx context.Context, m devnet.Manager) error {
		if err := m.Update(ctx); err != nil {
			return err
		}
		ux.Success("Checkout is up to date")
		return nil
	})
}

func runDevnetReset(cmd *cobra.Command, args []string) {
	runAction("reset", func(ctx context.Context, m devnet.Manager) error {
		if err := m.Reset(ctx); err != nil {
			return err
		}
		ux.Success("Checkout reset to a fresh clone")
		return nil
	})
}

func runDevnetStatus(cmd *cobra.Command, args []string) {
	runAction("status", func(ctx context.Context, m devnet.Manager) error {
		var statuses []compose.ContainerStatus
		err := util.SpinWhile("Querying devnet status...", func() error {
			var qerr error
			statuses, qerr = m.Status(ctx)
			return qerr
		})
		if err != nil {
			return err
		}

		if len(statuses) == 0 {
			ux.Info("Devnet is not running")
			return nil
		}

		running := 0
		for _, s := range statuses {
			line := fmt.Sprintf("%-20s %s", s.Service, s.State)
			if s.Health != "" {
				line += " (" + s.Health + ")"
			}
			if s.Running() {
				running++
				ux.Success(line)
			} else {
				ux.Warning(line)
			}
		}
		ux.Muted(fmt.Sprintf("%d/%d containers running", running, len(statuses)))
		return nil
	})
}

func runDevnetLogs(cmd *cobra.Command, args []string) {
	runAction("logs", func(ctx context.Context, m devnet.Manager) error {
		return m.Logs(ctx, followLogs)
	})
}

// printSummary shows the post-start container table.
func printSummary(ctx context.Context, m devnet.Manager) {
	statuses, err := m.Status(ctx)
	if err != nil || len(statuses) == 0 {
		ux.Success("Devnet is up")
		return
	}

	var rows []string
	for _, s := range statuses {
		rows = append(rows, fmt.Sprintf("%-20s %s", s.Service, s.State))
	}
	ux.Box("Devnet is up", strings.Join(rows, "\n"))
}
