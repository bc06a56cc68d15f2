// Copyright (C) 2025 Zippie (hello@zippie.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/zippiehq/coprocessor-devnet/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath  string
	logLevel    string
	plainOutput bool
	followLogs  bool

	rootCmd = &cobra.Command{
		Use:   "copro",
		Short: "A cli to manage the Cartesi coprocessor development environment",
		Long: `copro maintains a local checkout of the cartesi-coprocessor
repository and drives its docker compose devnet: a local chain,
the eigenlayer contracts, and the coprocessor services.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if plainOutput {
				ux.SetPlain(true)
			}
		},
	}

	// --- Devnet Lifecycle ---
	devnetCmd = &cobra.Command{
		Use:   "devnet",
		Short: "Manage the local coprocessor devnet",
	}
	devnetStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Sync the checkout, build and pull images, and start the devnet",
		Run:   runDevnetStart, // Defined in cmd_devnet.go
	}
	devnetStopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the devnet and remove its volumes",
		Run:   runDevnetStop, // Defined in cmd_devnet.go
	}
	devnetUpdateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update the coprocessor checkout without touching the devnet",
		Run:   runDevnetUpdate, // Defined in cmd_devnet.go
	}
	devnetResetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkout and clone it fresh",
		Run:   runDevnetReset, // Defined in cmd_devnet.go
	}
	devnetStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show devnet container states",
		Run:   runDevnetStatus, // Defined in cmd_devnet.go
	}
	devnetLogsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Stream devnet container logs",
		Run:   runDevnetLogs, // Defined in cmd_devnet.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(),
		"Path to the copro config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override the configured log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false,
		"Disable colors and icons in output")

	devnetLogsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false,
		"Follow log output")

	rootCmd.AddCommand(devnetCmd)
	devnetCmd.AddCommand(devnetStartCmd)
	devnetCmd.AddCommand(devnetStopCmd)
	devnetCmd.AddCommand(devnetUpdateCmd)
	devnetCmd.AddCommand(devnetResetCmd)
	devnetCmd.AddCommand(devnetStatusCmd)
	devnetCmd.AddCommand(devnetLogsCmd)
}
