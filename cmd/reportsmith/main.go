// Copyright © 2025 OpenCHAMI a Series of LF Projects, LLC
//
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/openchami/reportsmith/pkg/logging"
	"github.com/openchami/reportsmith/pkg/reportservice"
	"github.com/spf13/cobra"
)

// Set by the linker
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reportsmith",
	Short: "ReportSmith - Keycloak protected prosthetic reports API",
	Long:  `ReportSmith serves synthetic prosthetic usage reports to callers holding a valid Keycloak access token and the required realm role.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logConfig := logging.ConfigFromEnv(os.Getenv)
		if os.Getenv("VERSION") == "" {
			logConfig.Version = version
		}
		logging.Configure(logConfig)
	},
	SilenceUsage: true,
}

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Generate a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			return fmt.Errorf("--config is required")
		}
		config := reportservice.DefaultFileConfig()
		if err := reportservice.SaveFileConfig(config, configPath); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated configuration file at: %s\n", configPath)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "reportsmith %s (commit %s, built %s)\n", version, commit, buildDate)
	},
}

func init() {
	rootCmd.AddCommand(generateConfigCmd)
	rootCmd.AddCommand(versionCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file (JSON or YAML)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
