package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
	"github.com/aretw0/pipeprobe/pkg/observability"
)

var stopTracing observability.ShutdownFunc

var rootCmd = &cobra.Command{
	Use:   "pipeprobe",
	Short: "pipeprobe inspects dataset pipelines in YAML training configurations",
	Long: `pipeprobe finds the datasets declared in a training configuration and runs
their first entry through the transform pipeline in a Python interpreter,
reporting what every transform did to every field.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if trace, _ := cmd.Flags().GetBool("trace"); trace {
			shutdown, err := observability.SetupTracing(os.Stderr)
			if err != nil {
				return err
			}
			stopTracing = shutdown
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if stopTracing != nil {
			return stopTracing(context.Background())
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, cli.ErrProbeFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("settings", "", "Settings file (default .pipeprobe.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("trace", false, "Write OpenTelemetry spans to stderr")
}

func globalOptions(cmd *cobra.Command) cli.GlobalOptions {
	settings, _ := cmd.Flags().GetString("settings")
	level, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.GlobalOptions{
		SettingsPath: settings,
		LogLevel:     level,
		JSONLogs:     asJSON,
		Debug:        debug,
	}
}
