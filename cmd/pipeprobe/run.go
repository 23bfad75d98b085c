package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run CONFIG DATASET",
	Short: "Probe a dataset's transform pipeline",
	Long: `Runs the first entry of the dataset at DATASET (a dotted address such as
train.dataset) through its transforms and prints a snapshot diff per step.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, _ := cmd.Flags().GetStringArray("override")
		session, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")
		report, _ := cmd.Flags().GetBool("report")
		verbose, _ := cmd.Flags().GetBool("verbose")
		quiet, _ := cmd.Flags().GetBool("quiet")
		watchMode, _ := cmd.Flags().GetBool("watch")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.Run(sigCtx, cli.RunOptions{
			GlobalOptions: globalOptions(cmd),
			ConfigPath:    args[0],
			Dataset:       args[1],
			Overrides:     overrides,
			SessionID:     session,
			JSON:          jsonMode,
			Report:        report,
			Verbose:       verbose,
			Quiet:         quiet,
			Watch:         watchMode,
			DryRun:        dryRun,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("override", "o", nil, "Replace a data root for this run (OLD=NEW, repeatable)")
	runCmd.Flags().String("session", cli.DefaultSessionID, "Session identifier")
	runCmd.Flags().Bool("json", false, "Write events as NDJSON")
	runCmd.Flags().Bool("report", false, "Print per-step diff tables after the run")
	runCmd.Flags().BoolP("verbose", "v", false, "Show field-level changes and tracebacks")
	runCmd.Flags().BoolP("quiet", "q", false, "Do not print the banner")
	runCmd.Flags().BoolP("watch", "w", false, "Re-run whenever the configuration changes")
	runCmd.Flags().Bool("dry-run", false, "Show the steps that would run without starting an interpreter")
}
