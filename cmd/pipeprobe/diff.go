package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare entry snapshots",
	Long: `Compares two snapshot files (--before/--after) or replays an event log
written by 'run --json' (--events) into per-step diff tables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		before, _ := cmd.Flags().GetString("before")
		after, _ := cmd.Flags().GetString("after")
		events, _ := cmd.Flags().GetString("events")
		jsonMode, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")

		return cli.Diff(cli.DiffOptions{
			Before:  before,
			After:   after,
			Events:  events,
			JSON:    jsonMode,
			Verbose: verbose,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)

	diffCmd.Flags().String("before", "", "Snapshot JSON before the step")
	diffCmd.Flags().String("after", "", "Snapshot JSON after the step")
	diffCmd.Flags().String("events", "", "NDJSON event log to replay")
	diffCmd.Flags().Bool("json", false, "Output the diff as JSON")
	diffCmd.Flags().BoolP("verbose", "v", false, "Include unchanged fields")
	diffCmd.MarkFlagsMutuallyExclusive("events", "after")
}
