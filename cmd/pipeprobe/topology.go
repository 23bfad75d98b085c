package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

var topologyCmd = &cobra.Command{
	Use:     "topology CONFIG",
	Aliases: []string{"ls"},
	Short:   "List the datasets of a configuration",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		watchMode, _ := cmd.Flags().GetBool("watch")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.Topology(sigCtx, cli.TopologyOptions{
			GlobalOptions: globalOptions(cmd),
			ConfigPath:    args[0],
			JSON:          jsonMode,
			Watch:         watchMode,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(topologyCmd)

	topologyCmd.Flags().Bool("json", false, "Output dataset nodes as JSON")
	topologyCmd.Flags().BoolP("watch", "w", false, "Refresh whenever the configuration changes")
}
