package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage data-root overrides",
}

var persistCmd = &cobra.Command{
	Use:   "persist CONFIG DATASET",
	Short: "Write data-root overrides into the configuration file",
	Long: `Rewrites the data roots of DATASET's chain in place. Only the replaced
values change; formatting, comments and quoting elsewhere are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, _ := cmd.Flags().GetStringArray("override")
		session, _ := cmd.Flags().GetString("session")
		jsonMode, _ := cmd.Flags().GetBool("json")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.PersistOverrides(sigCtx, cli.PersistOptions{
			GlobalOptions: globalOptions(cmd),
			ConfigPath:    args[0],
			Dataset:       args[1],
			Overrides:     overrides,
			SessionID:     session,
			JSON:          jsonMode,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(overridesCmd)
	overridesCmd.AddCommand(persistCmd)

	persistCmd.Flags().StringArrayP("override", "o", nil, "Data root replacement (OLD=NEW, repeatable)")
	persistCmd.Flags().String("session", cli.DefaultSessionID, "Session identifier")
	persistCmd.Flags().Bool("json", false, "Output the applied edits as JSON")
	_ = persistCmd.MarkFlagRequired("override")
}
