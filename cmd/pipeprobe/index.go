package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

var indexCmd = &cobra.Command{
	Use:   "index [MODULE...]",
	Short: "Rebuild the symbol index from Python modules",
	Long: `Imports the given modules (or index_modules from the settings) in the
interpreter, records every class with its bases and saves the table to
symbol_index for later extraction.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.Index(sigCtx, cli.IndexOptions{
			GlobalOptions: globalOptions(cmd),
			Modules:       args,
		}, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
