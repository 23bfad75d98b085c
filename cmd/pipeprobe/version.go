package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of pipeprobe",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pipeprobe version %s\n", pipeprobe.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
