package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/pipeprobe/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes extraction, probe runs (with SSE event streams), diffs and
override persistence as a JSON API over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		metrics, _ := cmd.Flags().GetBool("metrics")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		return cli.Serve(sigCtx, cli.ServeOptions{
			GlobalOptions: globalOptions(cmd),
			Addr:          addr,
			Metrics:       metrics,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("metrics", true, "Expose Prometheus metrics on /metrics")
}
