package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/internal/presentation/tui"
	"github.com/aretw0/pipeprobe/pkg/domain"
)

// TopologyOptions configures the topology command.
type TopologyOptions struct {
	GlobalOptions
	ConfigPath string
	JSON       bool
	Watch      bool
}

// Topology lists the datasets of a configuration file.
func Topology(ctx context.Context, opts TopologyOptions, out io.Writer, extra ...pipeprobe.Option) error {
	probe, logger, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	show := func(context.Context) error {
		doc, err := probe.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		entries := probe.Extract(doc)

		if opts.JSON {
			nodes := make([]*domain.DatasetNode, 0, len(entries))
			for _, e := range entries {
				nodes = append(nodes, e.Node)
			}
			return writeJSON(out, nodes)
		}

		rendered, err := tui.NewRenderer(out)(tui.TopologyMarkdown(opts.ConfigPath, entries))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	}

	if opts.Watch {
		return watchLoop(ctx, opts.ConfigPath, logger, out, show)
	}
	return show(ctx)
}
