package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/pipeprobe"
)

// IndexOptions configures the index command.
type IndexOptions struct {
	GlobalOptions
	Modules []string
}

// Index rebuilds the symbol table by importing modules in the interpreter.
func Index(ctx context.Context, opts IndexOptions, out io.Writer, extra ...pipeprobe.Option) error {
	probe, _, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	modules := opts.Modules
	if len(modules) == 0 {
		modules = probe.Settings().IndexModules
	}
	if len(modules) == 0 {
		return fmt.Errorf("no modules to index: pass them as arguments or set index_modules")
	}

	table, err := probe.Index(ctx, modules)
	if err != nil {
		return err
	}
	printSystemMessage(out, "Indexed %d symbols from %d modules.", table.Len(), len(modules))
	if path := probe.Settings().SymbolIndex; path != "" {
		printSystemMessage(out, "Saved to '%s'.", path)
	}
	return nil
}
