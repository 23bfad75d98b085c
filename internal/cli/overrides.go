package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/pipeprobe"
)

// PersistOptions configures the overrides persist command.
type PersistOptions struct {
	GlobalOptions
	ConfigPath string
	Dataset    string
	Overrides  []string
	SessionID  string
	JSON       bool
}

// PersistOverrides writes data-root overrides back into the configuration file.
func PersistOverrides(ctx context.Context, opts PersistOptions, out io.Writer, extra ...pipeprobe.Option) error {
	values, err := ParseOverrides(opts.Overrides)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("no overrides given")
	}
	if opts.SessionID == "" {
		opts.SessionID = DefaultSessionID
	}

	probe, _, cleanup, err := createProbe(ctx, opts.GlobalOptions, extra...)
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := probe.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	edits, err := probe.PersistOverrides(ctx, opts.SessionID, doc, opts.Dataset, values)
	if err != nil {
		return err
	}

	if opts.JSON {
		return writeJSON(out, edits)
	}
	for _, e := range edits {
		fmt.Fprintf(out, "%s:%d:%d %s: %s -> %s\n", opts.ConfigPath, e.At.Line, e.At.Column, e.Key, e.Old, e.New)
	}
	if len(edits) == 0 {
		printSystemMessage(out, "Nothing to change.")
	}
	return nil
}
