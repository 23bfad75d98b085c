package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the pipeprobe banner with the version underneath.
func PrintBanner(w io.Writer, version string) {
	p := termenv.NewOutput(w).ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"        _                            _          ", "#38bdf8"},
		{"  _ __ (_)_ __   ___ _ __  _ __ ___ | |__   ___ ", "#22d3ee"},
		{" | '_ \\| | '_ \\ / _ \\ '_ \\| '__/ _ \\| '_ \\ / _ \\", "#2dd4bf"},
		{" | |_) | | |_) |  __/ |_) | | | (_) | |_) |  __/", "#34d399"},
		{" | .__/|_| .__/ \\___| .__/|_|  \\___/|_.__/ \\___|", "#4ade80"},
		{" |_|     |_|        |_|                          ", "#a3e635"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
