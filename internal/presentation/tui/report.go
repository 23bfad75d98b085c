package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

// TopologyMarkdown describes the datasets of a document.
func TopologyMarkdown(path string, entries []topology.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", path)
	if len(entries) == 0 {
		b.WriteString("_No datasets found._\n")
		return b.String()
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "## `%s`\n\n", e.Address)
		for depth, n := range outerFirst(e.Node) {
			indent := strings.Repeat("  ", depth)
			fmt.Fprintf(&b, "%s- **%s** `%s`", indent, n.DisplayName, n.Target)
			if n.DataRoot != "" {
				fmt.Fprintf(&b, " root=`%s`", n.DataRoot)
			}
			b.WriteString("\n")
			for _, p := range n.Params {
				fmt.Fprintf(&b, "%s  - %s: `%s`\n", indent, p.Name, p.Value)
			}
			for _, t := range n.Transforms {
				fmt.Fprintf(&b, "%s  - %d. %s", indent, t.Index, t.DisplayName)
				if t.IO != "" {
					fmt.Fprintf(&b, " (%s)", t.IO)
				}
				b.WriteString("\n")
			}
			for _, w := range n.Warnings {
				fmt.Fprintf(&b, "%s  - _warning: %s_\n", indent, w)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func outerFirst(n *domain.DatasetNode) []*domain.DatasetNode {
	var out []*domain.DatasetNode
	for cur := n; cur != nil; cur = cur.Wrapped {
		out = append(out, cur)
	}
	return out
}

// ReportMarkdown describes a finished run, one table per changed step.
// Unchanged fields are listed only when verbose is set.
func ReportMarkdown(report *orchestrator.Report, verbose bool) string {
	var b strings.Builder

	for _, ds := range report.Datasets {
		fmt.Fprintf(&b, "## %s `%s`\n\n", ds.Name, ds.Address)
		if ds.InitError != nil {
			fmt.Fprintf(&b, "**Initialization failed:** %s\n\n", ds.InitError.Message)
		}
		if ds.Skipped != "" {
			fmt.Fprintf(&b, "_Skipped: %s_\n\n", ds.Skipped)
		}

		for _, step := range ds.Diffs() {
			fmt.Fprintf(&b, "### %d. %s  (+%d -%d ~%d)\n\n", step.StepIndex, step.StepLabel,
				step.Summary.Added, step.Summary.Removed, step.Summary.Modified)
			rows := diffRows(step.Fields, "", verbose)
			if len(rows) == 0 {
				b.WriteString("_No changes._\n\n")
				continue
			}
			b.WriteString("| Field | Status | Before | After |\n|---|---|---|---|\n")
			for _, r := range rows {
				b.WriteString(r)
			}
			b.WriteString("\n")
		}

		if ds.StepError != nil {
			fmt.Fprintf(&b, "**Step %d (%s) failed:** %s\n\n", ds.StepError.StepIndex, ds.StepError.StepLabel, ds.StepError.Message)
			if ds.StepError.Traceback != "" {
				fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(ds.StepError.Traceback, "\n"))
			}
		}
	}

	if len(report.Connectors) > 0 {
		b.WriteString("## Wrapping\n\n")
		for _, c := range report.Connectors {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}
	for _, e := range report.Errors {
		fmt.Fprintf(&b, "**Error:** %s\n\n", e.Message)
		if e.Traceback != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(e.Traceback, "\n"))
		}
	}
	fmt.Fprintf(&b, "_Finished in %s._\n", report.ExecutionTime)
	return b.String()
}

func diffRows(diffs []domain.FieldDiff, prefix string, verbose bool) []string {
	var rows []string
	for _, d := range diffs {
		key := prefix + d.Key
		if d.Changed() || verbose {
			rows = append(rows, fmt.Sprintf("| `%s` | %s | %s | %s |\n", key, d.Status, Summary(d.Before), Summary(d.After)))
		}
		if len(d.Children) > 0 {
			rows = append(rows, diffRows(d.Children, key+".", verbose)...)
		}
	}
	return rows
}

// Summary renders the identifying attributes of a field on one line.
func Summary(f *domain.FieldSnapshot) string {
	if f == nil {
		return ""
	}
	parts := []string{f.PythonType}
	if f.Shape != "" {
		parts = append(parts, f.Shape)
	}
	if f.Dtype != "" {
		parts = append(parts, f.Dtype)
	}
	if f.Min != "" || f.Max != "" {
		parts = append(parts, fmt.Sprintf("[%s, %s]", f.Min, f.Max))
	}
	if f.Mean != "" {
		parts = append(parts, "μ="+f.Mean)
	}
	if f.Preview != "" {
		parts = append(parts, f.Preview)
	}
	return strings.ReplaceAll(strings.Join(parts, " "), "|", "\\|")
}
