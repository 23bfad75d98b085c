package topology

import (
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const maxRenderDepth = 8

// Render formats a node compactly on one line (flow style).
func Render(n *yaml.Node) string {
	var b strings.Builder
	render(&b, n, 0)
	return b.String()
}

func render(b *strings.Builder, n *yaml.Node, depth int) {
	n = deref(n)
	if n == nil {
		b.WriteString("null")
		return
	}
	if depth > maxRenderDepth {
		b.WriteString("...")
		return
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			b.WriteString("null")
			return
		}
		b.WriteString(n.Value)
	case yaml.MappingNode:
		b.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(n.Content[i].Value)
			b.WriteString(": ")
			render(b, n.Content[i+1], depth+1)
		}
		b.WriteByte('}')
	case yaml.SequenceNode:
		b.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, item, depth+1)
		}
		b.WriteByte(']')
	default:
		b.WriteString("?")
	}
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
