package overrides

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/internal/adapters/file"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

var (
	// ErrNotEditable is returned when an overridden data root has no literal
	// token in the document (for example because it is a reference).
	ErrNotEditable = errors.New("data root is not a literal value")

	// ErrTokenMismatch is returned when the source text at a recorded position
	// does not hold the expected value.
	ErrTokenMismatch = errors.New("source does not match the parsed value")
)

// Edit is one token replacement in the document source.
type Edit struct {
	Address  string          `json:"address"`
	Key      string          `json:"key"`
	At       domain.Position `json:"at"`
	Old      string          `json:"old"`
	New      string          `json:"new"`
	offset   int
	length   int
	rendered string
}

// Plan computes the edits that persist overrides into the data roots of
// node's chain. It does not touch the file. All edits are verified against
// the source; any failure rejects the whole plan.
func Plan(doc *topology.Document, node *domain.DatasetNode, overrides map[string]string) ([]Edit, error) {
	lines := lineOffsets(doc.Source)
	seen := map[int]bool{}

	var edits []Edit
	for _, n := range node.Chain() {
		replacement, ok := overrides[n.DataRoot]
		if !ok || n.DataRoot == "" {
			continue
		}
		if n.DataRootAt.IsZero() {
			return nil, fmt.Errorf("%w: %s.%s", ErrNotEditable, n.Address, n.DataRootKey)
		}
		scalar, ok := doc.ScalarAt(n.DataRootAt)
		if !ok {
			return nil, fmt.Errorf("%w: no scalar at %d:%d", ErrTokenMismatch, n.DataRootAt.Line, n.DataRootAt.Column)
		}

		offset, err := byteOffset(doc.Source, lines, n.DataRootAt)
		if err != nil {
			return nil, err
		}
		if seen[offset] {
			continue
		}

		old := quote(scalar.Value, scalar.Style)
		if !strings.HasPrefix(string(doc.Source[offset:]), old) {
			return nil, fmt.Errorf("%w: expected %s at %d:%d", ErrTokenMismatch, old, n.DataRootAt.Line, n.DataRootAt.Column)
		}
		if scalar.Style == 0 && !plainEnds(doc.Source, offset+len(old)) {
			return nil, fmt.Errorf("%w: plain value at %d:%d continues past %q", ErrTokenMismatch, n.DataRootAt.Line, n.DataRootAt.Column, old)
		}

		seen[offset] = true
		edits = append(edits, Edit{
			Address:  n.Address,
			Key:      n.DataRootKey,
			At:       n.DataRootAt,
			Old:      scalar.Value,
			New:      replacement,
			offset:   offset,
			length:   len(old),
			rendered: quote(replacement, replacementStyle(replacement, scalar.Style)),
		})
	}
	return edits, nil
}

// Splice applies edits to source from the end backwards so earlier offsets stay valid.
func Splice(source []byte, edits []Edit) []byte {
	ordered := append([]Edit(nil), edits...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].offset > ordered[j].offset })

	out := append([]byte(nil), source...)
	for _, e := range ordered {
		tail := append([]byte(e.rendered), out[e.offset+e.length:]...)
		out = append(out[:e.offset], tail...)
	}
	return out
}

// Persist writes overrides into the document as a single all-or-nothing
// mutation. It refuses when the file changed since doc was parsed, and the
// result must still parse. It returns the applied edits; none means nothing
// in the chain matched.
func Persist(ctx context.Context, doc *topology.Document, node *domain.DatasetNode, overrides map[string]string) ([]Edit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := unchanged(doc); err != nil {
		return nil, err
	}

	edits, err := Plan(doc, node, overrides)
	if err != nil {
		return nil, err
	}
	if len(edits) == 0 {
		return nil, nil
	}

	updated := Splice(doc.Source, edits)
	if _, err := topology.ParseBytes(doc.Path, updated); err != nil {
		return nil, fmt.Errorf("edited document no longer parses: %w", err)
	}

	if err := file.WriteAtomic(doc.Path, updated, func() error { return unchanged(doc) }); err != nil {
		return nil, err
	}
	return edits, nil
}

// PersistFile parses path, extracts the dataset at address and persists overrides into it.
func PersistFile(ctx context.Context, ext *topology.Extractor, path, address string, overrides map[string]string) ([]Edit, error) {
	doc, err := topology.Parse(path)
	if err != nil {
		return nil, err
	}
	node, ok := ext.ExtractAt(doc, address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotADataset, address)
	}
	return Persist(ctx, doc, node, overrides)
}

func unchanged(doc *topology.Document) error {
	stale, err := doc.Stale()
	if err != nil {
		return err
	}
	if stale {
		return fmt.Errorf("%w: %s", domain.ErrDocumentChanged, doc.Path)
	}
	return nil
}

func lineOffsets(src []byte) []int {
	offsets := []int{0}
	for i, b := range src {
		if b == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// byteOffset converts a 1-based line and rune column into a byte offset.
func byteOffset(src []byte, lines []int, pos domain.Position) (int, error) {
	if pos.Line < 1 || pos.Line > len(lines) {
		return 0, fmt.Errorf("%w: line %d out of range", ErrTokenMismatch, pos.Line)
	}
	offset := lines[pos.Line-1]
	for col := 1; col < pos.Column; col++ {
		if offset >= len(src) || src[offset] == '\n' {
			return 0, fmt.Errorf("%w: column %d out of range on line %d", ErrTokenMismatch, pos.Column, pos.Line)
		}
		_, size := utf8.DecodeRune(src[offset:])
		offset += size
	}
	return offset, nil
}

// plainEnds reports whether a plain scalar may end at offset.
func plainEnds(src []byte, offset int) bool {
	if offset >= len(src) {
		return true
	}
	switch src[offset] {
	case '\n', '\r', ',', ']', '}':
		return true
	case ' ', '\t':
		rest := strings.TrimLeft(string(src[offset:]), " \t")
		return rest == "" || rest[0] == '#' || rest[0] == '\n' || rest[0] == '\r' || rest[0] == ',' || rest[0] == '}' || rest[0] == ']'
	}
	return false
}

func quote(v string, style yaml.Style) string {
	switch {
	case style&yaml.DoubleQuotedStyle != 0:
		r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
		return `"` + r.Replace(v) + `"`
	case style&yaml.SingleQuotedStyle != 0:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return v
}

// replacementStyle keeps the original quoting unless a plain value would
// change meaning.
func replacementStyle(v string, original yaml.Style) yaml.Style {
	if original&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 {
		return original
	}
	if needsQuotes(v) {
		return yaml.DoubleQuotedStyle
	}
	return 0
}

func needsQuotes(v string) bool {
	if v == "" || strings.TrimSpace(v) != v {
		return true
	}
	if strings.ContainsAny(v[:1], "!&*?|>'\"%@`{}[],#-:") {
		return true
	}
	if strings.Contains(v, ": ") || strings.Contains(v, " #") || strings.ContainsAny(v, "\n\r\t") {
		return true
	}
	var probe any
	if err := yaml.Unmarshal([]byte(v), &probe); err != nil {
		return true
	}
	_, isString := probe.(string)
	return !isString
}
