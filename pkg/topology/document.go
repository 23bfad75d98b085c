package topology

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// Document is a parsed configuration tree together with the exact source it came from.
type Document struct {
	Path   string
	Source []byte
	Hash   string

	// Root is the top-level content node (usually a mapping).
	Root *yaml.Node
}

// Bare %{...} references are not valid plain YAML scalars; they are quoted
// before parsing when they directly follow a mapping colon.
var bareReference = regexp.MustCompile(`(:[ \t])(%\{[^}\n]+\})`)

// Parse reads and parses the document at path.
func Parse(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return ParseBytes(path, data)
}

// ParseBytes parses data as the document at path.
func ParseBytes(path string, data []byte) (*Document, error) {
	prepared := bareReference.ReplaceAll(data, []byte(`$1"$2"`))

	var doc yaml.Node
	if err := yaml.Unmarshal(prepared, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	root := &doc
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if doc.Kind == 0 {
		root = &yaml.Node{Kind: yaml.MappingNode}
	}

	return &Document{
		Path:   path,
		Source: data,
		Hash:   HashOf(data),
		Root:   root,
	}, nil
}

// HashOf returns the hex sha256 of data.
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Stale reports whether the file on disk no longer matches the parsed source.
func (d *Document) Stale() (bool, error) {
	current, err := os.ReadFile(d.Path)
	if err != nil {
		return true, fmt.Errorf("failed to re-read config %s: %w", d.Path, err)
	}
	return !bytes.Equal(current, d.Source), nil
}

// ScalarAt finds the scalar node that starts at pos.
func (d *Document) ScalarAt(pos domain.Position) (*yaml.Node, bool) {
	var found *yaml.Node
	var visit func(n *yaml.Node)
	visit = func(n *yaml.Node) {
		if n == nil || found != nil {
			return
		}
		if n.Kind == yaml.ScalarNode && n.Line == pos.Line && n.Column == pos.Column {
			found = n
			return
		}
		for _, c := range n.Content {
			visit(c)
		}
	}
	visit(d.Root)
	return found, found != nil
}
