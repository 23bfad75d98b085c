package topology

import (
	"io"
	"log/slog"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/symbols"
)

// DefaultBaseDataset is the base type every dataset target must derive from.
const DefaultBaseDataset = "srforge.dataset.Dataset"

// DefaultDataRootKeys are parameter names recognized as a dataset's data root.
var DefaultDataRootKeys = []string{"root", "data_root", "root_dir", "data_dir"}

// DefaultPreviewLength bounds rendered container parameters.
const DefaultPreviewLength = 60

// Entry is one dataset found during extraction.
type Entry struct {
	Address string
	Node    *domain.DatasetNode
}

// Extractor finds dataset definitions in configuration documents.
type Extractor struct {
	symbols       *symbols.Table
	base          string
	targetKey     string
	paramsKey     string
	transformsKey string
	dataRootKeys  []string
	previewLength int
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBaseDataset sets the base dataset type.
func WithBaseDataset(ref string) Option {
	return func(e *Extractor) { e.base = ref }
}

// WithKeys overrides the target, params and transforms key names.
// Empty values keep the defaults.
func WithKeys(target, params, transforms string) Option {
	return func(e *Extractor) {
		if target != "" {
			e.targetKey = target
		}
		if params != "" {
			e.paramsKey = params
		}
		if transforms != "" {
			e.transformsKey = transforms
		}
	}
}

// WithDataRootKeys sets the parameter names treated as data roots.
func WithDataRootKeys(keys ...string) Option {
	return func(e *Extractor) { e.dataRootKeys = keys }
}

// WithPreviewLength bounds rendered container parameters (in runes).
func WithPreviewLength(n int) Option {
	return func(e *Extractor) { e.previewLength = n }
}

// WithLogger sets the logger used for extraction diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New creates an Extractor resolving targets against table.
func New(table *symbols.Table, opts ...Option) *Extractor {
	e := &Extractor{
		symbols:       table,
		base:          DefaultBaseDataset,
		targetKey:     domain.KeyTarget,
		paramsKey:     domain.KeyParams,
		transformsKey: domain.KeyTransforms,
		dataRootKeys:  DefaultDataRootKeys,
		previewLength: DefaultPreviewLength,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract walks doc depth-first and returns every dataset found, in document order.
// It never fails: unresolvable symbols and references degrade to "not a dataset".
func (e *Extractor) Extract(doc *Document) []Entry {
	w := &walk{
		e:      e,
		doc:    doc,
		onPath: make(map[*yaml.Node]bool),
		seen:   make(map[string]bool),
	}
	root := deref(doc.Root)
	if root == nil || root.Kind != yaml.MappingNode {
		return nil
	}
	w.onPath[root] = true
	w.mapping(root, nil)
	return w.entries
}

// ExtractAt builds the dataset at address. It reports false when the address
// does not resolve (including out-of-range indices) or is not a dataset.
func (e *Extractor) ExtractAt(doc *Document, address string) (*domain.DatasetNode, bool) {
	addr, err := ParseAddress(address)
	if err != nil {
		e.logger.Debug("invalid dataset address", "address", address, "err", err)
		return nil, false
	}
	n, err := Resolve(doc, addr)
	if err != nil {
		e.logger.Debug("dataset address did not resolve", "address", address, "err", err)
		return nil, false
	}
	if !e.isDataset(n) {
		return nil, false
	}
	return e.build(doc, n, addr, map[*yaml.Node]bool{}), true
}

type walk struct {
	e       *Extractor
	doc     *Document
	onPath  map[*yaml.Node]bool
	seen    map[string]bool
	entries []Entry
}

func (w *walk) visit(n *yaml.Node, addr Address) {
	n = deref(n)
	if n == nil || w.onPath[n] {
		return
	}
	w.onPath[n] = true
	defer delete(w.onPath, n)

	switch n.Kind {
	case yaml.MappingNode:
		if w.e.isDataset(n) {
			key := addr.String()
			if w.seen[key] {
				return
			}
			w.seen[key] = true
			w.entries = append(w.entries, Entry{
				Address: key,
				Node:    w.e.build(w.doc, n, addr, map[*yaml.Node]bool{}),
			})
			return
		}
		w.mapping(n, addr)
	case yaml.SequenceNode:
		for i, item := range n.Content {
			if it := deref(item); it != nil && it.Kind == yaml.MappingNode {
				w.visit(it, addr.Index(i))
			}
		}
	}
}

func (w *walk) mapping(n *yaml.Node, addr Address) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		w.visit(n.Content[i+1], addr.Key(n.Content[i].Value))
	}
}

// target returns the symbol reference of a mapping, if any.
func (e *Extractor) target(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.MappingNode {
		return ""
	}
	v := deref(mappingValue(n, e.targetKey))
	if v == nil || v.Kind != yaml.ScalarNode {
		return ""
	}
	return v.Value
}

func (e *Extractor) isDataset(n *yaml.Node) bool {
	t := e.target(n)
	return t != "" && e.symbols.IsSubtype(t, e.base)
}

// params returns the parameter mapping of a definition. Without an explicit
// params key, the definition's own sibling keys are its parameters.
func (e *Extractor) params(doc *Document, n *yaml.Node) (m *yaml.Node, viaKey bool) {
	if raw := mappingValue(n, e.paramsKey); raw != nil {
		p, err := newResolver(doc).follow(raw)
		if err != nil || p.Kind != yaml.MappingNode {
			return nil, true
		}
		return p, true
	}
	return n, false
}

func (e *Extractor) build(doc *Document, n *yaml.Node, addr Address, chain map[*yaml.Node]bool) *domain.DatasetNode {
	chain[n] = true
	target := e.target(n)
	node := &domain.DatasetNode{
		Address:     addr.String(),
		Target:      target,
		DisplayName: symbols.SimpleName(target),
		Source:      domain.Position{Line: n.Line, Column: n.Column},
	}

	params, viaKey := e.params(doc, n)
	paramAddr := addr
	if viaKey {
		paramAddr = addr.Key(e.paramsKey)
	}

	var transforms *yaml.Node
	if params != nil {
		for i := 0; i+1 < len(params.Content); i += 2 {
			key := params.Content[i].Value
			raw := params.Content[i+1]

			if !viaKey && (key == e.targetKey || key == e.paramsKey) {
				continue
			}
			if key == e.transformsKey {
				transforms = raw
				continue
			}

			resolved, err := newResolver(doc).follow(raw)
			if err == nil && node.Wrapped == nil && resolved.Kind == yaml.MappingNode && e.isDataset(resolved) {
				if chain[resolved] {
					node.Warnings = append(node.Warnings, "wrapped dataset "+key+" refers back to its wrapper")
					continue
				}
				node.Wrapped = e.build(doc, resolved, paramAddr.Key(key), chain)
				continue
			}

			if slices.Contains(e.dataRootKeys, key) && node.DataRoot == "" {
				if v := deref(raw); v != nil && v.Kind == yaml.ScalarNode {
					node.DataRootKey = key
					if err == nil && resolved.Kind == yaml.ScalarNode {
						node.DataRoot = resolved.Value
					} else {
						node.DataRoot = v.Value
					}
					if _, isRef := referenceOf(raw); raw.Kind == yaml.ScalarNode && !isRef {
						node.DataRootAt = domain.Position{Line: raw.Line, Column: raw.Column}
					}
				}
			}

			node.Params = append(node.Params, domain.Param{
				Name:  key,
				Value: Truncate(Render(raw), e.previewLength),
			})
		}
	}
	if transforms == nil && viaKey {
		transforms = mappingValue(n, e.transformsKey)
	}
	if transforms != nil {
		steps, warning := e.transforms(doc, transforms)
		node.Transforms = steps
		if warning != "" {
			node.Warnings = append(node.Warnings, warning)
		}
	}

	delete(chain, n)
	return node
}
