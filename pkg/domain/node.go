package domain

// Position is the origin location of a configuration node (1-based).
// It is retained only to support later text edits of the source document.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// IsZero reports whether the position was never recorded.
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}

// Param is a single literal parameter rendered for display.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DatasetNode represents a configuration subtree recognized as a dataset.
type DatasetNode struct {
	// Address locates the node within the document (e.g. "train.dataset.params.inner").
	Address string `json:"address"`

	// Target is the constructible symbol reference (fully qualified).
	Target string `json:"target"`

	// DisplayName is the simple name of the target symbol.
	DisplayName string `json:"displayName"`

	// Params holds literal parameter values in document order.
	// Nested datasets and transform lists are not included.
	Params []Param `json:"params,omitempty"`

	// Transforms is the ordered per-entry transform list.
	Transforms []TransformStep `json:"transforms,omitempty"`

	// Wrapped is the inner dataset this one decorates, if any.
	// The chain is exclusively owned and cycle-free.
	Wrapped *DatasetNode `json:"wrapped,omitempty"`

	// DataRoot is the filesystem path parameter, if one was detected.
	DataRoot    string   `json:"dataRoot,omitempty"`
	DataRootKey string   `json:"dataRootKey,omitempty"`
	DataRootAt  Position `json:"dataRootAt,omitzero"`

	Source Position `json:"source"`

	// Warnings collects non-fatal extraction problems (e.g. unsupported transform lists).
	Warnings []string `json:"warnings,omitempty"`
}

// Param returns the display value of a named parameter.
func (n *DatasetNode) Param(name string) (string, bool) {
	for _, p := range n.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Chain returns the wrapped chain, innermost dataset first and n last.
func (n *DatasetNode) Chain() []*DatasetNode {
	var chain []*DatasetNode
	for cur := n; cur != nil; cur = cur.Wrapped {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Depth returns the number of datasets in the chain, including n.
func (n *DatasetNode) Depth() int {
	d := 0
	for cur := n; cur != nil; cur = cur.Wrapped {
		d++
	}
	return d
}

// TransformStep is a single transform in a dataset's pipeline.
type TransformStep struct {
	Index       int     `json:"index"`
	Target      string  `json:"target"`
	DisplayName string  `json:"displayName"`
	Params      []Param `json:"params,omitempty"`

	// IO is the rendered per-item input/output mapping of wrapped-signature steps.
	IO string `json:"io,omitempty"`
}
