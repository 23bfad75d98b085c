package overrides

import (
	"github.com/aretw0/pipeprobe/pkg/domain"
)

// Apply returns a copy of node's chain with every data root found in
// overrides (original value to replacement) replaced. node is not modified.
func Apply(node *domain.DatasetNode, overrides map[string]string) *domain.DatasetNode {
	if node == nil {
		return nil
	}
	cp := *node
	cp.Params = append([]domain.Param(nil), node.Params...)
	cp.Transforms = append([]domain.TransformStep(nil), node.Transforms...)
	cp.Warnings = append([]string(nil), node.Warnings...)
	cp.Wrapped = Apply(node.Wrapped, overrides)

	if replacement, ok := overrides[node.DataRoot]; ok && node.DataRoot != "" {
		cp.DataRoot = replacement
		for i, p := range cp.Params {
			if p.Name == node.DataRootKey {
				cp.Params[i].Value = replacement
			}
		}
	}
	return &cp
}

// Roots lists the data roots of node's chain, innermost first, skipping
// datasets without one.
func Roots(node *domain.DatasetNode) []string {
	var out []string
	for _, n := range node.Chain() {
		if n.DataRoot != "" {
			out = append(out, n.DataRoot)
		}
	}
	return out
}
