package topology

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/symbols"
)

const (
	wrappedTransformKey = "transform"
	wrappedIOKey        = "io"
)

// transforms resolves a transform declaration into steps. The declaration is
// either an inline list or a single reference to a list elsewhere in the
// document. A list mixing inline items with references is not supported and
// yields no steps and a warning.
func (e *Extractor) transforms(doc *Document, raw *yaml.Node) ([]domain.TransformStep, string) {
	list := deref(raw)
	if list == nil {
		return nil, ""
	}
	if list.Kind == yaml.ScalarNode {
		if list.Tag == "!!null" {
			return nil, ""
		}
		if _, ok := referenceOf(list); !ok {
			return nil, fmt.Sprintf("transforms %q is neither a list nor a reference", list.Value)
		}
		resolved, err := newResolver(doc).follow(list)
		if err != nil {
			return nil, "transforms reference did not resolve: " + err.Error()
		}
		list = resolved
	}
	if list.Kind != yaml.SequenceNode {
		return nil, "transforms does not resolve to a list"
	}

	inline, refs := 0, 0
	for _, item := range list.Content {
		if _, ok := referenceOf(deref(item)); ok {
			refs++
		} else {
			inline++
		}
	}
	if refs > 0 && inline > 0 {
		return nil, "transforms list mixes inline items with references; not supported"
	}

	var steps []domain.TransformStep
	for _, item := range list.Content {
		n := deref(item)
		if refs > 0 {
			resolved, err := newResolver(doc).follow(n)
			if err != nil {
				e.logger.Debug("transform reference did not resolve", "value", n.Value, "err", err)
				continue
			}
			n = resolved
		}
		step, ok := e.step(doc, n)
		if !ok {
			continue
		}
		step.Index = len(steps)
		steps = append(steps, step)
	}
	return steps, ""
}

// step parses one transform item. Two shapes are understood:
//
//	- _target: pkg.Normalize          (direct signature)
//	  params: {mean: 0.5}
//
//	- transform: {_target: pkg.Crop}  (wrapped signature)
//	  io: {inputs: {x: lr}}
func (e *Extractor) step(doc *Document, n *yaml.Node) (domain.TransformStep, bool) {
	if n == nil || n.Kind != yaml.MappingNode {
		return domain.TransformStep{}, false
	}

	def := n
	var io string
	if e.target(n) == "" {
		inner := mappingValue(n, wrappedTransformKey)
		if inner == nil {
			return domain.TransformStep{}, false
		}
		resolved, err := newResolver(doc).follow(inner)
		if err != nil || e.target(resolved) == "" {
			return domain.TransformStep{}, false
		}
		def = resolved
		if ioNode := mappingValue(n, wrappedIOKey); ioNode != nil {
			io = Render(ioNode)
		}
	}

	target := e.target(def)
	step := domain.TransformStep{
		Target:      target,
		DisplayName: symbols.SimpleName(target),
		IO:          io,
	}

	params, viaKey := e.params(doc, def)
	if params == nil {
		return step, true
	}
	for i := 0; i+1 < len(params.Content); i += 2 {
		key := params.Content[i].Value
		if !viaKey && key == e.targetKey {
			continue
		}
		step.Params = append(step.Params, domain.Param{
			Name:  key,
			Value: Truncate(Render(params.Content[i+1]), e.previewLength),
		})
	}
	return step, true
}
