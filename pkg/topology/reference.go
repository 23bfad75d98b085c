package topology

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

var (
	// %{path} references.
	percentRef = regexp.MustCompile(`^%\{\s*([^{}\s]+)\s*\}$`)
	// ${ref:path} resolver references and plain ${path} interpolations.
	dollarRef = regexp.MustCompile(`^\$\{\s*(?:ref:\s*)?([A-Za-z_][\w.\[\]]*)\s*\}$`)
)

// ParseReference reports whether a scalar is exactly one indirection reference
// and returns the path it points to.
func ParseReference(value string) (string, bool) {
	v := strings.TrimSpace(value)
	if m := percentRef.FindStringSubmatch(v); m != nil {
		return m[1], true
	}
	if m := dollarRef.FindStringSubmatch(v); m != nil {
		return m[1], true
	}
	return "", false
}

func referenceOf(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return ParseReference(n.Value)
}

// resolver follows aliases and references through one document.
// The visited set is shared across every hop of a single resolution, so a
// chain that revisits a path fails instead of looping.
type resolver struct {
	root    *yaml.Node
	visited map[string]bool
}

func newResolver(doc *Document) *resolver {
	return &resolver{root: doc.Root, visited: make(map[string]bool)}
}

// follow dereferences n until it is neither an alias nor a reference.
func (r *resolver) follow(n *yaml.Node) (*yaml.Node, error) {
	for hops := 0; n != nil; hops++ {
		if n.Kind == yaml.AliasNode {
			if n.Alias == nil || hops > maxAliasHops {
				return nil, fmt.Errorf("%w: dangling alias", domain.ErrUnresolvedReference)
			}
			n = n.Alias
			continue
		}
		path, ok := referenceOf(n)
		if !ok {
			return n, nil
		}
		if r.visited[path] {
			return nil, fmt.Errorf("%w: %s", domain.ErrReferenceCycle, path)
		}
		r.visited[path] = true

		addr, err := ParseAddress(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnresolvedReference, path)
		}
		target, err := r.lookup(addr)
		if err != nil {
			return nil, err
		}
		n = target
	}
	return nil, fmt.Errorf("%w: empty node", domain.ErrUnresolvedReference)
}

// lookup navigates addr from the document root, following references at every hop.
func (r *resolver) lookup(addr Address) (*yaml.Node, error) {
	cur := r.root
	for _, seg := range addr {
		n, err := r.follow(cur)
		if err != nil {
			return nil, err
		}
		if n.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: %q is not inside a mapping", domain.ErrNodeNotFound, seg.Key)
		}
		next := mappingValue(n, seg.Key)
		if next == nil {
			return nil, fmt.Errorf("%w: key %q", domain.ErrNodeNotFound, seg.Key)
		}
		cur = next

		for _, idx := range seg.Indices {
			n, err := r.follow(cur)
			if err != nil {
				return nil, err
			}
			if n.Kind != yaml.SequenceNode {
				return nil, fmt.Errorf("%w: %q is not a list", domain.ErrNodeNotFound, seg.Key)
			}
			if idx >= len(n.Content) {
				return nil, fmt.Errorf("%w: index %d out of range for %q (len %d)", domain.ErrNodeNotFound, idx, seg.Key, len(n.Content))
			}
			cur = n.Content[idx]
		}
	}
	return r.follow(cur)
}

// Resolve navigates to addr, following aliases and references, and returns the terminal node.
func Resolve(doc *Document, addr Address) (*yaml.Node, error) {
	return newResolver(doc).lookup(addr)
}

// ResolveReference follows a reference string (e.g. "%{a.b}") to its terminal node.
func ResolveReference(doc *Document, ref string) (*yaml.Node, error) {
	path, ok := ParseReference(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a reference", domain.ErrUnresolvedReference, ref)
	}
	addr, err := ParseAddress(path)
	if err != nil {
		return nil, err
	}
	r := newResolver(doc)
	r.visited[path] = true
	return r.lookup(addr)
}

const maxAliasHops = 64

// mappingValue returns the value node for key, or nil.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// mappingKey returns the key node for key, or nil.
func mappingKey(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i]
		}
	}
	return nil
}

// deref follows aliases only.
func deref(n *yaml.Node) *yaml.Node {
	for hops := 0; n != nil && n.Kind == yaml.AliasNode && hops <= maxAliasHops; hops++ {
		n = n.Alias
	}
	return n
}
