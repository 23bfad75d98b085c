package symbols

import "strings"

// Record is a pre-resolved class symbol.
type Record struct {
	Module string
	Name   string
	// Bases are references to direct supertypes, in declaration order.
	Bases []string
	Doc   string
}

// QualifiedName returns module.Name.
func (r Record) QualifiedName() string {
	if r.Module == "" {
		return r.Name
	}
	return r.Module + "." + r.Name
}

// reexported reports whether the record may be referenced by its bare module path.
func (r Record) reexported() bool {
	return r.Module != "" && lastSegment(r.Module) == r.Name
}

// Table indexes records by qualified name and by module.
type Table struct {
	byName   map[string][]*Record
	byModule map[string][]*Record
}

// NewTable builds a table from records.
func NewTable(records ...Record) *Table {
	t := &Table{
		byName:   make(map[string][]*Record),
		byModule: make(map[string][]*Record),
	}
	for _, r := range records {
		t.Add(r)
	}
	return t
}

// Add registers a record. Registering the same qualified name twice makes it ambiguous.
func (t *Table) Add(r Record) {
	rec := &r
	q := rec.QualifiedName()
	t.byName[q] = append(t.byName[q], rec)
	if rec.reexported() {
		t.byModule[rec.Module] = append(t.byModule[rec.Module], rec)
	}
}

// Len returns the number of distinct qualified names.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byName)
}

// Lookup resolves a reference to a single record.
func (t *Table) Lookup(ref string) (*Record, bool) {
	if t == nil || ref == "" {
		return nil, false
	}
	if exact := t.byName[ref]; len(exact) > 0 {
		if len(exact) > 1 {
			return nil, false
		}
		return exact[0], true
	}
	if candidates := t.byModule[ref]; len(candidates) == 1 {
		return candidates[0], true
	}
	return nil, false
}

// IsSubtype reports whether ref names base or a (transitive) subtype of it.
// The walk is depth-first over declared bases with a visited set, so cyclic
// graphs terminate. Bases that cannot be resolved end their branch, and an
// unresolvable base never matches.
func (t *Table) IsSubtype(ref, base string) bool {
	start, ok := t.Lookup(ref)
	if !ok {
		return false
	}
	target, ok := t.Lookup(base)
	if !ok {
		return false
	}

	visited := make(map[*Record]bool)
	stack := []*Record{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		if cur == target {
			return true
		}

		for i := len(cur.Bases) - 1; i >= 0; i-- {
			if next, ok := t.Lookup(cur.Bases[i]); ok && !visited[next] {
				stack = append(stack, next)
			}
		}
	}
	return false
}

// Supertypes returns the resolved supertype chain of ref in walk order, ref first.
func (t *Table) Supertypes(ref string) []string {
	start, ok := t.Lookup(ref)
	if !ok {
		return nil
	}
	var out []string
	visited := make(map[*Record]bool)
	stack := []*Record{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, cur.QualifiedName())
		for i := len(cur.Bases) - 1; i >= 0; i-- {
			if next, ok := t.Lookup(cur.Bases[i]); ok {
				stack = append(stack, next)
			}
		}
	}
	return out
}

// SimpleName returns the final dotted segment of a reference.
func SimpleName(ref string) string {
	return lastSegment(ref)
}

func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}
