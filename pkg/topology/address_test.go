package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("a.b[2].c[0][1]")
	require.NoError(t, err)

	assert.Equal(t, Address{
		{Key: "a"},
		{Key: "b", Indices: []int{2}},
		{Key: "c", Indices: []int{0, 1}},
	}, addr)
	assert.Equal(t, "a.b[2].c[0][1]", addr.String())
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, s := range []string{"", "a..b", "[1]", "a[x]", "a[-1]", "a[1", "a]b", "a[1]b"} {
		_, err := ParseAddress(s)
		assert.Truef(t, errors.Is(err, domain.ErrInvalidAddress), "address %q", s)
	}
}

func TestAddress_KeyAndIndexDoNotAlias(t *testing.T) {
	base, err := ParseAddress("a.b")
	require.NoError(t, err)

	first := base.Index(0)
	second := base.Index(1)
	child := base.Key("c")

	assert.Equal(t, "a.b[0]", first.String())
	assert.Equal(t, "a.b[1]", second.String())
	assert.Equal(t, "a.b.c", child.String())
	assert.Equal(t, "a.b", base.String())
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in   string
		path string
		ok   bool
	}{
		{"%{paths.data}", "paths.data", true},
		{" %{ sets.one[0] } ", "sets.one[0]", true},
		{"${ref:sets.one}", "sets.one", true},
		{"${paths.root}", "paths.root", true},
		{"${oc.env:HOME}", "", false},
		{"/data/%{x}", "", false},
		{"plain", "", false},
	}
	for _, tt := range tests {
		path, ok := ParseReference(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.path, path, tt.in)
	}
}

func TestResolve(t *testing.T) {
	doc := parse(t, `items: [a, b, c]
alias: "%{items}"
chain: "%{alias}"
`)

	addr, _ := ParseAddress("chain[2]")
	n, err := Resolve(doc, addr)
	require.NoError(t, err)
	assert.Equal(t, "c", n.Value)

	addr, _ = ParseAddress("items[3]")
	_, err = Resolve(doc, addr)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	_, err = ResolveReference(doc, "%{missing.key}")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)
}

func TestResolve_Cycle(t *testing.T) {
	doc := parse(t, `x: "%{y}"
y: "%{x}"
`)
	_, err := ResolveReference(doc, "%{x}")
	assert.ErrorIs(t, err, domain.ErrReferenceCycle)
}

func TestParseBytes_QuotesBareReferences(t *testing.T) {
	doc := parse(t, "a: %{b.c}\nb:\n  c: 1\n")

	addr, _ := ParseAddress("a")
	n, err := Resolve(doc, addr)
	require.NoError(t, err)
	assert.Equal(t, "1", n.Value)
	assert.Equal(t, "a: %{b.c}\nb:\n  c: 1\n", string(doc.Source))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "anything", Truncate("anything", 0))
}
