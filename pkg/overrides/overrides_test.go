package overrides_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/overrides"
	"github.com/aretw0/pipeprobe/pkg/symbols"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

const pipelineYAML = `paths:
  val: /data/val
train:
  _target: srforge.dataset.patched.PatchedDataset
  params:
    root: '/data/patches'   # cached patches
    dataset:
      _target: srforge.dataset.image.ImageDataset
      params:
        root: /data/train
        scale: 4
valid:
  _target: srforge.dataset.image.ImageDataset
  params:
    root: ${paths.val}
quoted:
  _target: srforge.dataset.image.ImageDataset
  params: {root: "/data/q", scale: 2}
`

func extractor() *topology.Extractor {
	table := symbols.NewTable(
		symbols.Record{Module: "srforge.dataset", Name: "Dataset"},
		symbols.Record{Module: "srforge.dataset.image", Name: "ImageDataset", Bases: []string{"srforge.dataset.Dataset"}},
		symbols.Record{Module: "srforge.dataset.patched", Name: "PatchedDataset", Bases: []string{"srforge.dataset.Dataset"}},
	)
	return topology.New(table)
}

func writePipeline(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipelineYAML), 0o644))
	return path
}

func load(t *testing.T, path, address string) (*topology.Document, *domain.DatasetNode) {
	t.Helper()
	doc, err := topology.Parse(path)
	require.NoError(t, err)
	node, ok := extractor().ExtractAt(doc, address)
	require.True(t, ok)
	return doc, node
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApply_ReturnsCopy(t *testing.T) {
	_, node := load(t, writePipeline(t), "train")

	out := overrides.Apply(node, map[string]string{"/data/train": "/mnt/train"})

	assert.Equal(t, "/mnt/train", out.Wrapped.DataRoot)
	value, _ := out.Wrapped.Param("root")
	assert.Equal(t, "/mnt/train", value)
	assert.Equal(t, "/data/patches", out.DataRoot)

	assert.Equal(t, "/data/train", node.Wrapped.DataRoot, "input must not change")
	original, _ := node.Wrapped.Param("root")
	assert.Equal(t, "/data/train", original)
}

func TestRoots(t *testing.T) {
	_, node := load(t, writePipeline(t), "train")
	assert.Equal(t, []string{"/data/train", "/data/patches"}, overrides.Roots(node))
}

func TestPersist_PreservesQuoteStyleAndComments(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "train")

	edits, err := overrides.Persist(context.Background(), doc, node, map[string]string{
		"/data/train":   "/mnt/train",
		"/data/patches": "/mnt/it's here",
	})
	require.NoError(t, err)
	require.Len(t, edits, 2)

	content := read(t, path)
	assert.Contains(t, content, "root: '/mnt/it''s here'   # cached patches")
	assert.Contains(t, content, "        root: /mnt/train\n")
	assert.Contains(t, content, "    root: ${paths.val}\n", "unrelated text is untouched")

	_, reloaded := load(t, path, "train")
	assert.Equal(t, "/mnt/it's here", reloaded.DataRoot)
	assert.Equal(t, "/mnt/train", reloaded.Wrapped.DataRoot)
}

func TestPersist_FlowMappingDoubleQuoted(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "quoted")

	_, err := overrides.Persist(context.Background(), doc, node, map[string]string{"/data/q": `/mnt/"q"`})
	require.NoError(t, err)

	assert.Contains(t, read(t, path), `params: {root: "/mnt/\"q\"", scale: 2}`)
	_, reloaded := load(t, path, "quoted")
	assert.Equal(t, `/mnt/"q"`, reloaded.DataRoot)
}

func TestPersist_PlainValueGetsQuotedWhenNeeded(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "train")

	_, err := overrides.Persist(context.Background(), doc, node, map[string]string{"/data/train": "/mnt/a: b"})
	require.NoError(t, err)

	_, reloaded := load(t, path, "train")
	assert.Equal(t, "/mnt/a: b", reloaded.Wrapped.DataRoot)
}

func TestPersist_RefusesChangedFile(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "train")

	edited := pipelineYAML + "# touched\n"
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	_, err := overrides.Persist(context.Background(), doc, node, map[string]string{"/data/train": "/mnt/train"})
	assert.ErrorIs(t, err, domain.ErrDocumentChanged)
	assert.Equal(t, edited, read(t, path))
}

func TestPersist_ReferenceRootIsNotEditable(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "valid")
	require.Equal(t, "/data/val", node.DataRoot)

	_, err := overrides.Persist(context.Background(), doc, node, map[string]string{"/data/val": "/mnt/val"})
	assert.ErrorIs(t, err, overrides.ErrNotEditable)
	assert.Equal(t, pipelineYAML, read(t, path))
}

func TestPersist_TokenMismatchRejectsEverything(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "train")

	// Shift the recorded position of the inner root by one column.
	node.Wrapped.DataRootAt.Column++

	_, err := overrides.Persist(context.Background(), doc, node, map[string]string{
		"/data/train":   "/mnt/train",
		"/data/patches": "/mnt/patches",
	})
	assert.ErrorIs(t, err, overrides.ErrTokenMismatch)
	assert.Equal(t, pipelineYAML, read(t, path), "no partial write")
}

func TestPersist_NothingToDo(t *testing.T) {
	path := writePipeline(t)
	doc, node := load(t, path, "train")

	edits, err := overrides.Persist(context.Background(), doc, node, map[string]string{"/elsewhere": "/mnt"})
	require.NoError(t, err)
	assert.Empty(t, edits)
	assert.Equal(t, pipelineYAML, read(t, path))
}

func TestPersistFile(t *testing.T) {
	path := writePipeline(t)

	edits, err := overrides.PersistFile(context.Background(), extractor(), path, "train.params.dataset", map[string]string{"/data/train": "/mnt/t"})
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "root", edits[0].Key)
	assert.Equal(t, "/data/train", edits[0].Old)

	_, err = overrides.PersistFile(context.Background(), extractor(), path, "paths", nil)
	assert.ErrorIs(t, err, domain.ErrNotADataset)
}
