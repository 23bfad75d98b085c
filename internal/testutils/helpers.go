package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe/pkg/symbols"
)

// Pipeline is a small training configuration with a wrapped dataset, a
// referenced transform set and a standalone validation dataset.
const Pipeline = `transform_sets:
  basic:
    - _target: srforge.transform.Normalize
      params:
        mean: 0.5
    - _target: srforge.transform.Crop
      params: {size: 64}
train:
  dataset:
    _target: srforge.dataset.patched.PatchedDataset
    params:
      patch_size: 32
      dataset:
        _target: srforge.dataset.image.ImageDataset
        params:
          root: /data/train
          transforms: %{transform_sets.basic}
valid:
  _target: srforge.dataset.image.ImageDataset
  params:
    root: /data/val
`

// Table returns symbols covering Pipeline.
func Table() *symbols.Table {
	return symbols.NewTable(
		symbols.Record{Module: "srforge.dataset", Name: "Dataset"},
		symbols.Record{Module: "srforge.dataset.image", Name: "ImageDataset", Bases: []string{"srforge.dataset.Dataset"}},
		symbols.Record{Module: "srforge.dataset.patched", Name: "PatchedDataset", Bases: []string{"srforge.dataset.Dataset"}},
		symbols.Record{Module: "srforge.transform", Name: "Normalize"},
		symbols.Record{Module: "srforge.transform", Name: "Crop"},
	)
}

// WriteFile creates name with content in a fresh temp dir and returns its absolute path.
// It fails the test immediately on error.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join(t.TempDir(), name))
	require.NoError(t, err, "Failed to get absolute path for temp file")
	require.NoError(t, os.WriteFile(absPath, []byte(content), 0o644), "Failed to write temp file")

	return absPath
}
