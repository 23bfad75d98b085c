package process_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe/pkg/adapters/process"
	"github.com/aretw0/pipeprobe/pkg/domain"
)

func TestLoadInterpreters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "interpreters.yaml")
	t.Setenv("PIPEPROBE_TEST_DEVICE", "1")
	require.NoError(t, os.WriteFile(path, []byte(`
interpreters:
  - name: venv
    venv: .venv
    args: ["-X", "dev"]
    env:
      CUDA_VISIBLE_DEVICES: ${PIPEPROBE_TEST_DEVICE}
      TORCH_HOME: ${VENV}/torch
    pythonpath: [src, /opt/shared]
    description: project virtualenv
  - name: system
    command: python3
  - name: local
    command: tools/python
`), 0o644))

	registry, err := process.LoadInterpreters(path)
	require.NoError(t, err)
	require.Len(t, registry, 3)

	venv := registry["venv"]
	assert.Equal(t, filepath.Join(dir, ".venv"), venv.Venv)
	if runtime.GOOS != "windows" {
		assert.Equal(t, filepath.Join(dir, ".venv", "bin", "python"), venv.Command)
	}
	assert.Equal(t, []string{"-X", "dev"}, venv.Args)
	assert.Equal(t, "1", venv.Environment["CUDA_VISIBLE_DEVICES"])
	assert.Equal(t, filepath.Join(dir, ".venv")+"/torch", venv.Environment["TORCH_HOME"])
	assert.Equal(t, []string{filepath.Join(dir, "src"), filepath.Clean("/opt/shared")}, venv.PythonPath)

	assert.Equal(t, "python3", registry["system"].Command, "bare names are looked up on PATH")
	assert.Equal(t, filepath.Join(dir, "tools", "python"), registry["local"].Command)
}

func TestLoadInterpreters_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing command":    "interpreters:\n  - name: broken\n",
		"command and venv":   "interpreters:\n  - name: both\n    command: python3\n    venv: .venv\n",
		"missing name":       "interpreters:\n  - command: python3\n",
		"duplicate name":     "interpreters:\n  - name: py\n    command: python3\n  - name: py\n    command: python\n",
		"malformed document": "interpreters: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "interpreters.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := process.LoadInterpreters(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadInterpreters_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interpreters.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"interpreters":[{"name":"py","command":"python3"}]}`), 0o644))

	registry, err := process.LoadInterpreters(path)
	require.NoError(t, err)
	assert.Equal(t, "python3", registry["py"].Command)
}

func TestLoadInterpreters_Missing(t *testing.T) {
	registry, err := process.LoadInterpreters(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, registry)
}

func TestResolveInterpreter(t *testing.T) {
	t.Run("registry entry wins over PATH lookup", func(t *testing.T) {
		r := process.NewRunner(
			process.WithInterpreter("venv"),
			process.WithRegistry(map[string]process.InterpreterConfig{
				"venv": {Name: "venv", Command: fakePython, Args: []string{"-u"}, Environment: map[string]string{"A": "1"}},
			}),
		)
		it, err := r.ResolveInterpreter()
		require.NoError(t, err)
		assert.Equal(t, fakePython, it.Command)
		assert.Equal(t, []string{"-u"}, it.Args)
		assert.Equal(t, "1", it.Env["A"])
	})

	t.Run("unknown interpreter", func(t *testing.T) {
		r := process.NewRunner(process.WithInterpreter("definitely-not-a-python-binary"))
		_, err := r.ResolveInterpreter()
		assert.ErrorIs(t, err, domain.ErrNoInterpreter)
	})

	t.Run("discovery disabled", func(t *testing.T) {
		r := process.NewRunner()
		_, err := r.ResolveInterpreter()
		assert.ErrorIs(t, err, domain.ErrNoInterpreter)
	})
}

func TestIndex(t *testing.T) {
	tempDir := t.TempDir()
	r := process.NewRunner(
		process.WithInterpreter(fakePython),
		process.WithIndexScript([]byte("index")),
		process.WithTempDir(tempDir),
	)

	table, err := r.Index(context.Background(), []string{"pkg"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.True(t, table.IsSubtype("pkg.image.ImageDataset", "pkg.Dataset"))
	assertNoTempFiles(t, tempDir)
}

func TestIndex_NoResult(t *testing.T) {
	r := process.NewRunner(
		process.WithInterpreter(fakePython),
		process.WithIndexScript([]byte("silent")),
		process.WithTempDir(t.TempDir()),
	)

	_, err := r.Index(context.Background(), []string{"pkg"}, nil)
	assert.ErrorIs(t, err, process.ErrNoIndex)
}

func TestIndex_ScriptFailure(t *testing.T) {
	r := process.NewRunner(
		process.WithInterpreter(fakePython),
		process.WithIndexScript([]byte("crash")),
		process.WithTempDir(t.TempDir()),
	)

	_, err := r.Index(context.Background(), []string{"pkg"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RuntimeError: boom")
}
