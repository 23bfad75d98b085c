package process

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/aretw0/pipeprobe/pkg/symbols"
)

// IndexMarker prefixes the single result line of the index script.
const IndexMarker = "===PROBE_INDEX==="

// ErrNoIndex is returned when the index script produced no result line.
var ErrNoIndex = errors.New("index script produced no result")

type indexRequest struct {
	Modules      []string `json:"modules"`
	ProjectPaths []string `json:"projectPaths"`
}

// Index imports the given modules in the interpreter and builds a symbol table
// from every class they define, including base classes from other modules.
func (r *Runner) Index(ctx context.Context, modules []string, projectPaths []string) (*symbols.Table, error) {
	ctx, span := r.tracer.Start(ctx, "probe.index")
	defer span.End()

	it, err := r.ResolveInterpreter()
	if err != nil {
		return nil, err
	}

	scriptPath, err := r.writeTemp("pipeprobe-index-*.py", r.indexScript)
	if err != nil {
		return nil, err
	}
	defer os.Remove(scriptPath)

	payload, err := json.Marshal(indexRequest{Modules: modules, ProjectPaths: projectPaths})
	if err != nil {
		return nil, fmt.Errorf("failed to encode index request: %w", err)
	}
	requestPath, err := r.writeTemp("pipeprobe-index-*.json", payload)
	if err != nil {
		return nil, err
	}
	defer os.Remove(requestPath)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrTailSize)

	args := append(append([]string{}, it.Args...), scriptPath, requestPath)
	cmd := exec.CommandContext(ctx, it.Command, args...)
	cmd.Dir = r.workDir
	cmd.Env = r.environ(it, projectPaths)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error { return r.stop(cmd.Process) }
	cmd.WaitDelay = r.killGrace

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("index aborted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("index script failed: %w\n%s", err, stderr.String())
	}

	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, IndexMarker) {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line[len(IndexMarker):]), &raw); err != nil {
			return nil, fmt.Errorf("malformed index result: %w", err)
		}
		t, err := symbols.Decode(raw)
		if err != nil {
			return nil, err
		}
		r.logger.Info("symbol index built", "modules", modules, "records", t.Len())
		return t, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index output: %w", err)
	}
	return nil, ErrNoIndex
}
