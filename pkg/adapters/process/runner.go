package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

const (
	// DefaultTimeout bounds a single probe run.
	DefaultTimeout = 120 * time.Second

	// DefaultKillGrace is how long a stopped process may take to exit before it is killed.
	DefaultKillGrace = 5 * time.Second

	// DefaultCompleteGrace is how long the process may linger after reporting completion.
	DefaultCompleteGrace = 5 * time.Second

	stderrTailSize = 64 * 1024
	eventBuffer    = 64
)

// Runner launches probe processes and turns their output into events.
// A Runner is safe for concurrent use; every call gets its own process and temp files.
type Runner struct {
	interpreter   string
	discover      bool
	registry      map[string]InterpreterConfig
	timeout       time.Duration
	killGrace     time.Duration
	completeGrace time.Duration
	script        []byte
	indexScript   []byte
	workDir       string
	tempDir       string
	env           []string
	hooks         domain.RunHooks
	logger        *slog.Logger
	tracer        trace.Tracer
	validate      *validator.Validate
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithInterpreter sets the interpreter: a registry name, an executable on PATH or a path.
func WithInterpreter(nameOrPath string) RunnerOption {
	return func(r *Runner) { r.interpreter = nameOrPath }
}

// WithDiscovery enables looking up python3, then python, when no interpreter is configured.
func WithDiscovery(enabled bool) RunnerOption {
	return func(r *Runner) { r.discover = enabled }
}

// WithRegistry adds named interpreters loaded from a registry file.
func WithRegistry(interpreters map[string]InterpreterConfig) RunnerOption {
	return func(r *Runner) {
		for name, it := range interpreters {
			r.registry[name] = it
		}
	}
}

// WithTimeout bounds each run. Zero disables the timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.timeout = d }
}

// WithKillGrace sets how long an interrupted process may take to exit before being killed.
func WithKillGrace(d time.Duration) RunnerOption {
	return func(r *Runner) { r.killGrace = d }
}

// WithCompleteGrace sets how long the process may keep running after it reported completion.
func WithCompleteGrace(d time.Duration) RunnerOption {
	return func(r *Runner) { r.completeGrace = d }
}

// WithScript replaces the embedded probe script.
func WithScript(body []byte) RunnerOption {
	return func(r *Runner) { r.script = body }
}

// WithIndexScript replaces the embedded index script.
func WithIndexScript(body []byte) RunnerOption {
	return func(r *Runner) { r.indexScript = body }
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) { r.workDir = dir }
}

// WithTempDir sets where per-run temp files are created (default os.TempDir).
func WithTempDir(dir string) RunnerOption {
	return func(r *Runner) { r.tempDir = dir }
}

// WithEnv adds KEY=VALUE entries to the process environment.
func WithEnv(kv ...string) RunnerOption {
	return func(r *Runner) { r.env = append(r.env, kv...) }
}

// WithHooks installs observability callbacks.
func WithHooks(h domain.RunHooks) RunnerOption {
	return func(r *Runner) { r.hooks = h }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithTracer sets the tracer used for run spans.
func WithTracer(t trace.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner creates a new probe Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:      make(map[string]InterpreterConfig),
		timeout:       DefaultTimeout,
		killGrace:     DefaultKillGrace,
		completeGrace: DefaultCompleteGrace,
		script:        ProbeScript,
		indexScript:   IndexScript,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:        otel.Tracer("github.com/aretw0/pipeprobe/pkg/adapters/process"),
		validate:      validator.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a named interpreter.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = InterpreterConfig{
		Name:    name,
		Command: command,
		Args:    args,
	}
}

// Timeout returns the configured per-run timeout.
func (r *Runner) Timeout() time.Duration {
	return r.timeout
}

// Interpreter is a resolved executable plus its fixed arguments and environment.
type Interpreter struct {
	Command    string
	Args       []string
	Env        map[string]string
	PythonPath []string
}

// ResolveInterpreter finds the executable to run.
func (r *Runner) ResolveInterpreter() (Interpreter, error) {
	if r.interpreter != "" {
		if it, ok := r.registry[r.interpreter]; ok {
			path, err := exec.LookPath(it.Command)
			if err != nil {
				return Interpreter{}, fmt.Errorf("%w: interpreter %q (%s) not found: %v", domain.ErrNoInterpreter, it.Name, it.Command, err)
			}
			return Interpreter{Command: path, Args: it.Args, Env: it.Environment, PythonPath: it.PythonPath}, nil
		}
		path, err := exec.LookPath(r.interpreter)
		if err != nil {
			return Interpreter{}, fmt.Errorf("%w: %s not found: %v", domain.ErrNoInterpreter, r.interpreter, err)
		}
		return Interpreter{Command: path}, nil
	}

	if r.discover {
		for _, candidate := range []string{"python3", "python"} {
			if path, err := exec.LookPath(candidate); err == nil {
				return Interpreter{Command: path}, nil
			}
		}
	}
	return Interpreter{}, domain.ErrNoInterpreter
}

// environ builds the child environment: UTF-8 stdio, no bytecode caching and
// project paths ahead of any inherited PYTHONPATH.
func (r *Runner) environ(it Interpreter, projectPaths []string) []string {
	env := append(os.Environ(),
		"PYTHONUTF8=1",
		"PYTHONIOENCODING=utf-8",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
	)

	if len(projectPaths) > 0 || len(it.PythonPath) > 0 {
		paths := append(append([]string{}, projectPaths...), it.PythonPath...)
		if existing := os.Getenv("PYTHONPATH"); existing != "" {
			paths = append(paths, existing)
		}
		env = append(env, "PYTHONPATH="+strings.Join(paths, string(os.PathListSeparator)))
	}

	keys := make([]string, 0, len(it.Env))
	for k := range it.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+it.Env[k])
	}

	return append(env, r.env...)
}

// writeTemp stores data in a private, uniquely named temp file.
func (r *Runner) writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(r.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return path, nil
}

// stop asks p to exit. Without a kill grace nothing would ever escalate an
// ignored interrupt, so the process is killed outright.
func (r *Runner) stop(p *os.Process) error {
	if p == nil {
		return nil
	}
	if r.killGrace <= 0 {
		return p.Kill()
	}
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
