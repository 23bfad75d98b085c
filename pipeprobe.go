package pipeprobe

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/pipeprobe/pkg/adapters/process"
	"github.com/aretw0/pipeprobe/pkg/config"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/observability"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
	"github.com/aretw0/pipeprobe/pkg/overrides"
	"github.com/aretw0/pipeprobe/pkg/ports"
	"github.com/aretw0/pipeprobe/pkg/session"
	"github.com/aretw0/pipeprobe/pkg/symbols"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

//go:embed VERSION
var version string

// Version is the release of this module.
var Version = strings.TrimSpace(version)

// ErrIndexUnsupported is returned by Index when the configured prober cannot build symbol tables.
var ErrIndexUnsupported = errors.New("prober does not support indexing")

// Indexer builds a symbol table by importing modules in the interpreter.
type Indexer interface {
	Index(ctx context.Context, modules []string, projectPaths []string) (*symbols.Table, error)
}

// Probe is the high-level entry point of the library.
// It ties extraction, probe runs and sessions together under one set of settings.
type Probe struct {
	settings config.Settings

	mu        sync.RWMutex
	table     *symbols.Table
	extractor *topology.Extractor

	prober   ports.Prober
	sessions *session.Manager
	locker   ports.DistributedLocker
	metrics  *observability.Metrics
	hooks    domain.RunHooks
	logger   *slog.Logger

	hasSettings bool
}

// Option defines a functional option for configuring the Probe.
type Option func(*Probe)

// WithSettings replaces the default settings.
func WithSettings(s config.Settings) Option {
	return func(p *Probe) {
		p.settings = s
		p.hasSettings = true
	}
}

// WithSymbols injects a symbol table instead of loading the configured index.
func WithSymbols(t *symbols.Table) Option {
	return func(p *Probe) {
		p.table = t
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Probe) {
		p.logger = logger
	}
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Probe) {
		p.metrics = m
	}
}

// WithHooks registers observability hooks on the default runner.
func WithHooks(h domain.RunHooks) Option {
	return func(p *Probe) {
		p.hooks = h
	}
}

// WithRunner injects a custom Prober, bypassing the default process runner.
func WithRunner(r ports.Prober) Option {
	return func(p *Probe) {
		p.prober = r
	}
}

// WithLocker makes session exclusivity hold across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(p *Probe) {
		p.locker = l
	}
}

// WithSessions injects a session manager. It takes precedence over WithLocker.
func WithSessions(m *session.Manager) Option {
	return func(p *Probe) {
		p.sessions = m
	}
}

// New initializes a Probe. Without WithSettings the settings are loaded from
// the default file and environment.
func New(opts ...Option) (*Probe, error) {
	p := &Probe{}
	for _, opt := range opts {
		opt(p)
	}

	if !p.hasSettings {
		s, err := config.Load("")
		if err != nil {
			return nil, err
		}
		p.settings = s
	}
	if err := p.settings.Validate(); err != nil {
		return nil, err
	}

	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if p.table == nil {
		t, err := symbols.Load(p.settings.SymbolIndex)
		if err != nil {
			return nil, err
		}
		p.table = t
	}
	p.extractor = p.newExtractor(p.table)

	if p.prober == nil {
		r, err := p.newRunner()
		if err != nil {
			return nil, err
		}
		p.prober = r
	}

	if p.sessions == nil {
		sessionOpts := []session.Option{session.WithLogger(p.logger)}
		if p.locker != nil {
			sessionOpts = append(sessionOpts, session.WithLocker(p.locker))
		}
		p.sessions = session.NewManager(p.prober, sessionOpts...)
	}

	return p, nil
}

func (p *Probe) newExtractor(t *symbols.Table) *topology.Extractor {
	opts := append(p.settings.ExtractorOptions(), topology.WithLogger(p.logger))
	return topology.New(t, opts...)
}

func (p *Probe) newRunner() (*process.Runner, error) {
	s := p.settings
	hooks := p.hooks
	if p.metrics != nil {
		hooks = domain.MergeHooks(p.metrics.Hooks(), p.hooks)
	}

	opts := []process.RunnerOption{
		process.WithInterpreter(s.Interpreter),
		process.WithDiscovery(s.Discover),
		process.WithTimeout(s.Timeout()),
		process.WithKillGrace(s.KillGrace()),
		process.WithCompleteGrace(s.CompleteGrace()),
		process.WithHooks(hooks),
		process.WithLogger(p.logger),
	}

	if s.InterpretersFile != "" {
		registry, err := process.LoadInterpreters(s.InterpretersFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, process.WithRegistry(registry))
	}
	if s.Script != "" {
		body, err := os.ReadFile(s.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to read probe script: %w", err)
		}
		opts = append(opts, process.WithScript(body))
	}
	return process.NewRunner(opts...), nil
}

// Settings returns the active settings.
func (p *Probe) Settings() config.Settings {
	return p.settings
}

// Symbols returns the current symbol table.
func (p *Probe) Symbols() *symbols.Table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// Sessions returns the session manager.
func (p *Probe) Sessions() *session.Manager {
	return p.sessions
}

// Metrics returns the metrics collector, or nil.
func (p *Probe) Metrics() *observability.Metrics {
	return p.metrics
}

// Load parses the configuration document at path.
func (p *Probe) Load(path string) (*topology.Document, error) {
	return topology.Parse(path)
}

// Extract returns every dataset in doc, in document order.
func (p *Probe) Extract(doc *topology.Document) []topology.Entry {
	p.mu.RLock()
	ext := p.extractor
	p.mu.RUnlock()
	return ext.Extract(doc)
}

// ExtractAt builds the dataset at address.
func (p *Probe) ExtractAt(doc *topology.Document, address string) (*domain.DatasetNode, error) {
	p.mu.RLock()
	ext := p.extractor
	p.mu.RUnlock()

	node, ok := ext.ExtractAt(doc, address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotADataset, address)
	}
	return node, nil
}

// BuildRequest assembles the run request for the dataset at address.
// overrides maps original data-root values to their replacements.
func (p *Probe) BuildRequest(doc *topology.Document, address string, values map[string]string) (domain.RunRequest, error) {
	if _, err := p.ExtractAt(doc, address); err != nil {
		return domain.RunRequest{}, err
	}
	path, err := filepath.Abs(doc.Path)
	if err != nil {
		return domain.RunRequest{}, fmt.Errorf("invalid config path: %w", err)
	}

	opts := []domain.RequestOption{
		domain.WithOverrides(values),
		domain.WithProjectPaths(p.settings.SearchPaths...),
	}
	if p.settings.TensorDir != "" {
		opts = append(opts, domain.WithTensorDir(p.settings.TensorDir))
	}
	return domain.NewRunRequest(path, address, opts...), nil
}

// Run probes req in the session and streams its events to onEvent.
// It fails with domain.ErrRunInProgress when the session is busy.
func (p *Probe) Run(ctx context.Context, sessionID string, req domain.RunRequest, onEvent func(domain.Event)) (string, error) {
	return p.sessions.Run(ctx, sessionID, req, onEvent)
}

// RunReport probes req and folds its events into a report.
func (p *Probe) RunReport(ctx context.Context, sessionID string, req domain.RunRequest) (*orchestrator.Report, error) {
	rec := orchestrator.NewRecorder(orchestrator.WithRecorderLogger(p.logger))
	if _, err := p.Run(ctx, sessionID, req, rec.Record); err != nil {
		return nil, err
	}
	return rec.Report(), nil
}

// Plan streams the events a run of the dataset at address would produce if
// every step succeeded, with overrides applied, without starting an interpreter.
func (p *Probe) Plan(ctx context.Context, doc *topology.Document, address string, values map[string]string, onEvent func(domain.Event)) error {
	node, err := p.ExtractAt(doc, address)
	if err != nil {
		return err
	}
	orchestrator.Plan(ctx, overrides.Apply(node, values), onEvent)
	return nil
}

// Cancel stops the session's run, if any.
func (p *Probe) Cancel(sessionID string) bool {
	return p.sessions.Cancel(sessionID)
}

// PersistOverrides writes data-root overrides for the dataset at address into doc's file.
func (p *Probe) PersistOverrides(ctx context.Context, sessionID string, doc *topology.Document, address string, values map[string]string) ([]overrides.Edit, error) {
	node, err := p.ExtractAt(doc, address)
	if err != nil {
		return nil, err
	}
	return p.sessions.PersistOverrides(ctx, sessionID, doc, node, values)
}

// Diff compares two snapshots field by field.
func (p *Probe) Diff(before, after *domain.EntrySnapshot) []domain.FieldDiff {
	return domain.DiffEntries(before, after)
}

// Index rebuilds the symbol table from modules, saves it to the configured
// index path and uses it for subsequent extractions.
func (p *Probe) Index(ctx context.Context, modules []string) (*symbols.Table, error) {
	indexer, ok := p.prober.(Indexer)
	if !ok {
		return nil, ErrIndexUnsupported
	}
	if len(modules) == 0 {
		modules = p.settings.IndexModules
	}

	t, err := indexer.Index(ctx, modules, p.settings.SearchPaths)
	if err != nil {
		return nil, err
	}

	if path := p.settings.SymbolIndex; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create symbol index directory: %w", err)
		}
		if err := symbols.Save(path, t); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.table = t
	p.extractor = p.newExtractor(t)
	p.mu.Unlock()

	p.logger.Info("symbol table replaced", "records", t.Len())
	return t, nil
}
