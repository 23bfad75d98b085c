package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/pipeprobe/internal/logging"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/overrides"
	"github.com/aretw0/pipeprobe/pkg/ports"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

// DefaultLockTTL bounds how long a distributed session lock outlives a crashed holder.
const DefaultLockTTL = 10 * time.Minute

// Activity kinds.
const (
	KindRun     = "run"
	KindPersist = "persist"
)

// Activity describes what a session is currently doing.
type Activity struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Dataset   string    `json:"dataset,omitempty"`
	Document  string    `json:"document,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}

// entry exists only while its session is busy.
type entry struct {
	activity Activity
	cancel   context.CancelFunc
	done     chan struct{}
}

// Manager runs probes on behalf of sessions, one at a time per session.
type Manager struct {
	prober ports.Prober

	mu     sync.Mutex
	active map[string]*entry

	// persistMu serialises document rewrites across all sessions.
	persistMu sync.Mutex

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new session Manager running probes with prober.
func NewManager(prober ports.Prober, opts ...Option) *Manager {
	m := &Manager{
		prober:  prober,
		active:  make(map[string]*entry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// claim marks the session busy. It fails with ErrRunInProgress when the
// session already has a live activity, locally or on another replica, or when
// another session runs against the document a persist would rewrite (and the
// other way round).
func (m *Manager) claim(ctx context.Context, sessionID, kind, dataset, document string) (*entry, context.Context, func(), error) {
	document = documentKey(document)

	m.mu.Lock()
	if cur, busy := m.active[sessionID]; busy {
		m.mu.Unlock()
		return nil, nil, nil, fmt.Errorf("%w: session %s is busy with %s %s", domain.ErrRunInProgress, sessionID, cur.activity.Kind, cur.activity.ID)
	}
	if document != "" {
		for _, other := range m.active {
			if other.activity.Document == document && other.activity.Kind != kind {
				m.mu.Unlock()
				return nil, nil, nil, fmt.Errorf("%w: %s is in use by session %s (%s %s)", domain.ErrRunInProgress, document, other.activity.SessionID, other.activity.Kind, other.activity.ID)
			}
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		activity: Activity{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      kind,
			Dataset:   dataset,
			Document:  document,
			StartedAt: time.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.active[sessionID] = e
	m.mu.Unlock()

	var unlock ports.UnlockFunc
	if m.locker != nil {
		var err error
		unlock, err = m.locker.TryLock(ctx, "session:"+sessionID, m.lockTTL)
		if err != nil {
			m.release(sessionID, e)
			cancel()
			return nil, nil, nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
	}

	release := func() {
		if unlock != nil {
			// The run context may be cancelled already; unlocking must still happen.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}
		cancel()
		m.release(sessionID, e)
	}
	return e, runCtx, release, nil
}

func (m *Manager) release(sessionID string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active[sessionID] == e {
		delete(m.active, sessionID)
	}
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Run executes req for the session and blocks until the run has terminated.
// onEvent receives every event, ending with exactly one Complete. When the
// session is already busy Run returns domain.ErrRunInProgress immediately and
// onEvent is never called. The returned ID identifies the run.
func (m *Manager) Run(ctx context.Context, sessionID string, req domain.RunRequest, onEvent func(domain.Event)) (string, error) {
	e, runCtx, release, err := m.claim(ctx, sessionID, KindRun, req.DatasetPath, req.YAMLPath)
	if err != nil {
		return "", err
	}
	defer release()

	m.logger.Info("probe run started", "session_id", sessionID, "run_id", e.activity.ID, "dataset", req.DatasetPath)
	m.prober.Execute(runCtx, req, onEvent)
	return e.activity.ID, nil
}

// Cancel stops the session's run, if any. The run reports a cancellation
// error followed by Complete, like a timeout. It reports whether a run was found.
func (m *Manager) Cancel(sessionID string) bool {
	m.mu.Lock()
	e, ok := m.active[sessionID]
	m.mu.Unlock()

	if !ok || e.activity.Kind != KindRun {
		return false
	}
	m.logger.Info("probe run cancelled", "session_id", sessionID, "run_id", e.activity.ID)
	e.cancel()
	return true
}

// Active returns the session's current activity.
func (m *Manager) Active(sessionID string) (Activity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.active[sessionID]
	if !ok {
		return Activity{}, false
	}
	return e.activity, true
}

// List returns every live activity.
func (m *Manager) List() []Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Activity, 0, len(m.active))
	for _, e := range m.active {
		out = append(out, e.activity)
	}
	return out
}

// Wait blocks until the session is idle or ctx is done.
func (m *Manager) Wait(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	e, ok := m.active[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every run and waits for all sessions to become idle.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	pending := make([]*entry, 0, len(m.active))
	for _, e := range m.active {
		pending = append(pending, e)
	}
	m.mu.Unlock()

	for _, e := range pending {
		if e.activity.Kind == KindRun {
			e.cancel()
		}
	}
	for _, e := range pending {
		select {
		case <-e.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// PersistOverrides writes overrides into the document while the session is
// idle and no session is probing the same document. It fails with
// domain.ErrRunInProgress otherwise. Persists are serialised across sessions.
func (m *Manager) PersistOverrides(ctx context.Context, sessionID string, doc *topology.Document, node *domain.DatasetNode, values map[string]string) ([]overrides.Edit, error) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	_, persistCtx, release, err := m.claim(ctx, sessionID, KindPersist, node.Address, doc.Path)
	if err != nil {
		return nil, err
	}
	defer release()

	edits, err := overrides.Persist(persistCtx, doc, node, values)
	if err != nil {
		return nil, err
	}
	m.logger.Info("overrides persisted", "session_id", sessionID, "path", doc.Path, "edits", len(edits))
	return edits, nil
}

func documentKey(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
