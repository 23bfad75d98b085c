package orchestrator

import (
	"errors"
	"fmt"

	"github.com/aretw0/pipeprobe/pkg/domain"
)

// ErrProtocolViolation marks an event that arrived out of order.
var ErrProtocolViolation = errors.New("protocol violation")

// Phase is the position of a run within its event stream.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInDataset    Phase = "dataset_started"
	PhaseDatasetEnded Phase = "dataset_ended"
	PhaseFailed       Phase = "failed"
	PhaseComplete     Phase = "complete"
)

// Machine tracks a run's event stream and reports out-of-order events.
// Violations are not fatal: the machine still advances so that a misbehaving
// producer cannot wedge the consumer.
type Machine struct {
	phase    Phase
	dataset  string
	lastStep int
	stopped  bool
	started  bool
}

// NewMachine creates a machine in PhaseIdle.
func NewMachine() *Machine {
	return &Machine{phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Done reports whether the run has completed.
func (m *Machine) Done() bool {
	return m.phase == PhaseComplete
}

// Apply advances the machine. A non-nil error wraps ErrProtocolViolation.
func (m *Machine) Apply(ev domain.Event) error {
	if m.phase == PhaseComplete {
		return m.violation("%s after complete", ev.Type())
	}

	switch ev.(type) {
	case domain.Complete:
		m.phase = PhaseComplete
		return nil

	case domain.RunError:
		m.phase = PhaseFailed
		return nil
	}

	if m.phase == PhaseFailed {
		return m.violation("%s after run error", ev.Type())
	}

	switch e := ev.(type) {
	case domain.DatasetStart:
		var err error
		if m.phase == PhaseInDataset {
			err = m.violation("dataset %q started before %q ended", e.Path, m.dataset)
		}
		m.phase = PhaseInDataset
		m.dataset = e.Path
		m.lastStep = -1
		m.stopped = false
		m.started = false
		return err

	case domain.Snapshot:
		if err := m.requireOpen(ev); err != nil {
			return err
		}
		if m.stopped {
			return m.violation("snapshot %d after the dataset stopped", e.StepIndex)
		}
		m.started = true
		if e.StepIndex <= m.lastStep {
			err := m.violation("step index %d does not follow %d", e.StepIndex, m.lastStep)
			m.lastStep = e.StepIndex
			return err
		}
		m.lastStep = e.StepIndex
		return nil

	case domain.StepError, domain.InitError:
		if err := m.requireOpen(ev); err != nil {
			return err
		}
		m.stopped = true
		return nil

	case domain.Skipped:
		if err := m.requireOpen(ev); err != nil {
			return err
		}
		var err error
		if m.started {
			err = m.violation("skipped after snapshots")
		}
		m.stopped = true
		return err

	case domain.DatasetEnd:
		if err := m.requireOpen(ev); err != nil {
			return err
		}
		var err error
		if e.Path != m.dataset {
			err = m.violation("dataset %q ended while %q was open", e.Path, m.dataset)
		}
		m.phase = PhaseDatasetEnded
		return err

	case domain.Connector:
		if m.phase != PhaseDatasetEnded {
			return m.violation("connector %q outside a wrapped chain", e.Label)
		}
		return nil
	}

	return m.violation("unexpected event %T", ev)
}

func (m *Machine) requireOpen(ev domain.Event) error {
	if m.phase != PhaseInDataset {
		return m.violation("%s outside a dataset", ev.Type())
	}
	return nil
}

func (m *Machine) violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}
