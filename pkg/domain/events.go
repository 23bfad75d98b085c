package domain

// EventType is the discriminator of a probe protocol event.
type EventType string

const (
	EventDatasetStart EventType = "dataset_start"
	EventSnapshot     EventType = "snapshot"
	EventStepError    EventType = "step_error"
	EventInitError    EventType = "init_error"
	EventConnector    EventType = "connector"
	EventSkipped      EventType = "skipped"
	EventDatasetEnd   EventType = "dataset_end"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is one probe protocol event. Instances are immutable values.
type Event interface {
	Type() EventType
}

// DatasetStart opens a dataset's step sequence.
type DatasetStart struct {
	Name   string `json:"datasetName"`
	Target string `json:"datasetTarget"`
	Path   string `json:"datasetPath"`
}

// Snapshot carries the state of an entry after one step.
type Snapshot struct {
	EntrySnapshot
}

// StepError terminates a dataset's step sequence when a transform fails.
type StepError struct {
	StepLabel string `json:"stepLabel"`
	StepIndex int    `json:"stepIndex"`
	Message   string `json:"errorMessage"`
	Traceback string `json:"errorTraceback,omitempty"`
}

// InitError reports that a dataset could not be instantiated.
type InitError struct {
	Message   string `json:"errorMessage"`
	Traceback string `json:"errorTraceback,omitempty"`
}

// Connector labels the wrap relationship between an inner dataset and its wrapper.
type Connector struct {
	Label string `json:"label"`
}

// Skipped replaces an outer dataset's sequence when its inner dataset failed.
type Skipped struct {
	Reason string `json:"reason"`
}

// DatasetEnd closes a dataset's step sequence.
type DatasetEnd struct {
	Path string `json:"datasetPath"`
}

// Complete is the single terminal event of every run.
type Complete struct {
	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

// RunError reports a run-level failure (timeout, crash, launch failure).
type RunError struct {
	Message   string `json:"errorMessage"`
	Traceback string `json:"errorTraceback,omitempty"`
}

func (DatasetStart) Type() EventType { return EventDatasetStart }
func (Snapshot) Type() EventType     { return EventSnapshot }
func (StepError) Type() EventType    { return EventStepError }
func (InitError) Type() EventType    { return EventInitError }
func (Connector) Type() EventType    { return EventConnector }
func (Skipped) Type() EventType      { return EventSkipped }
func (DatasetEnd) Type() EventType   { return EventDatasetEnd }
func (Complete) Type() EventType     { return EventComplete }
func (RunError) Type() EventType     { return EventError }

// IsTerminal reports whether ev ends the run.
func IsTerminal(ev Event) bool {
	_, ok := ev.(Complete)
	return ok
}

// ConnectorFor builds the connector emitted after an inner dataset succeeded.
func ConnectorFor(outer *DatasetNode) Connector {
	return Connector{Label: ConnectorPrefix + outer.DisplayName}
}

// StartOf builds the DatasetStart event of a node.
func StartOf(n *DatasetNode) DatasetStart {
	return DatasetStart{Name: n.DisplayName, Target: n.Target, Path: n.Address}
}
