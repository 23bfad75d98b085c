package domain

import "errors"

// ErrRunInProgress is returned when a session starts a run while a prior one is still alive.
var ErrRunInProgress = errors.New("probe run already in progress")

// ErrInvalidAddress is returned when a dataset address cannot be parsed.
var ErrInvalidAddress = errors.New("invalid dataset address")

// ErrNodeNotFound is returned when an address does not resolve to a node.
var ErrNodeNotFound = errors.New("node not found")

// ErrUnresolvedReference is returned when a reference points nowhere.
var ErrUnresolvedReference = errors.New("unresolved reference")

// ErrReferenceCycle is returned when a reference chain revisits a path.
var ErrReferenceCycle = errors.New("reference cycle")

// ErrDocumentChanged is returned when a document was modified after it was parsed.
var ErrDocumentChanged = errors.New("document changed since it was parsed")

// ErrNoInterpreter is returned when no interpreter executable can be resolved.
var ErrNoInterpreter = errors.New("no Python interpreter configured")

// ErrNotADataset is returned when an address resolves to a node that is not a dataset.
var ErrNotADataset = errors.New("node is not a dataset")
