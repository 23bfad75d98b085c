package domain

// FieldSnapshot summarizes a single field of an entry at one pipeline step.
// Numeric summaries arrive pre-formatted and are compared as strings.
type FieldSnapshot struct {
	Key        string          `json:"key"`
	PythonType string          `json:"pythonType"`
	Shape      string          `json:"shape,omitempty"`
	Dtype      string          `json:"dtype,omitempty"`
	Min        string          `json:"minValue,omitempty"`
	Max        string          `json:"maxValue,omitempty"`
	Mean       string          `json:"meanValue,omitempty"`
	Std        string          `json:"stdValue,omitempty"`
	Preview    string          `json:"preview,omitempty"`
	SizeBytes  *int64          `json:"sizeBytes,omitempty"`
	Children   []FieldSnapshot `json:"children,omitempty"`

	// ArtifactPath points at a side artifact written to the tensor directory.
	// It is not part of the diff comparison.
	ArtifactPath string `json:"artifactPath,omitempty"`
}

// EntrySnapshot is the state of one entry after a pipeline step.
type EntrySnapshot struct {
	StepLabel string          `json:"stepLabel"`
	StepIndex int             `json:"stepIndex"`
	Fields    []FieldSnapshot `json:"fields"`
	IsBatched bool            `json:"isBatched"`

	// ErrorMessage terminates the dataset's step sequence when set.
	ErrorMessage   string `json:"errorMessage,omitempty"`
	ErrorTraceback string `json:"errorTraceback,omitempty"`
}

// Failed reports whether this snapshot records a step failure.
func (s *EntrySnapshot) Failed() bool {
	return s.ErrorMessage != ""
}

// Field returns the top-level field with the given key.
func (s *EntrySnapshot) Field(key string) (FieldSnapshot, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSnapshot{}, false
}
