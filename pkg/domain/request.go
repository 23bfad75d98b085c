package domain

import "maps"

// RunRequest is the payload handed to the probe process.
type RunRequest struct {
	YAMLPath      string            `json:"yamlPath" validate:"required"`
	DatasetPath   string            `json:"datasetPath" validate:"required"`
	PathOverrides map[string]string `json:"pathOverrides"`
	ProjectPaths  []string          `json:"projectPaths"`
	TensorDir     string            `json:"tensorDir,omitempty"`
}

// RequestOption configures a RunRequest.
type RequestOption func(*RunRequest)

// WithOverrides adds path overrides (original value to replacement).
func WithOverrides(overrides map[string]string) RequestOption {
	return func(r *RunRequest) {
		maps.Copy(r.PathOverrides, overrides)
	}
}

// WithProjectPaths appends extra module search roots.
func WithProjectPaths(paths ...string) RequestOption {
	return func(r *RunRequest) {
		r.ProjectPaths = append(r.ProjectPaths, paths...)
	}
}

// WithTensorDir sets the output directory for side artifacts.
func WithTensorDir(dir string) RequestOption {
	return func(r *RunRequest) {
		r.TensorDir = dir
	}
}

// NewRunRequest assembles a request. Collections are never nil so the
// serialized payload always carries them.
func NewRunRequest(yamlPath, datasetPath string, opts ...RequestOption) RunRequest {
	r := RunRequest{
		YAMLPath:      yamlPath,
		DatasetPath:   datasetPath,
		PathOverrides: map[string]string{},
		ProjectPaths:  []string{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
