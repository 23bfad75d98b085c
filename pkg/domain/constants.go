package domain

// Protocol constants shared by the probe script and the parent process.
const (
	// EventMarker prefixes every protocol line written by the child process.
	EventMarker = "===PROBE_EVENT==="

	// ConnectorPrefix labels the link between an inner dataset and its wrapper.
	ConnectorPrefix = "Wrapped by "

	// SkippedInnerFailed is the reason reported when an outer dataset is not run.
	SkippedInnerFailed = "Inner dataset pipeline failed"
)

// Default configuration keys understood by the topology extractor.
const (
	KeyTarget     = "_target"
	KeyParams     = "params"
	KeyTransforms = "transforms"
)
