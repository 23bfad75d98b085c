/*
Package observability provides metrics and tracing for probe runs.

Metrics plugs into the runner through domain.RunHooks and exports Prometheus
counters and histograms. SetupTracing installs an OpenTelemetry provider that
writes the per-run spans to a writer (usually stderr).
*/
package observability
