package observability_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/observability"
)

func scrape(t *testing.T, m *observability.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics()
	h := m.Hooks()
	ctx := context.Background()

	h.OnRunStart(ctx, domain.NewRunRequest("p.yaml", "ds"))
	h.OnEvent(ctx, domain.DatasetStart{Name: "A"})
	h.OnEvent(ctx, domain.Snapshot{})
	h.OnEvent(ctx, domain.Snapshot{})
	h.OnLineDropped(ctx, errors.New("bad json"))
	h.OnEvent(ctx, domain.Complete{ExecutionTimeMs: 5})
	h.OnRunEnd(ctx, domain.OutcomeCompleted, 2*time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `pipeprobe_events_total{type="complete"} 1`)
	assert.Contains(t, body, `pipeprobe_events_total{type="dataset_start"} 1`)
	assert.Contains(t, body, `pipeprobe_events_total{type="snapshot"} 2`)
	assert.Contains(t, body, "pipeprobe_dropped_lines_total 1")
	assert.Contains(t, body, "pipeprobe_runs_started_total 1")
	assert.Contains(t, body, `pipeprobe_run_duration_seconds_count{outcome="completed"} 1`)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	h := m.Hooks()
	h.OnRunStart(context.Background(), domain.RunRequest{})
	h.OnRunEnd(context.Background(), domain.OutcomeTimeout, time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `pipeprobe_runs_finished_total{outcome="timeout"} 1`)
	assert.Contains(t, body, "pipeprobe_active_runs 0")
}

func TestSetupTracing(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := observability.SetupTracing(&buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "probe.execute")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), "probe.execute")
}
