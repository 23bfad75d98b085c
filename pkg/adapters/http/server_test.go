package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/pipeprobe"
	probehttp "github.com/aretw0/pipeprobe/pkg/adapters/http"
	"github.com/aretw0/pipeprobe/internal/logging"
	"github.com/aretw0/pipeprobe/internal/testutils"
	"github.com/aretw0/pipeprobe/pkg/config"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/observability"
	"github.com/aretw0/pipeprobe/pkg/ports"
)

var runEvents = []domain.Event{
	domain.DatasetStart{Name: "ImageDataset", Target: "srforge.dataset.image.ImageDataset", Path: "valid"},
	domain.Snapshot{EntrySnapshot: domain.EntrySnapshot{StepLabel: "Original", Fields: []domain.FieldSnapshot{{Key: "image", PythonType: "Tensor"}}}},
	domain.DatasetEnd{Path: "valid"},
	domain.Complete{ExecutionTimeMs: 7},
}

func newServer(t *testing.T, prober ports.Prober) (http.Handler, string) {
	t.Helper()
	s := config.Default()
	s.SymbolIndex = filepath.Join(t.TempDir(), "symbols.json")

	probe, err := pipeprobe.New(
		pipeprobe.WithSettings(s),
		pipeprobe.WithSymbols(testutils.Table()),
		pipeprobe.WithRunner(prober),
	)
	require.NoError(t, err)

	h := probehttp.NewHandler(probe,
		probehttp.WithLogger(logging.NewNop()),
		probehttp.WithMetrics(observability.NewMetrics().Handler()),
	)
	return h, testutils.WriteFile(t, "train.yaml", testutils.Pipeline)
}

func replay(events []domain.Event) ports.Prober {
	return ports.ProberFunc(func(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event)) {
		for _, ev := range events {
			onEvent(ev)
		}
	})
}

func post(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, bytes.NewReader(data)))
	return w
}

func TestHealthAndInfo(t *testing.T) {
	h, _ := newServer(t, replay(nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/info", nil))
	assert.Contains(t, w.Body.String(), pipeprobe.Version)
}

func TestExtract(t *testing.T) {
	h, path := newServer(t, replay(nil))

	w := post(t, h, "POST", "/extract", probehttp.DatasetRequest{Path: path})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var nodes []domain.DatasetNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	var addrs []string
	for _, n := range nodes {
		addrs = append(addrs, n.Address)
	}
	assert.Contains(t, addrs, "valid")
	assert.Contains(t, addrs, "train.dataset")

	w = post(t, h, "POST", "/extract", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiff(t *testing.T) {
	h, _ := newServer(t, replay(nil))

	w := post(t, h, "POST", "/diff", probehttp.DiffRequest{
		Before: &domain.EntrySnapshot{Fields: []domain.FieldSnapshot{{Key: "a", PythonType: "int", Preview: "1"}}},
		After:  &domain.EntrySnapshot{Fields: []domain.FieldSnapshot{{Key: "a", PythonType: "int", Preview: "2"}}},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp probehttp.DiffResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Summary.Modified)
}

func TestStartRun_Wait(t *testing.T) {
	h, path := newServer(t, replay(runEvents))

	w := post(t, h, "POST", "/sessions/s1/runs?wait=true", probehttp.DatasetRequest{Path: path, Dataset: "valid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp probehttp.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	require.Len(t, resp.Events, len(runEvents))
	assert.Contains(t, string(resp.Events[3]), `"type":"complete"`)
}

func TestStartRun_NotADataset(t *testing.T) {
	h, path := newServer(t, replay(runEvents))

	w := post(t, h, "POST", "/sessions/s1/runs", probehttp.DatasetRequest{Path: path, Dataset: "transform_sets"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStartRun_ConflictAndCancel(t *testing.T) {
	release := make(chan struct{})
	blocking := ports.ProberFunc(func(ctx context.Context, req domain.RunRequest, onEvent func(domain.Event)) {
		onEvent(runEvents[0])
		select {
		case <-ctx.Done():
			onEvent(domain.RunError{Message: "probe cancelled"})
		case <-release:
		}
		onEvent(domain.Complete{})
	})
	defer close(release)
	h, path := newServer(t, blocking)

	w := post(t, h, "POST", "/sessions/s1/runs", probehttp.DatasetRequest{Path: path, Dataset: "valid"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	w = post(t, h, "POST", "/sessions/s1/runs", probehttp.DatasetRequest{Path: path, Dataset: "valid"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = post(t, h, "DELETE", "/sessions/s1/runs", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Eventually(t, func() bool {
		w := post(t, h, "DELETE", "/sessions/s1/runs", nil)
		return w.Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeEvents(t *testing.T) {
	h, path := newServer(t, replay(runEvents))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wSub := httptest.NewRecorder()
	reqSub := httptest.NewRequest("GET", "/events?session_id=s1&watch=dataset_start,complete", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(wSub, reqSub)
	}()

	time.Sleep(100 * time.Millisecond) // Wait for subscription to register

	w := post(t, h, "POST", "/sessions/s1/runs?wait=true", probehttp.DatasetRequest{Path: path, Dataset: "valid"})
	require.Equal(t, http.StatusOK, w.Code)

	time.Sleep(100 * time.Millisecond) // Let the stream drain
	cancel()
	<-done

	output := wSub.Body.String()
	assert.Contains(t, output, "event: ping")
	assert.Contains(t, output, "event: dataset_start")
	assert.Contains(t, output, "event: complete")
	assert.NotContains(t, output, "event: snapshot")
}

func TestSubscribeEvents_RequiresSession(t *testing.T) {
	h, _ := newServer(t, replay(nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/events", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPersistOverrides(t *testing.T) {
	h, path := newServer(t, replay(nil))

	w := post(t, h, "PUT", "/sessions/s1/overrides", probehttp.DatasetRequest{
		Path:      path,
		Dataset:   "valid",
		Overrides: map[string]string{"/data/val": "/mnt/val"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.Contains(w.Body.String(), "/mnt/val"))
}

func TestMetricsMounted(t *testing.T) {
	h, _ := newServer(t, replay(nil))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
