package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otptaskd/internal/core"
	"otptaskd/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	names []string
}

func (s stubSender) Providers() []string { return s.names }

func (s stubSender) SendCycle(_ context.Context, _ string) core.CycleResult {
	out := make(core.CycleResult, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, core.ProviderResult{Provider: name, Success: true})
	}
	return out
}

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(context.Background(), t.TempDir(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { st.DB.Close() })

	manager := core.NewManager(st, stubSender{names: []string{"Hungama", "ShemarooMe", "Unacademy"}}, nil, logger)
	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx, time.Hour)
	t.Cleanup(func() {
		manager.Stop()
		cancel()
	})

	return NewServer("127.0.0.1:0", authToken, manager, logger)
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	payload := decodeBody(t, rec)
	errObj, ok := payload["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

func TestStartTaskWithJSONBody(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/task/start", `{"num": "9876543210", "int": 30}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	payload := decodeBody(t, rec)
	taskID, _ := payload["task_id"].(string)
	assert.Regexp(t, `^taskid-[0-9a-f]{4}-[0-9a-f]{4}$`, taskID)
	assert.Equal(t, "started", payload["status"])
	assert.Equal(t, "9876543210", payload["phone_number"])
	assert.Equal(t, float64(30), payload["interval"])

	rec = doRequest(s, http.MethodGet, "/api/task/"+taskID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	task := decodeBody(t, rec)
	assert.Equal(t, "running", task["status"])
	assert.NotNil(t, task["started_at"])
	assert.Nil(t, task["stopped_at"])

	stats, ok := task["statistics"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0.0%", stats["success_rate"])

	services, ok := task["services_stats"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, services, 3)
	assert.Contains(t, services, "Hungama")

	doRequest(s, http.MethodPost, "/api/task/stop/"+taskID, "")
}

func TestStartTaskWithQueryParams(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/task/start?num=9876543210&int=45", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payload := decodeBody(t, rec)
	assert.Equal(t, float64(45), payload["interval"])

	doRequest(s, http.MethodPost, "/api/task/stop/"+payload["task_id"].(string), "")
}

func TestStartTaskValidationErrors(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/task/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	rec = doRequest(s, http.MethodPost, "/api/task/start", `{"num": "12345"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	rec = doRequest(s, http.MethodPost, "/api/task/start", `{"num": "9876543210", "int": 9999}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/task/taskid-0000-0000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestStopTaskIsIdempotent(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/task/start", `{"num": "9876543210", "int": 3600}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	taskID := decodeBody(t, rec)["task_id"].(string)

	rec = doRequest(s, http.MethodPost, "/api/task/stop/"+taskID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decodeBody(t, rec)["status"])

	rec = doRequest(s, http.MethodPost, "/api/task/stop/"+taskID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decodeBody(t, rec)["status"])
}

func TestDeleteTaskLifecycle(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodPost, "/api/task/start", `{"num": "9876543210", "int": 3600}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	taskID := decodeBody(t, rec)["task_id"].(string)

	rec = doRequest(s, http.MethodDelete, "/api/task/"+taskID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", errorCode(t, rec))

	rec = doRequest(s, http.MethodPost, "/api/task/stop/"+taskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/api/task/"+taskID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "deleted", decodeBody(t, rec)["status"])

	rec = doRequest(s, http.MethodGet, "/api/task/"+taskID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks(t *testing.T) {
	s := newTestServer(t, "")

	rec := doRequest(s, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payload := decodeBody(t, rec)
	assert.Equal(t, float64(0), payload["total"])

	ids := make([]string, 0, 2)
	for _, num := range []string{"9876543210", "9123456789"} {
		rec = doRequest(s, http.MethodPost, "/api/task/start", `{"num": "`+num+`", "int": 3600}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeBody(t, rec)["task_id"].(string))
	}

	rec = doRequest(s, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	payload = decodeBody(t, rec)
	assert.Equal(t, float64(2), payload["total"])
	tasks, ok := payload["tasks"].([]any)
	require.True(t, ok)
	require.Len(t, tasks, 2)
	first, ok := tasks[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, ids[0], first["task_id"])

	for _, id := range ids {
		doRequest(s, http.MethodPost, "/api/task/stop/"+id, "")
	}
}

func TestHealthAndIndexAreOpen(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := doRequest(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])

	rec = doRequest(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "endpoints")
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret")

	rec := doRequest(s, http.MethodGet, "/api/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	rec = doRequest(s, http.MethodGet, "/api/tasks?token=secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rr))
}
