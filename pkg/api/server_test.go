package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teleclaude/teleclaude/pkg/history"
)

type fakeRuntime struct {
	clients int
	entries []history.Entry
	lastDir string
}

func (f *fakeRuntime) ClientCount() int { return f.clients }

func (f *fakeRuntime) ListSessions(dir string, _ int) []history.Entry {
	f.lastDir = dir
	return f.entries
}

type fakeStorage struct {
	err error
}

func (f *fakeStorage) Health(context.Context) error { return f.err }

func newTestServer(runtime *fakeRuntime, storage *fakeStorage) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewServer(runtime, storage, "/w/proj").Router()
}

func doGet(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		router := newTestServer(&fakeRuntime{}, &fakeStorage{})
		w, body := doGet(t, router, "/healthz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "up", body["database"])
	})

	t.Run("database down", func(t *testing.T) {
		router := newTestServer(&fakeRuntime{}, &fakeStorage{err: errors.New("locked")})
		w, body := doGet(t, router, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, "locked", body["error"])
	})
}

func TestStatus(t *testing.T) {
	router := newTestServer(&fakeRuntime{clients: 3}, &fakeStorage{})
	w, body := doGet(t, router, "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["active_clients"])
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "uptime_seconds")
}

func TestSessions(t *testing.T) {
	runtime := &fakeRuntime{entries: []history.Entry{
		{SessionID: "S2", Display: "newer", Timestamp: 2000, Project: "/w/proj"},
		{SessionID: "S1", Display: "older", Timestamp: 1000, Project: "/w/proj"},
	}}
	router := newTestServer(runtime, &fakeStorage{})

	t.Run("explicit directory", func(t *testing.T) {
		w, body := doGet(t, router, "/api/v1/sessions?dir=/w/other")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/w/other", runtime.lastDir)
		assert.Equal(t, "/w/other", body["directory"])
	})

	t.Run("default directory", func(t *testing.T) {
		w, body := doGet(t, router, "/api/v1/sessions")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "/w/proj", body["directory"])

		sessions, ok := body["sessions"].([]any)
		require.True(t, ok)
		require.Len(t, sessions, 2)
		first, ok := sessions[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "S2", first["session_id"])
	})
}
