package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tavern-net/internal/database"
	"tavern-net/internal/engine"
	"tavern-net/internal/engine/actors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	e := engine.NewEngine(database.NewMemoryStore(), actors.DefaultRetryPolicy(), nil)
	t.Cleanup(func() { e.Shutdown(context.Background()) })
	return NewServer(e, false)
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Engine.Integrity.CreateAccount(context.Background(), "jeremias", "s3cret")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	server.HandleHealth()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Database)
	require.NotNil(t, body.Propagation)
	require.NotNil(t, body.Metrics)
	assert.Equal(t, 1, body.Metrics.Operations["create_account"].Count)
	assert.False(t, body.ServerTime.IsZero())
}

func TestHealthRejectsPost(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	server.HandleHealth()(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestSimpleHealth(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	server.HandleSimpleHealth()(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
