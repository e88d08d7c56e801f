package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tillworks/opsledger/internal/adapter/http/handler"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	// The pool connects lazily, so an unreachable address only fails on
	// Ping. Readiness therefore reports unavailable without a backend.
	pool, err := pgxpool.New(context.Background(), "postgres://127.0.0.1:1/opsledger?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRouter(RouterConfig{
		HealthHandler: handler.NewHealthHandler(pool, nil),
		Logger:        zerolog.Nop(),
	})
}

func TestRouter_Liveness(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestRouter_ReadinessWithoutBackends(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unavailable", body["status"])
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
