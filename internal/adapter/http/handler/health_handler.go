package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = 5 * time.Second

// HealthHandler serves the liveness and readiness probes. The redis client
// is optional; when nil the readiness check covers postgres only.
type HealthHandler struct {
	pool  *pgxpool.Pool
	cache *redis.Client
}

func NewHealthHandler(pool *pgxpool.Pool, cache *redis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, cache: cache}
}

// Liveness reports that the process is running.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings every configured backing store and reports the first
// failure.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	for _, probe := range h.probes() {
		if err := probe.ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  probe.name + ": " + err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type storeProbe struct {
	name string
	ping func(context.Context) error
}

func (h *HealthHandler) probes() []storeProbe {
	probes := []storeProbe{
		{name: "postgres", ping: h.pool.Ping},
	}
	if h.cache != nil {
		probes = append(probes, storeProbe{
			name: "redis",
			ping: func(ctx context.Context) error { return h.cache.Ping(ctx).Err() },
		})
	}
	return probes
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
