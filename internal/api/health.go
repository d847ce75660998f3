package api

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is anything the readiness probe can ping, the appointment store in practice.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store       Pinger
	storeDriver string
	redis       *redis.Client
	env         string
	version     string
}

// NewHealthHandler builds the probes. redis may be nil when locks are in process.
func NewHealthHandler(store Pinger, storeDriver string, redis *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		store:       store,
		storeDriver: storeDriver,
		redis:       redis,
		env:         env,
		version:     version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness fails when the store or the configured redis lock backend is down.
// Every transition takes the lock, so writes stop without redis.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	storeCtx, storeCancel := context.WithTimeout(ctx, time.Second)
	err := h.store.Ping(storeCtx)
	storeCancel()
	if err != nil {
		deps[h.storeDriver] = "down"
		status = "error"
	} else {
		deps[h.storeDriver] = "ok"
	}

	if h.redis != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, time.Second)
		err = h.redis.Ping(redisCtx).Err()
		redisCancel()
		if err != nil {
			deps["redis"] = "down"
			status = "error"
		} else {
			deps["redis"] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
