package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

var accepting atomic.Bool

func init() {
	accepting.Store(true)
}

// SetReady flips the readiness gate. The server flips it off at the start of
// graceful shutdown so load balancers drain traffic before connections close.
func SetReady(ready bool) {
	accepting.Store(ready)
}

// Checker represents dependencies that can be probed for readiness.
type Checker interface {
	PingCommerce(ctx context.Context, timeout time.Duration) error
	PingRedis(ctx context.Context, timeout time.Duration) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker         Checker
	CommerceTimeout time.Duration
	RedisTimeout    time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !accepting.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	commerceStatus := "ok"
	if err := h.Checker.PingCommerce(ctx, h.commerceTimeout()); err != nil {
		commerceStatus = err.Error()
	}
	redisStatus := "ok"
	if err := h.Checker.PingRedis(ctx, h.redisTimeout()); err != nil {
		redisStatus = err.Error()
	}
	status := map[string]string{
		"commerce": commerceStatus,
		"redis":    redisStatus,
	}
	w.Header().Set("Content-Type", "application/json")
	if commerceStatus != "ok" || redisStatus != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) commerceTimeout() time.Duration {
	if h.CommerceTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.CommerceTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
