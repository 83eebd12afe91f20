package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Liveness is considered lost when no heartbeat arrived within this
// grace period
const heartbeatGrace = 10 * time.Second

// HealthStatus is the payload served on the health endpoint
type HealthStatus struct {
	Status    string    `json:"status"` // "healthy" or "unhealthy"
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
	LastBeat  time.Time `json:"last_beat"`
}

var heart = struct {
	mu        sync.Mutex
	lastBeat  time.Time
	startTime time.Time
}{startTime: time.Now()}

// Heartbeat records supervisor liveness; called at least every 2s
func Heartbeat() {
	heart.mu.Lock()
	defer heart.mu.Unlock()
	heart.lastBeat = time.Now()
}

// GetHealth returns the current liveness status
func GetHealth() HealthStatus {
	heart.mu.Lock()
	defer heart.mu.Unlock()

	status := "healthy"
	if heart.lastBeat.IsZero() || time.Since(heart.lastBeat) > heartbeatGrace {
		status = "unhealthy"
	}
	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(heart.startTime).Round(time.Second).String(),
		LastBeat:  heart.lastBeat,
	}
}

// HealthHandler serves the liveness status as JSON
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}

// Serve exposes /metrics and /health on addr until the server is closed
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.Handle("/health", HealthHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
