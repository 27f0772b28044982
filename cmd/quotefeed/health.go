package main

import (
	"encoding/json"
	"net/http"

	"github.com/rickgao/quote-feed/internal/connection"
	"github.com/rickgao/quote-feed/internal/sink"
	"github.com/rickgao/quote-feed/internal/version"
)

// statsSource is the part of the Connection Manager the health check needs.
type statsSource interface {
	Stats() connection.Stats
}

// createHealthHandler creates the HTTP handler for health checks.
// publisher may be nil when the Redis sink is disabled.
func createHealthHandler(mgr statsSource, publisher *sink.Publisher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := mgr.Stats()

		health := struct {
			Status     string                 `json:"status"`
			Version    string                 `json:"version"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]interface{}),
		}

		health.Components["feed"] = stats
		switch {
		case !stats.Running:
			health.Status = "unhealthy"
		case stats.State != connection.StateServing:
			health.Status = "degraded"
		}

		if publisher != nil {
			health.Components["redis_sink"] = publisher.Stats()
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
