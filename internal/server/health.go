package server

import (
	"encoding/json"
	"net/http"
	"os"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   interface{}     `json:"details,omitempty"`
}

// BundleRootDetails describes what is currently on disk under the bundle root.
type BundleRootDetails struct {
	Path    string `json:"path"`
	Bundles int    `json:"bundles"`
}

// ReaperDetails describes the scheduled removals still outstanding.
type ReaperDetails struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

// handleHealth is the cheap probe used by load balancers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// HandleHealth provides a detailed health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth()

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleLive provides a liveness probe (is the process running?)
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) checkHealth() Health {
	health := Health{
		Timestamp: time.Now(),
		Version:   s.build.Version,
		Components: map[string]ComponentHealth{
			"bundle_root": s.checkBundleRootHealth(),
			"reaper":      s.checkReaperHealth(),
		},
	}
	health.Status = determineOverallHealth(health.Components)
	return health
}

// checkBundleRootHealth verifies the bundle root is a readable directory.
func (s *Server) checkBundleRootHealth() ComponentHealth {
	start := time.Now()
	root := s.resolver.Root()

	entries, err := os.ReadDir(root)
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "bundle root unreadable",
		}
	}

	bundles := 0
	for _, e := range entries {
		if _, err := ParseBuildID(e.Name()); err == nil && e.IsDir() {
			bundles++
		}
	}

	latency := time.Since(start).Milliseconds()
	status := ComponentStatusUp
	message := "bundle root healthy"
	if latency > 1000 {
		status = ComponentStatusDegraded
		message = "bundle root listing slow"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency),
		Details:   BundleRootDetails{Path: root, Bundles: bundles},
	}
}

// checkReaperHealth reports outstanding removals. Failed removals are
// expected when a bundle's index is requested twice, so they never degrade it.
func (s *Server) checkReaperHealth() ComponentHealth {
	snap := s.metrics.Snapshot()
	pending := snap.ReaperScheduledTotal - snap.ReaperRemovedTotal - snap.ReaperFailedTotal - snap.ReaperAbandonedTotal

	return ComponentHealth{
		Status:  ComponentStatusUp,
		Message: "reaper running",
		Details: ReaperDetails{Pending: pending, Failed: snap.ReaperFailedTotal},
	}
}

// determineOverallHealth calculates overall health from component statuses
func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var downCount, degradedCount int
	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
