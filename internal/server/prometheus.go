// prometheus.go - Prometheus metrics exporter
package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PrometheusExporter converts internal metrics to Prometheus format
type PrometheusExporter struct {
	metrics *Metrics
	build   BuildInfo
	started time.Time
}

// NewPrometheusExporter creates a new Prometheus exporter
func NewPrometheusExporter(metrics *Metrics, build BuildInfo) *PrometheusExporter {
	return &PrometheusExporter{metrics: metrics, build: build, started: time.Now()}
}

type promSample struct {
	name  string
	kind  string
	help  string
	value int64
}

// Handler returns an HTTP handler for the /metrics endpoint
func (p *PrometheusExporter) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := p.metrics.Snapshot()

		var output strings.Builder

		output.WriteString("# HELP builds_info Application version info\n")
		output.WriteString("# TYPE builds_info gauge\n")
		fmt.Fprintf(&output, "builds_info{version=\"%s\",commit=\"%s\"} 1\n\n",
			prometheusLabel(p.build.Version), prometheusLabel(p.build.Commit))

		samples := []promSample{
			{"builds_requests_total", "counter", "Total number of HTTP requests", snapshot.RequestsTotal},
			{"builds_request_errors_4xx_total", "counter", "HTTP responses with a 4xx status", snapshot.RequestErrors4xx},
			{"builds_request_errors_5xx_total", "counter", "HTTP responses with a 5xx status", snapshot.RequestErrors5xx},
			{"builds_index_served_total", "counter", "Bundle index pages streamed", snapshot.IndexServedTotal},
			{"builds_assets_served_total", "counter", "Bundle wasm/js assets streamed", snapshot.AssetsServedTotal},
			{"builds_streamed_bytes_total", "counter", "Bytes streamed from bundles", snapshot.BytesStreamedTotal},
			{"builds_read_failures_total", "counter", "Artifacts that could not be opened", snapshot.ReadFailuresTotal},
			{"builds_denied_total", "counter", "Requests for files outside the extension whitelist", snapshot.DeniedTotal},
			{"builds_malformed_total", "counter", "Requests for files without extension", snapshot.MalformedTotal},
			{"builds_unsafe_paths_total", "counter", "Rejected path traversal attempts", snapshot.UnsafePathsTotal},
			{"builds_reaper_scheduled_total", "counter", "Bundle removals scheduled", snapshot.ReaperScheduledTotal},
			{"builds_reaper_removed_total", "counter", "Bundles removed by the reaper", snapshot.ReaperRemovedTotal},
			{"builds_reaper_failed_total", "counter", "Reaper delete attempts that failed", snapshot.ReaperFailedTotal},
			{"builds_reaper_abandoned_total", "counter", "Reapers dropped at shutdown", snapshot.ReaperAbandonedTotal},
			{"builds_swept_bundles_total", "counter", "Stale bundles removed by the janitor", snapshot.SweptBundlesTotal},
		}
		for _, s := range samples {
			fmt.Fprintf(&output, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", s.name, s.help, s.name, s.kind, s.name, s.value)
		}

		output.WriteString("# HELP builds_uptime_seconds Application uptime in seconds\n")
		output.WriteString("# TYPE builds_uptime_seconds counter\n")
		fmt.Fprintf(&output, "builds_uptime_seconds %.0f\n", time.Since(p.started).Seconds())

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(output.String()))
	}
}

// Helper function to format label safely for Prometheus
func prometheusLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return value
}
