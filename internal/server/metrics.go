package server

import (
	"sync"
	"time"
)

// Metrics holds application metrics
type Metrics struct {
	mu sync.RWMutex

	// Artifact metrics
	indexServedTotal    int64
	assetsServedTotal   int64
	bytesStreamedTotal  int64
	streamDurationTotal time.Duration
	readFailuresTotal   int64
	deniedTotal         int64
	malformedTotal      int64
	unsafePathsTotal    int64

	// Bundle lifecycle metrics
	reaperScheduledTotal int64
	reaperRemovedTotal   int64
	reaperFailedTotal    int64
	reaperAbandonedTotal int64
	sweptBundlesTotal    int64

	// System metrics
	requestsTotal    int64
	requestErrors5xx int64
	requestErrors4xx int64
}

// NewMetrics returns an empty metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordServed records a completed artifact stream.
func (m *Metrics) RecordServed(kind ContentKind, bytes int64, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == KindHTML {
		m.indexServedTotal++
	} else {
		m.assetsServedTotal++
	}
	m.bytesStreamedTotal += bytes
	m.streamDurationTotal += duration
}

// RecordReadFailure records an artifact that could not be opened.
func (m *Metrics) RecordReadFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFailuresTotal++
}

// RecordDenied records a request for a file outside the whitelist.
func (m *Metrics) RecordDenied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deniedTotal++
}

// RecordMalformed records a request for a file without extension.
func (m *Metrics) RecordMalformed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.malformedTotal++
}

// RecordUnsafePath records a rejected traversal attempt.
func (m *Metrics) RecordUnsafePath() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsafePathsTotal++
}

// RecordReaperScheduled records a spawned reaper.
func (m *Metrics) RecordReaperScheduled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaperScheduledTotal++
}

// RecordReaperResult records the outcome of one reaper delete attempt.
func (m *Metrics) RecordReaperResult(removed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if removed {
		m.reaperRemovedTotal++
	} else {
		m.reaperFailedTotal++
	}
}

// RecordReaperAbandoned records a reaper dropped by shutdown before its delay elapsed.
func (m *Metrics) RecordReaperAbandoned() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaperAbandonedTotal++
}

// RecordSwept records bundles removed by the janitor.
func (m *Metrics) RecordSwept(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweptBundlesTotal += int64(n)
}

// RecordRequest records an HTTP request
func (m *Metrics) RecordRequest(statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++

	if statusCode >= 500 {
		m.requestErrors5xx++
	} else if statusCode >= 400 {
		m.requestErrors4xx++
	}
}

// Snapshot returns a snapshot of current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		IndexServedTotal:     m.indexServedTotal,
		AssetsServedTotal:    m.assetsServedTotal,
		BytesStreamedTotal:   m.bytesStreamedTotal,
		StreamAvgDurationMs:  avgDuration(m.streamDurationTotal, m.indexServedTotal+m.assetsServedTotal),
		ReadFailuresTotal:    m.readFailuresTotal,
		DeniedTotal:          m.deniedTotal,
		MalformedTotal:       m.malformedTotal,
		UnsafePathsTotal:     m.unsafePathsTotal,
		ReaperScheduledTotal: m.reaperScheduledTotal,
		ReaperRemovedTotal:   m.reaperRemovedTotal,
		ReaperFailedTotal:    m.reaperFailedTotal,
		ReaperAbandonedTotal: m.reaperAbandonedTotal,
		SweptBundlesTotal:    m.sweptBundlesTotal,
		RequestsTotal:        m.requestsTotal,
		RequestErrors5xx:     m.requestErrors5xx,
		RequestErrors4xx:     m.requestErrors4xx,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	// Artifact metrics
	IndexServedTotal    int64   `json:"index_served_total"`
	AssetsServedTotal   int64   `json:"assets_served_total"`
	BytesStreamedTotal  int64   `json:"bytes_streamed_total"`
	StreamAvgDurationMs float64 `json:"stream_avg_duration_ms"`
	ReadFailuresTotal   int64   `json:"read_failures_total"`
	DeniedTotal         int64   `json:"denied_total"`
	MalformedTotal      int64   `json:"malformed_total"`
	UnsafePathsTotal    int64   `json:"unsafe_paths_total"`

	// Bundle lifecycle metrics
	ReaperScheduledTotal int64 `json:"reaper_scheduled_total"`
	ReaperRemovedTotal   int64 `json:"reaper_removed_total"`
	ReaperFailedTotal    int64 `json:"reaper_failed_total"`
	ReaperAbandonedTotal int64 `json:"reaper_abandoned_total"`
	SweptBundlesTotal    int64 `json:"swept_bundles_total"`

	// System metrics
	RequestsTotal    int64 `json:"requests_total"`
	RequestErrors5xx int64 `json:"request_errors_5xx"`
	RequestErrors4xx int64 `json:"request_errors_4xx"`
}

func avgDuration(total time.Duration, count int64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total.Milliseconds()) / float64(count)
}
