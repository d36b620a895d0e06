package api

import (
	"net/http"
	"runtime"
	"time"
)

// RuntimeMetrics is the body of GET /api/v1/metrics.
type RuntimeMetrics struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Runtime       GoRuntimeMetrics    `json:"runtime"`
	Subscriptions SubscriptionMetrics `json:"subscriptions"`
	Stream        StreamMetrics       `json:"stream"`
}

// GoRuntimeMetrics contains Go runtime statistics.
type GoRuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// SubscriptionMetrics totals the counters of every topic client.
type SubscriptionMetrics struct {
	Total             int            `json:"total"`
	ByState           map[string]int `json:"by_state"`
	ConnectAttempts   uint64         `json:"connect_attempts"`
	Disconnects       uint64         `json:"disconnects"`
	EventsReceived    uint64         `json:"events_received"`
	MalformedMessages uint64         `json:"malformed_messages"`
	HandlerFailures   uint64         `json:"handler_failures"`
}

// StreamMetrics describes the event stream hub.
type StreamMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleRuntimeMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m := RuntimeMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: GoRuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		Subscriptions: SubscriptionMetrics{ByState: make(map[string]int)},
		Stream:        StreamMetrics{ConnectedClients: s.hub.ClientCount()},
	}

	for _, st := range s.status.Snapshot() {
		sm := &m.Subscriptions
		sm.Total++
		sm.ByState[st.State]++
		sm.ConnectAttempts += st.ConnectAttempts
		sm.Disconnects += st.Disconnects
		sm.EventsReceived += st.EventsReceived
		sm.MalformedMessages += st.MalformedMessages
		sm.HandlerFailures += st.HandlerFailures
	}

	writeJSON(w, http.StatusOK, m)
}
