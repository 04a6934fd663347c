package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hybridstream",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	FragmentLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "fragment_loads_total",
		Help:      "Fragment load requests by delivery path and outcome.",
	}, []string{"path", "outcome"})

	FragmentBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "fragment_bytes_total",
		Help:      "Payload bytes delivered to the player by delivery path.",
	}, []string{"path"})

	SynthesizedBandwidthBps = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybridstream",
		Name:      "synthesized_bandwidth_bps",
		Help:      "Backend-reported transfer rate of the most recent backend load, bits per second.",
	})

	FallbackRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "fallback_retries_total",
		Help:      "Total retry attempts made by the fallback HTTP loader.",
	})

	SegmentsAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "reconciler_segments_added_total",
		Help:      "Segments staged for addition by the playlist reconciler.",
	})

	SegmentsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "reconciler_segments_removed_total",
		Help:      "Stale segments reported for removal by the playlist reconciler.",
	})

	StreamUpdatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "hybridstream",
		Name:      "reconciler_stream_updates_total",
		Help:      "Non-empty stream updates issued to the backend.",
	})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybridstream",
		Name:      "active_streams",
		Help:      "Number of streams currently registered with the backend.",
	})

	LiveSyncCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybridstream",
		Name:      "live_sync_duration_count",
		Help:      "Current live-sync duration count applied to the player.",
	})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hybridstream",
		Name:      "ws_clients",
		Help:      "Number of connected WebSocket event subscribers.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FragmentLoadsTotal,
		FragmentBytesTotal,
		SynthesizedBandwidthBps,
		FallbackRetriesTotal,
		SegmentsAddedTotal,
		SegmentsRemovedTotal,
		StreamUpdatesTotal,
		ActiveStreams,
		LiveSyncCount,
		WSClients,
	)
}
