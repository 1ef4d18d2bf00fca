package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Synchronizer packet flow
	packetsAdmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_packets_admitted_total",
		Help: "Packets admitted into a stream buffer",
	}, []string{"kind"})

	packetsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_packets_emitted_total",
		Help: "Packets handed to the sink",
	}, []string{"kind"})

	packetsEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_packets_evicted_total",
		Help: "Packets discarded for exceeding the staleness bound",
	}, []string{"kind"})

	packetsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_packets_rejected_total",
		Help: "Submissions refused before admission",
	}, []string{"reason"})

	packetsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "avsync_packets_released_total",
		Help: "Packets still buffered when a session shut down",
	})

	outOfOrderTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_out_of_order_total",
		Help: "Admissions whose capture time precedes the buffer tail",
	}, []string{"kind"})

	sinkErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_sink_errors_total",
		Help: "Errors returned by sinks while emitting",
	}, []string{"sink"})

	emitLag = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "avsync_emit_lag_seconds",
		Help:    "Time between capture and emission",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	}, []string{"kind"})

	evictedAge = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "avsync_evicted_age_seconds",
		Help:    "Age of packets at eviction",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})

	// Per-session gauges
	bufferDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avsync_buffer_depth",
		Help: "Packets currently buffered per stream kind",
	}, []string{"stream_id", "kind"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "avsync_ingest_queue_depth",
		Help: "Packets waiting in the ingest queue",
	}, []string{"stream_id"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "avsync_sessions_active",
		Help: "Number of running sync sessions",
	})

	// Registry
	registryPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "avsync_registry_publish_total",
		Help: "Session snapshot publications by result",
	}, []string{"result"})
)

func RecordAdmitted(kind string) {
	packetsAdmittedTotal.WithLabelValues(kind).Inc()
}

// RecordEmitted counts an emission and observes how long after capture it happened.
func RecordEmitted(kind string, lagSeconds float64) {
	packetsEmittedTotal.WithLabelValues(kind).Inc()
	if lagSeconds >= 0 {
		emitLag.WithLabelValues(kind).Observe(lagSeconds)
	}
}

func RecordEvicted(kind string, ageSeconds float64) {
	packetsEvictedTotal.WithLabelValues(kind).Inc()
	evictedAge.Observe(ageSeconds)
}

func RecordRejected(reason string) {
	packetsRejectedTotal.WithLabelValues(reason).Inc()
}

func RecordReleased(n int) {
	packetsReleasedTotal.Add(float64(n))
}

func RecordOutOfOrder(kind string) {
	outOfOrderTotal.WithLabelValues(kind).Inc()
}

func RecordSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

func SetBufferDepth(streamID, kind string, depth int) {
	bufferDepth.WithLabelValues(streamID, kind).Set(float64(depth))
}

func SetQueueDepth(streamID string, depth int) {
	queueDepth.WithLabelValues(streamID).Set(float64(depth))
}

// DeleteSession drops the per-session gauge series once a session is gone.
func DeleteSession(streamID string) {
	bufferDepth.DeletePartialMatch(prometheus.Labels{"stream_id": streamID})
	queueDepth.DeleteLabelValues(streamID)
}

func SetActiveSessions(count int) {
	sessionsActive.Set(float64(count))
}

func RecordRegistryPublish(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	registryPublishTotal.WithLabelValues(result).Inc()
}
