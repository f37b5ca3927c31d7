// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_dialogue"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec

	// Capture metrics
	ChunksEmitted   prometheus.Counter
	ChunkPeak       prometheus.Histogram
	DeviceLosses    prometheus.Counter
	CaptureWaitTime prometheus.Histogram

	// Recognition metrics
	ChunksSent         prometheus.Counter
	RecognitionEvents  *prometheus.CounterVec
	RecognitionErrors  prometheus.Counter
	RecognitionLatency prometheus.Histogram

	// Dialogue metrics
	DialogueRequests prometheus.Counter
	DialogueMissing  prometheus.Counter
	DialogueInFlight prometheus.Gauge
	DialogueLatency  prometheus.Histogram
	TotalLatency     prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	RPCTotal *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of capture/recognition sessions activated",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "1 while a session is active, 0 otherwise",
		}),
		SessionsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of sessions deactivated",
		}, []string{"reason"}),

		// Capture metrics
		ChunksEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_chunks_emitted_total",
			Help:      "Total number of half-buffer chunks emitted by the capture engine",
		}),
		ChunkPeak: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_chunk_peak_amplitude",
			Help:      "Peak absolute sample amplitude per emitted chunk",
			Buckets:   []float64{0.001, 0.01, 0.03, 0.1, 0.25, 0.5, 0.75, 1},
		}),
		DeviceLosses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_device_losses_total",
			Help:      "Total number of capture devices lost mid-session",
		}),
		CaptureWaitTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_wait_seconds",
			Help:      "Suspension scheduled by the capture loop between polls",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		// Recognition metrics
		ChunksSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_chunks_sent_total",
			Help:      "Total number of audio chunks pushed to the recognizer",
		}),
		RecognitionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_results_total",
			Help:      "Total number of recognition result groups received",
		}, []string{"type"}),
		RecognitionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of errors reported by the recognizer",
		}),
		RecognitionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_latency_seconds",
			Help:      "Time from last audio chunk sent to final transcript",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		// Dialogue metrics
		DialogueRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_requests_total",
			Help:      "Total number of dialogue requests issued",
		}),
		DialogueMissing: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogue_responses_missing_total",
			Help:      "Total number of dialogue calls that produced no response",
		}),
		DialogueInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dialogue_requests_in_flight",
			Help:      "Dialogue requests awaiting a response",
		}),
		DialogueLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dialogue_latency_seconds",
			Help:      "Time from dialogue request sent to response received",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		TotalLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "total_latency_seconds",
			Help:      "Recognition latency plus dialogue latency per utterance",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		RPCTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls served",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a session becoming active.
func (m *Metrics) RecordSessionStart() {
	m.SessionsStarted.Inc()
	m.SessionsActive.Set(1)
}

// RecordSessionEnd records a session becoming inactive.
func (m *Metrics) RecordSessionEnd(reason string) {
	m.SessionsActive.Set(0)
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// RecordChunk records an emitted capture chunk and its peak amplitude.
func (m *Metrics) RecordChunk(peak float32) {
	m.ChunksEmitted.Inc()
	m.ChunkPeak.Observe(float64(peak))
}

// RecordDeviceLoss records a capture device disappearing mid-session.
func (m *Metrics) RecordDeviceLoss() {
	m.DeviceLosses.Inc()
}

// RecordCaptureWait records a scheduled capture suspension.
func (m *Metrics) RecordCaptureWait(d time.Duration) {
	m.CaptureWaitTime.Observe(d.Seconds())
}

// RecordChunkSent records a chunk pushed to the recognizer.
func (m *Metrics) RecordChunkSent() {
	m.ChunksSent.Inc()
}

// RecordRecognitionResult records one recognition result group.
func (m *Metrics) RecordRecognitionResult(final bool) {
	if final {
		m.RecognitionEvents.WithLabelValues("final").Inc()
		return
	}
	m.RecognitionEvents.WithLabelValues("interim").Inc()
}

// RecordRecognitionError records an error reported by the recognizer.
func (m *Metrics) RecordRecognitionError() {
	m.RecognitionErrors.Inc()
}

// RecordDialogueRequest records a dialogue request being issued.
func (m *Metrics) RecordDialogueRequest() {
	m.DialogueRequests.Inc()
	m.DialogueInFlight.Inc()
}

// RecordDialogueDone records a dialogue call leaving flight, answered or not.
func (m *Metrics) RecordDialogueDone(missing bool) {
	m.DialogueInFlight.Dec()
	if missing {
		m.DialogueMissing.Inc()
	}
}

// RecordTurnLatency records the latencies of one completed utterance.
func (m *Metrics) RecordTurnLatency(recognition, dialogue time.Duration) {
	m.RecognitionLatency.Observe(recognition.Seconds())
	m.DialogueLatency.Observe(dialogue.Seconds())
	m.TotalLatency.Observe((recognition + dialogue).Seconds())
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRPC records a served gRPC call.
func (m *Metrics) RecordRPC(method, code string) {
	m.RPCTotal.WithLabelValues(method, code).Inc()
}
