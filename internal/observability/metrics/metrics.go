// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gst_deepspeech"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamDuration prometheus.Histogram

	// Audio metrics
	BuffersReceived  prometheus.Counter
	AudioBytes       prometheus.Counter
	BufferSumSquares prometheus.Histogram
	BufferPeakSquare prometheus.Histogram

	// Segment metrics
	SegmentsFlushed   prometheus.Counter
	SegmentsSubmitted prometheus.Counter
	SegmentsDropped   *prometheus.CounterVec
	SegmentDuration   prometheus.Histogram

	// Dispatch metrics
	QueueDepth       prometheus.Gauge
	InferenceLatency prometheus.Histogram
	InferenceErrors  *prometheus.CounterVec
	EmptyResults     prometheus.Counter
	DrainDiscards    prometheus.Counter

	// Event metrics
	EventsEmitted       prometheus.Counter
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of audio streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active audio streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of audio streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		BuffersReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_received_total",
			Help:      "Total audio buffers received",
		}),
		AudioBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		BufferSumSquares: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffer_sum_squares",
			Help:      "Normalized per-buffer sum of squared samples",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		BufferPeakSquare: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffer_peak_square",
			Help:      "Normalized per-buffer peak squared sample",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		SegmentsFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_flushed_total",
			Help:      "Total speech segments flushed by the silence gate",
		}),
		SegmentsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_submitted_total",
			Help:      "Total segments accepted by the inference dispatcher",
		}),
		SegmentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Total segments dropped",
		}, []string{"reason"}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Cumulative audio duration of flushed segments",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Segments waiting in dispatch queues, summed across streams",
		}),
		InferenceLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Wall time of serialized inference calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		InferenceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Total inference pipeline failures",
		}, []string{"stage"}),
		EmptyResults: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_empty_results_total",
			Help:      "Total inference calls that recognized no text",
		}),
		DrainDiscards: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_discarded_segments_total",
			Help:      "Segments explicitly discarded during cancelled drains",
		}),

		EventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Total recognition events posted to the event bus",
		}),
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
}

// RecordBuffer records one received buffer and its loudness metrics.
func (m *Metrics) RecordBuffer(bytes int, sumSquares, peakSquare float64) {
	m.BuffersReceived.Inc()
	m.AudioBytes.Add(float64(bytes))
	m.BufferSumSquares.Observe(sumSquares)
	m.BufferPeakSquare.Observe(peakSquare)
}

// RecordFlush records a segment flushed by the silence gate.
func (m *Metrics) RecordFlush(durationSeconds float64) {
	m.SegmentsFlushed.Inc()
	m.SegmentDuration.Observe(durationSeconds)
}

// RecordSubmit records a segment accepted by the dispatcher.
func (m *Metrics) RecordSubmit() {
	m.SegmentsSubmitted.Inc()
}

// RecordSegmentDropped records a segment dropped for the given reason.
func (m *Metrics) RecordSegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

// RecordInference records one serialized inference call.
func (m *Metrics) RecordInference(latencySeconds float64) {
	m.InferenceLatency.Observe(latencySeconds)
}

// RecordInferenceError records a failure at the given pipeline stage.
func (m *Metrics) RecordInferenceError(stage string) {
	m.InferenceErrors.WithLabelValues(stage).Inc()
}

// RecordEmptyResult records an inference call that produced no text.
func (m *Metrics) RecordEmptyResult() {
	m.EmptyResults.Inc()
}

// RecordDrainDiscard records segments discarded by a cancelled drain.
func (m *Metrics) RecordDrainDiscard(n int) {
	m.DrainDiscards.Add(float64(n))
}

// RecordEventEmitted records one recognition event handed to the event sink.
func (m *Metrics) RecordEventEmitted() {
	m.EventsEmitted.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
