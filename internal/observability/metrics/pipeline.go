package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains the Prometheus metrics for detection and dispatch.
// Push-style metrics are updated by the dispatcher; the real-time counters
// are pulled from a StatsFunc when the registry is scraped.
type PipelineMetrics struct {
	Detections      *prometheus.CounterVec
	Sent            *prometheus.CounterVec
	EncodeErrors    *prometheus.CounterVec
	PayloadSize     prometheus.Histogram
	DispatchLatency prometheus.Histogram

	buffersDesc    *prometheus.Desc
	suppressedDesc *prometheus.Desc
	depthDesc      *prometheus.Desc
	capacityDesc   *prometheus.Desc
	droppedDesc    *prometheus.Desc
	failuresDesc   *prometheus.Desc

	mu    sync.RWMutex
	stats StatsFunc
}

// NewPipelineMetrics creates and registers the pipeline collector.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtmf_detections_total",
		Help: "Total number of key events admitted by the debounce filter",
	}, []string{"key"})

	m.Sent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtmf_events_sent_total",
		Help: "Total number of encoded events handed to the UDP sink",
	}, []string{"protocol"})

	m.EncodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dtmf_encode_errors_total",
		Help: "Total number of events that could not be encoded",
	}, []string{"protocol"})

	m.PayloadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtmf_payload_size_bytes",
		Help:    "Size of encoded datagram payloads in bytes",
		Buckets: []float64{1, 4, 16, 32, BucketStart64B, 128, 256, 512},
	})

	m.DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dtmf_dispatch_latency_seconds",
		Help:    "Time from queue push to UDP send in seconds",
		Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount10),
	})

	m.buffersDesc = prometheus.NewDesc("dtmf_buffers_processed_total",
		"Total number of audio buffers classified", nil, nil)
	m.suppressedDesc = prometheus.NewDesc("dtmf_debounce_suppressed_total",
		"Total number of classifications suppressed by the repeat window", nil, nil)
	m.depthDesc = prometheus.NewDesc("dtmf_queue_depth",
		"Events waiting between the audio callback and the sender", nil, nil)
	m.capacityDesc = prometheus.NewDesc("dtmf_queue_capacity",
		"Event queue capacity", nil, nil)
	m.droppedDesc = prometheus.NewDesc("dtmf_queue_dropped_total",
		"Total number of events dropped because the queue was full", nil, nil)
	m.failuresDesc = prometheus.NewDesc("dtmf_send_failures_total",
		"Total number of datagrams that could not be written", nil, nil)
}

// SetStatsSource attaches the real-time counter snapshot used at scrape time.
func (m *PipelineMetrics) SetStatsSource(fn StatsFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = fn
}

// RecordDetection implements EventRecorder.
func (m *PipelineMetrics) RecordDetection(key string) {
	m.Detections.WithLabelValues(key).Inc()
}

// RecordSent implements EventRecorder.
func (m *PipelineMetrics) RecordSent(protocol string, sizeBytes int) {
	m.Sent.WithLabelValues(protocol).Inc()
	m.PayloadSize.Observe(float64(sizeBytes))
}

// RecordEncodeError implements EventRecorder.
func (m *PipelineMetrics) RecordEncodeError(protocol string) {
	m.EncodeErrors.WithLabelValues(protocol).Inc()
}

// ObserveDispatchLatency implements EventRecorder.
func (m *PipelineMetrics) ObserveDispatchLatency(seconds float64) {
	m.DispatchLatency.Observe(seconds)
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Detections.Describe(ch)
	m.Sent.Describe(ch)
	m.EncodeErrors.Describe(ch)
	ch <- m.PayloadSize.Desc()
	ch <- m.DispatchLatency.Desc()
	ch <- m.buffersDesc
	ch <- m.suppressedDesc
	ch <- m.depthDesc
	ch <- m.capacityDesc
	ch <- m.droppedDesc
	ch <- m.failuresDesc
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Detections.Collect(ch)
	m.Sent.Collect(ch)
	m.EncodeErrors.Collect(ch)
	ch <- m.PayloadSize
	ch <- m.DispatchLatency

	m.mu.RLock()
	fn := m.stats
	m.mu.RUnlock()
	if fn == nil {
		return
	}
	s := fn()
	ch <- prometheus.MustNewConstMetric(m.buffersDesc, prometheus.CounterValue, float64(s.BuffersProcessed))
	ch <- prometheus.MustNewConstMetric(m.suppressedDesc, prometheus.CounterValue, float64(s.Suppressed))
	ch <- prometheus.MustNewConstMetric(m.depthDesc, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(m.capacityDesc, prometheus.GaugeValue, float64(s.QueueCapacity))
	ch <- prometheus.MustNewConstMetric(m.droppedDesc, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(m.failuresDesc, prometheus.CounterValue, float64(s.SendFailures))
}

var _ EventRecorder = (*PipelineMetrics)(nil)
