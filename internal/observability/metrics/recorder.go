package metrics

// EventRecorder is what the dispatcher reports to. It is called from the
// sender goroutine only, never from the audio callback.
type EventRecorder interface {
	// RecordDetection counts one admitted key event.
	RecordDetection(key string)

	// RecordSent counts one payload handed to the network sink.
	RecordSent(protocol string, sizeBytes int)

	// RecordEncodeError counts an event that could not be encoded.
	RecordEncodeError(protocol string)

	// ObserveDispatchLatency records queue-to-send latency in seconds.
	ObserveDispatchLatency(seconds float64)
}

// PipelineStats is a point-in-time snapshot of the counters owned by the
// real-time path. The audio callback only touches atomics; the collector
// reads them at scrape time.
type PipelineStats struct {
	BuffersProcessed uint64
	Suppressed       uint64
	QueueDepth       int
	QueueCapacity    int
	Dropped          uint64
	SendFailures     uint64
}

// StatsFunc returns the current PipelineStats.
type StatsFunc func() PipelineStats

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordDetection(string)         {}
func (NopRecorder) RecordSent(string, int)         {}
func (NopRecorder) RecordEncodeError(string)       {}
func (NopRecorder) ObserveDispatchLatency(float64) {}

var _ EventRecorder = NopRecorder{}
