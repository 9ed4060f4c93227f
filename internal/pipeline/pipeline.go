package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
	"github.com/dtmfin/dtmfin/internal/observability/metrics"
)

// Pipeline is the per-buffer work done inside the audio callback:
// classify, debounce, enqueue. Process must only be called from one
// goroutine at a time.
type Pipeline struct {
	classifier dtmf.Classifier
	filter     *detection.Filter
	queue      *EventQueue
	halt       <-chan struct{}
	buffers    atomic.Uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBlockingPush makes Process wait for queue space instead of dropping
// events, until halt is closed. Only sources that can pause, such as files,
// should use it.
func WithBlockingPush(halt <-chan struct{}) Option {
	return func(p *Pipeline) {
		p.halt = halt
	}
}

// New wires a classifier and debounce filter to a queue.
func New(classifier dtmf.Classifier, filter *detection.Filter, queue *EventQueue, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		filter:     filter,
		queue:      queue,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one buffer captured at stream time at. It never blocks
// unless the pipeline was built WithBlockingPush.
func (p *Pipeline) Process(samples []int16, at time.Duration) {
	p.buffers.Add(1)
	sym := p.classifier.Classify(samples)
	ev, ok := p.filter.Observe(sym, at)
	if !ok {
		return
	}
	if p.halt != nil {
		p.queue.PushWait(p.halt, ev)
		return
	}
	p.queue.Push(ev)
}

// Queue returns the event queue the pipeline feeds.
func (p *Pipeline) Queue() *EventQueue { return p.queue }

// Stats returns the counters owned by the real-time path.
func (p *Pipeline) Stats() metrics.PipelineStats {
	return metrics.PipelineStats{
		BuffersProcessed: p.buffers.Load(),
		Suppressed:       p.filter.Suppressed(),
		QueueDepth:       p.queue.Len(),
		QueueCapacity:    p.queue.Cap(),
		Dropped:          p.queue.Dropped(),
	}
}
