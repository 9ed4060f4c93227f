package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/encoder"
	"github.com/dtmfin/dtmfin/internal/logger"
	"github.com/dtmfin/dtmfin/internal/observability/metrics"
)

// Sender delivers one encoded payload. Implementations must not retain
// payload after returning.
type Sender interface {
	Send(payload []byte)
}

// Mirror receives every dispatched event in addition to the sender.
type Mirror interface {
	Publish(ev detection.Event)
}

// Dispatcher is the single consumer of an EventQueue. It encodes each event
// and hands it to the sender and any mirrors.
type Dispatcher struct {
	queue    *EventQueue
	enc      encoder.Encoder
	sender   Sender
	mirrors  []Mirror
	log      logger.Logger
	recorder metrics.EventRecorder

	dispatched   atomic.Uint64
	encodeErrors atomic.Uint64
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMirror adds a mirror such as the MQTT publisher.
func WithMirror(m Mirror) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.mirrors = append(d.mirrors, m)
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.EventRecorder) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithLogger sets the logger. Each event is logged at info level.
func WithLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// NewDispatcher creates a dispatcher for queue.
func NewDispatcher(queue *EventQueue, enc encoder.Encoder, sender Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:    queue,
		enc:      enc,
		sender:   sender,
		recorder: metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run consumes events until ctx is cancelled, then drains whatever is
// still queued and returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		d.drain()
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.queue.Ready():
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		qe, ok := d.queue.pop()
		if !ok {
			return
		}
		d.dispatch(qe)
	}
}

func (d *Dispatcher) dispatch(qe queuedEvent) {
	protocol := string(d.enc.Protocol())
	key := qe.Symbol.String()

	if d.log != nil {
		d.log.Info("key detected",
			logger.String("key", key),
			logger.Duration("stream_time", qe.Time))
	}
	d.recorder.RecordDetection(key)

	payload, err := d.enc.Encode(qe.Event)
	if err != nil {
		d.encodeErrors.Add(1)
		d.recorder.RecordEncodeError(protocol)
		if d.log != nil {
			d.log.Warn("event not encoded", logger.Error(err), logger.String("key", key))
		}
	} else {
		d.sender.Send(payload)
		d.recorder.RecordSent(protocol, len(payload))
		d.recorder.ObserveDispatchLatency(time.Since(qe.pushed).Seconds())
	}

	for _, m := range d.mirrors {
		m.Publish(qe.Event)
	}
	d.dispatched.Add(1)
}

// Dispatched returns the number of events taken off the queue.
func (d *Dispatcher) Dispatched() uint64 { return d.dispatched.Load() }

// EncodeErrors returns the number of events that could not be encoded.
func (d *Dispatcher) EncodeErrors() uint64 { return d.encodeErrors.Load() }
