// Package lifecycle wires capture, detection and delivery together and owns
// the startup and shutdown order.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dtmfin/dtmfin/internal/capture"
	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
	"github.com/dtmfin/dtmfin/internal/encoder"
	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
	"github.com/dtmfin/dtmfin/internal/observability/metrics"
	"github.com/dtmfin/dtmfin/internal/pipeline"
	"github.com/dtmfin/dtmfin/internal/sink"
)

// DefaultPollInterval is how often the control loop checks for a stop request.
const DefaultPollInterval = 100 * time.Millisecond

// State is a controller lifecycle state.
type State int32

const (
	Uninitialized State = iota
	CaptureReady
	StreamOpen
	Running
	StopRequested
	StreamClosed
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case CaptureReady:
		return "capture-ready"
	case StreamOpen:
		return "stream-open"
	case Running:
		return "running"
	case StopRequested:
		return "stop-requested"
	case StreamClosed:
		return "stream-closed"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Stop reasons reported by Run.
const (
	ReasonStopRequested = "stop requested"
	ReasonCancelled     = "context cancelled"
	ReasonStreamEnded   = "stream ended"
)

// Config is everything the controller needs to build the pipeline.
type Config struct {
	Device          int
	SampleRate      int
	BufferSize      int
	RepeatThreshold time.Duration

	Host      string
	Port      int
	Broadcast bool
	Protocol  encoder.Protocol
	OSCPath   string
	QueueSize int

	PollInterval time.Duration
}

// Mirror is an optional secondary event consumer such as the MQTT publisher.
type Mirror interface {
	pipeline.Mirror
	Close() error
}

// Controller runs one capture session.
type Controller struct {
	cfg      Config
	backend  capture.Backend
	log      logger.Logger
	mirror   Mirror
	metrics  *metrics.PipelineMetrics
	state    atomic.Int32
	running  atomic.Bool
	reason   atomic.Value // string
	pipeline atomic.Pointer[pipeline.Pipeline]
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Components get module loggers derived from it.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMirror adds a secondary event consumer. The controller closes it on
// shutdown.
func WithMirror(m Mirror) Option {
	return func(c *Controller) {
		c.mirror = m
	}
}

// WithMetrics reports pipeline counters to m.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates a controller in the Uninitialized state.
func New(cfg Config, backend capture.Backend, opts ...Option) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	c := &Controller{
		cfg:     cfg,
		backend: backend,
		log:     logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.running.Store(true)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// RequestStop asks the control loop to shut down. It only flips a flag, so
// it is safe to call from a signal handler goroutine. It reports whether
// this was the first request.
func (c *Controller) RequestStop() bool {
	return c.running.CompareAndSwap(true, false)
}

// StopReason returns why the last Run left its control loop.
func (c *Controller) StopReason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}

// Stats returns the live pipeline counters, or zero values before the
// pipeline is built.
func (c *Controller) Stats() metrics.PipelineStats {
	if p := c.pipeline.Load(); p != nil {
		return p.Stats()
	}
	return metrics.PipelineStats{}
}

func configError(err error, operation string) error {
	return errors.New(err).
		Component("lifecycle").
		Category(errors.CategoryConfiguration).
		Context("operation", operation).
		Build()
}

// streamError records how long a failing stream call took. The category of
// the backend error is kept.
func streamError(err error, operation string, took time.Duration) error {
	return errors.New(err).
		Component("lifecycle").
		Timing(operation, took).
		Build()
}

// Run starts capture and blocks until a stop request, ctx cancellation or
// the end of a finite stream. Startup failures release whatever was already
// acquired and are returned.
func (c *Controller) Run(ctx context.Context) (err error) {
	log := c.log.Module("lifecycle")

	// Cleanups run in reverse order of acquisition.
	var cleanups []func()
	release := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		cleanups = nil
	}
	var mirrorOnce sync.Once
	closeMirror := func() {
		mirrorOnce.Do(func() {
			if c.mirror == nil {
				return
			}
			if err := c.mirror.Close(); err != nil {
				log.Warn("mirror close failed", logger.Error(err))
			}
		})
	}
	started := false
	defer func() {
		if err != nil && !started {
			release()
			closeMirror()
			c.setState(Terminated)
			log.Error("startup failed", logger.Error(err))
		}
	}()

	if err := c.backend.Init(); err != nil {
		_ = c.backend.Terminate()
		return err
	}
	cleanups = append(cleanups, func() {
		if err := c.backend.Terminate(); err != nil {
			log.Warn("capture terminate failed", logger.Error(err))
		}
	})
	c.setState(CaptureReady)

	sampleRate := c.cfg.SampleRate
	if rp, ok := c.backend.(capture.RateProvider); ok && rp.SampleRate() > 0 {
		sampleRate = rp.SampleRate()
	}
	detector, err := dtmf.NewDetector(sampleRate, c.cfg.BufferSize)
	if err != nil {
		return configError(err, "setup_detector")
	}

	endpoint, err := sink.ResolveEndpoint(ctx, c.cfg.Host, c.cfg.Port, c.cfg.Broadcast)
	if err != nil {
		return err
	}
	udp, err := sink.NewUDPSink(ctx, endpoint, sink.WithLogger(c.log.Module("sink")))
	if err != nil {
		return err
	}
	cleanups = append(cleanups, func() { _ = udp.Close() }, closeMirror)

	enc, err := encoder.New(c.cfg.Protocol, c.cfg.OSCPath)
	if err != nil {
		return err
	}

	// A lossless source waits for the dispatcher instead of dropping events.
	// halt releases a waiting callback once the session is stopping.
	halt := make(chan struct{})
	releasePush := sync.OnceFunc(func() { close(halt) })
	cleanups = append(cleanups, releasePush)
	var plOpts []pipeline.Option
	if l, ok := c.backend.(capture.Lossless); ok && l.Lossless() {
		plOpts = append(plOpts, pipeline.WithBlockingPush(halt))
	}

	queue := pipeline.NewEventQueue(c.cfg.QueueSize)
	pl := pipeline.New(detector, detection.NewFilter(c.cfg.RepeatThreshold), queue, plOpts...)
	c.pipeline.Store(pl)

	dispatchOpts := []pipeline.DispatcherOption{pipeline.WithLogger(c.log.Module("pipeline"))}
	if c.mirror != nil {
		dispatchOpts = append(dispatchOpts, pipeline.WithMirror(c.mirror))
	}
	if c.metrics != nil {
		dispatchOpts = append(dispatchOpts, pipeline.WithRecorder(c.metrics))
		c.metrics.SetStatsSource(func() metrics.PipelineStats {
			stats := pl.Stats()
			stats.SendFailures = udp.Failed()
			return stats
		})
	}
	dispatcher := pipeline.NewDispatcher(queue, enc, udp, dispatchOpts...)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { dispatcher.Run(dispatchCtx) })
	cleanups = append(cleanups, func() {
		stopDispatch()
		wg.Wait()
	})

	log.Info("sending events",
		logger.String("protocol", string(enc.Protocol())),
		logger.String("host", c.cfg.Host),
		logger.Int("port", c.cfg.Port),
		logger.String("path", c.cfg.OSCPath),
		logger.Bool("broadcast", c.cfg.Broadcast))
	log.Info("time for repeated detection", logger.Duration("timeout", c.cfg.RepeatThreshold))
	log.Info("samplerate is set", logger.Int("sample_rate", sampleRate))

	began := time.Now()
	stream, err := c.backend.OpenStream(capture.StreamConfig{
		Device:     c.cfg.Device,
		SampleRate: sampleRate,
		BufferSize: c.cfg.BufferSize,
		Channels:   1,
	}, pl.Process)
	if err != nil {
		return streamError(err, "open_stream", time.Since(began))
	}
	var closeOnce sync.Once
	closeStream := func() {
		closeOnce.Do(func() {
			if err := stream.Close(); err != nil {
				log.Warn("stream close failed", logger.Error(err))
			}
		})
	}
	cleanups = append(cleanups, closeStream)
	c.setState(StreamOpen)

	began = time.Now()
	if err := stream.Start(); err != nil {
		return streamError(err, "start_stream", time.Since(began))
	}
	c.setState(Running)
	started = true

	info := stream.Info()
	log.Info("audio initialized",
		logger.String("device", info.DeviceName),
		logger.Duration("latency", info.InputLatency),
		logger.Float64("sample_rate", info.SampleRate),
		logger.Int("buffer_size", info.BufferSize))
	log.Info("ready for detection")

	reason := c.wait(ctx, stream)
	c.reason.Store(reason)
	c.setState(StopRequested)
	log.Info("stopping", logger.String("reason", reason))
	releasePush()

	// Shutdown order: stream, dispatcher, sink and mirror, backend.
	var stopErr error
	if err := stream.Stop(); err != nil {
		stopErr = err
		log.Warn("stream stop failed", logger.Error(err))
	}
	closeStream()
	c.setState(StreamClosed)

	if reason == ReasonStreamEnded {
		if e, ok := stream.(interface{ Err() error }); ok && e.Err() != nil {
			stopErr = errors.Join(stopErr, e.Err())
		}
	}

	release()
	c.setState(Terminated)

	stats := c.Stats()
	log.Info("capture session finished",
		logger.Uint64("buffers", stats.BuffersProcessed),
		logger.Uint64("events", dispatcher.Dispatched()),
		logger.Uint64("dropped", stats.Dropped),
		logger.Uint64("send_failures", udp.Failed()))
	if err := log.Flush(); err != nil && stopErr == nil {
		stopErr = err
	}
	return stopErr
}

// wait blocks in the control context until there is a reason to stop.
func (c *Controller) wait(ctx context.Context, stream capture.Stream) string {
	var done <-chan struct{}
	if f, ok := stream.(capture.Finite); ok {
		done = f.Done()
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if !c.running.Load() {
			return ReasonStopRequested
		}
		select {
		case <-ctx.Done():
			return ReasonCancelled
		case <-done:
			return ReasonStreamEnded
		case <-ticker.C:
		}
	}
}

// ListDevices prints the capture-capable devices of backend to w. The
// backend is always terminated before returning.
func ListDevices(backend capture.Backend, w io.Writer) (err error) {
	defer func() {
		if terr := backend.Terminate(); err == nil {
			err = terr
		}
	}()
	if err := backend.Init(); err != nil {
		return err
	}
	devices, err := backend.Devices()
	if err != nil {
		return err
	}

	if _, err := fmt.Fprint(w, "Available audio devices:\nIndex\tName\n-----\t------------------\n"); err != nil {
		return err
	}
	for _, d := range devices {
		if _, err := fmt.Fprintf(w, "%d\t%s\n", d.Index, d.Name); err != nil {
			return err
		}
	}
	return nil
}
