// Package capture adapts sound capture libraries to a callback that receives
// fixed-size mono int16 buffers together with a monotonic stream clock.
package capture

import (
	"strings"
	"time"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// DefaultDevice selects the system default input device.
const DefaultDevice = -1

// Backend names accepted by New.
const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
	BackendFile      = "file"
)

// Callback receives one buffer of exactly StreamConfig.BufferSize samples and
// the stream time of its first sample. It runs on the capture thread and must
// not block unless the backend is Lossless. The samples slice is reused after
// the callback returns.
type Callback func(samples []int16, at time.Duration)

// DeviceInfo describes one capture-capable device.
type DeviceInfo struct {
	Index            int
	Name             string
	IsDefault        bool
	MaxInputChannels int
}

// StreamConfig describes the stream requested from a backend.
type StreamConfig struct {
	Device     int // DefaultDevice or an index from Devices
	SampleRate int
	BufferSize int
	Channels   int
}

// StreamInfo reports what the backend actually opened.
type StreamInfo struct {
	DeviceName   string
	SampleRate   float64
	InputLatency time.Duration
	BufferSize   int
}

// Backend is a capture library binding. Init must succeed before any other
// method is used and Terminate releases everything Init acquired.
type Backend interface {
	Name() string
	Init() error
	Devices() ([]DeviceInfo, error)
	OpenStream(cfg StreamConfig, cb Callback) (Stream, error)
	Terminate() error
}

// Stream is an open capture stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
	Info() StreamInfo
}

// Finite is implemented by streams that can end on their own, such as a
// file reaching EOF or a device that disappears.
type Finite interface {
	Done() <-chan struct{}
}

// Lossless is implemented by backends whose source can wait for the
// callback, such as a file. Their callback may block without losing audio.
type Lossless interface {
	Lossless() bool
}

// RateProvider is implemented by backends whose sample rate is fixed by the
// source rather than by the requested StreamConfig.
type RateProvider interface {
	SampleRate() int
}

// New returns the live capture backend registered under name.
func New(name string, log logger.Logger) (Backend, error) {
	switch strings.ToLower(name) {
	case "", BackendMalgo:
		return NewMalgoBackend(log), nil
	case BackendPortAudio:
		return NewPortAudioBackend(log), nil
	default:
		return nil, errors.Newf("unknown capture backend %q", name).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Context("backend", name).
			Build()
	}
}

// initError wraps a driver failure so the driver text survives.
func initError(err error, backend, operation string) error {
	return errors.New(err).
		Component("capture").
		Category(errors.CategoryInitialization).
		Context("backend", backend).
		Context("operation", operation).
		Build()
}

// deviceIndexError reports a device index that does not name an input device.
func deviceIndexError(backend string, index, available int) error {
	return errors.New(errors.NewStd("-d takes a device index. Use -l to list all available devices.")).
		Component("capture").
		Category(errors.CategoryConfiguration).
		Context("backend", backend).
		Context("device", index).
		Context("available_devices", available).
		Build()
}

// validateStreamConfig fills in defaults and rejects unusable values.
func validateStreamConfig(cfg *StreamConfig, backend string) error {
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.SampleRate <= 0 || cfg.BufferSize <= 0 || cfg.Channels != 1 {
		return errors.Newf("unsupported stream format: %d Hz, %d frames, %d channels",
			cfg.SampleRate, cfg.BufferSize, cfg.Channels).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Context("backend", backend).
			Build()
	}
	return nil
}
