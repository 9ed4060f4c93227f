package capture

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// PortAudioBackend captures through the PortAudio library. Device indices
// are PortAudio's global device indices.
type PortAudioBackend struct {
	log         logger.Logger
	mu          sync.Mutex
	initialized bool
}

// NewPortAudioBackend creates an uninitialized PortAudio backend.
func NewPortAudioBackend(log logger.Logger) *PortAudioBackend {
	return &PortAudioBackend{log: log}
}

// Name implements Backend.
func (b *PortAudioBackend) Name() string { return BackendPortAudio }

// Init implements Backend.
func (b *PortAudioBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return initError(err, BackendPortAudio, "initialize")
	}
	b.initialized = true
	return nil
}

// Devices implements Backend. Only devices with input channels are listed.
func (b *PortAudioBackend) Devices() ([]DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, initError(err, BackendPortAudio, "enumerate_devices")
	}
	def, _ := portaudio.DefaultInputDevice()

	devices := make([]DeviceInfo, 0, len(all))
	for i, d := range all {
		if d.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:            i,
			Name:             d.Name,
			IsDefault:        d == def,
			MaxInputChannels: d.MaxInputChannels,
		})
	}
	return devices, nil
}

func (b *PortAudioBackend) inputDevice(index int) (*portaudio.DeviceInfo, error) {
	if index == DefaultDevice {
		d, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, initError(err, BackendPortAudio, "default_input_device")
		}
		return d, nil
	}
	all, err := portaudio.Devices()
	if err != nil {
		return nil, initError(err, BackendPortAudio, "enumerate_devices")
	}
	if index < 0 || index >= len(all) || all[index].MaxInputChannels <= 0 {
		return nil, deviceIndexError(BackendPortAudio, index, len(all))
	}
	return all[index], nil
}

// OpenStream implements Backend.
func (b *PortAudioBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := validateStreamConfig(&cfg, BackendPortAudio); err != nil {
		return nil, err
	}
	dev, err := b.inputDevice(cfg.Device)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = cfg.Channels
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BufferSize

	frames := newReframer(cfg.BufferSize, cfg.SampleRate, cb)
	stream, err := portaudio.OpenStream(params, func(in []int16) {
		frames.write(in)
	})
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryInitialization).
			Context("backend", BackendPortAudio).
			Context("device_name", dev.Name).
			Context("operation", "open_stream").
			Build()
	}
	return &portAudioStream{
		log:        b.log,
		stream:     stream,
		deviceName: dev.Name,
		cfg:        cfg,
		frames:     frames,
	}, nil
}

// Terminate implements Backend.
func (b *PortAudioBackend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}
	b.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return initError(err, BackendPortAudio, "terminate")
	}
	return nil
}

type portAudioStream struct {
	log        logger.Logger
	stream     *portaudio.Stream
	deviceName string
	cfg        StreamConfig
	frames     *reframer
	closeOnce  sync.Once
	closeErr   error
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return initError(err, BackendPortAudio, "start_stream")
	}
	return nil
}

func (s *portAudioStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return initError(err, BackendPortAudio, "stop_stream")
	}
	return nil
}

func (s *portAudioStream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.closeErr = initError(err, BackendPortAudio, "close_stream")
		}
		if s.log != nil {
			s.log.Debug("capture stream closed",
				logger.String("device", s.deviceName),
				logger.Uint64("frames", s.frames.delivered()))
		}
	})
	return s.closeErr
}

func (s *portAudioStream) Info() StreamInfo {
	info := StreamInfo{
		DeviceName: s.deviceName,
		SampleRate: float64(s.cfg.SampleRate),
		BufferSize: s.cfg.BufferSize,
	}
	if si := s.stream.Info(); si != nil {
		info.SampleRate = si.SampleRate
		info.InputLatency = si.InputLatency
	}
	return info
}
