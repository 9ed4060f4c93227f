package capture

import (
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// malgoPeriods is the number of device periods miniaudio keeps queued.
const malgoPeriods = 2

// MalgoBackend captures through miniaudio using the native backend of the
// current platform.
type MalgoBackend struct {
	log logger.Logger
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend creates an uninitialized miniaudio backend.
func NewMalgoBackend(log logger.Logger) *MalgoBackend {
	return &MalgoBackend{log: log}
}

// Name implements Backend.
func (b *MalgoBackend) Name() string { return BackendMalgo }

// getBackend returns the appropriate backend for the current platform
func getBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// Init creates the miniaudio context.
func (b *MalgoBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext([]malgo.Backend{getBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryInitialization).
			Context("backend", BackendMalgo).
			Context("os", runtime.GOOS).
			Context("operation", "init_context").
			Build()
	}
	b.ctx = ctx
	return nil
}

// captureDevices enumerates capture devices, skipping the null sink that
// some ALSA setups report.
func (b *MalgoBackend) captureDevices() ([]malgo.DeviceInfo, error) {
	if b.ctx == nil {
		return nil, errors.New(errors.NewStd("capture backend not initialized")).
			Component("capture").
			Category(errors.CategoryState).
			Context("backend", BackendMalgo).
			Build()
	}
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, initError(err, BackendMalgo, "enumerate_devices")
	}
	devices := make([]malgo.DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		devices = append(devices, infos[i])
	}
	return devices, nil
}

// Devices implements Backend.
func (b *MalgoBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos, err := b.captureDevices()
	if err != nil {
		return nil, err
	}
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices, nil
}

// selectDevice resolves an index to a device. DefaultDevice picks the
// device flagged as default, or the first one.
func selectDevice(devices []malgo.DeviceInfo, index int) (*malgo.DeviceInfo, error) {
	if index == DefaultDevice {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
		return nil, errors.New(errors.NewStd("no audio capture devices found")).
			Component("capture").
			Category(errors.CategoryInitialization).
			Context("backend", BackendMalgo).
			Build()
	}
	if index < 0 || index >= len(devices) {
		return nil, deviceIndexError(BackendMalgo, index, len(devices))
	}
	return &devices[index], nil
}

// OpenStream implements Backend. The device is asked for signed 16-bit mono
// at the requested rate, so miniaudio does any conversion.
func (b *MalgoBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := validateStreamConfig(&cfg, BackendMalgo); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	devices, err := b.captureDevices()
	if err != nil {
		return nil, err
	}
	info, err := selectDevice(devices, cfg.Device)
	if err != nil {
		return nil, err
	}

	s := &malgoStream{
		log:        b.log,
		deviceName: info.Name(),
		cfg:        cfg,
		done:       make(chan struct{}),
		frames:     newReframer(cfg.BufferSize, cfg.SampleRate, cb),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BufferSize)
	deviceConfig.Periods = malgoPeriods
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryInitialization).
			Context("backend", BackendMalgo).
			Context("device_name", info.Name()).
			Context("operation", "init_device").
			Build()
	}
	s.device = device
	s.rate = device.SampleRate()
	return s, nil
}

// Terminate releases the miniaudio context.
func (b *MalgoBackend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	if err != nil {
		return initError(err, BackendMalgo, "uninit_context")
	}
	return nil
}

// malgoStream is one open miniaudio capture device.
type malgoStream struct {
	log        logger.Logger
	device     *malgo.Device
	deviceName string
	cfg        StreamConfig
	rate       uint32
	frames     *reframer

	stopping  atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

// onAudioData runs on the miniaudio thread.
func (s *malgoStream) onAudioData(_, pSamples []byte, framecount uint32) {
	n := int(framecount) * 2 * s.cfg.Channels
	if n > len(pSamples) {
		n = len(pSamples)
	}
	s.frames.writeS16LE(pSamples[:n])
}

// onDeviceStop fires on every stop. One that was not requested means the
// device went away, which ends the stream.
func (s *malgoStream) onDeviceStop() {
	if s.stopping.Load() {
		return
	}
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *malgoStream) Start() error {
	s.stopping.Store(false)
	if err := s.device.Start(); err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryInitialization).
			Context("backend", BackendMalgo).
			Context("device_name", s.deviceName).
			Context("operation", "start_device").
			Build()
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.stopping.Store(true)
	if !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return initError(err, BackendMalgo, "stop_device")
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		s.device.Uninit()
		if s.log != nil {
			s.log.Debug("capture device released",
				logger.String("device", s.deviceName),
				logger.Uint64("frames", s.frames.delivered()))
		}
	})
	return nil
}

func (s *malgoStream) Info() StreamInfo {
	rate := float64(s.rate)
	latency := time.Duration(0)
	if s.rate > 0 {
		latency = time.Duration(s.cfg.BufferSize*malgoPeriods) * time.Second / time.Duration(s.rate)
	}
	return StreamInfo{
		DeviceName:   s.deviceName,
		SampleRate:   rate,
		InputLatency: latency,
		BufferSize:   s.cfg.BufferSize,
	}
}

// Done implements Finite.
func (s *malgoStream) Done() <-chan struct{} { return s.done }
