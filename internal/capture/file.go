package capture

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// FileBackend plays a WAV or FLAC file through the capture callback. Multichannel
// files are mixed down to mono and samples are scaled to 16 bits. Trailing
// frames that do not fill a whole buffer are not delivered.
type FileBackend struct {
	path     string
	log      logger.Logger
	realtime bool

	mu     sync.Mutex
	file   *os.File
	dec    pcmDecoder
	format audioFormat
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithRealtime paces delivery to the file's sample rate instead of reading
// as fast as possible.
func WithRealtime(realtime bool) FileOption {
	return func(b *FileBackend) {
		b.realtime = realtime
	}
}

// NewFileBackend creates a backend for the audio file at path.
func NewFileBackend(path string, log logger.Logger, opts ...FileOption) *FileBackend {
	b := &FileBackend{path: path, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *FileBackend) Name() string { return BackendFile }

func fileError(err error, path, operation string) error {
	return errors.New(err).
		Component("capture").
		Category(errors.CategoryFileIO).
		Context("file", path).
		Context("operation", operation).
		Build()
}

// Init opens the file and reads its header.
func (b *FileBackend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		return nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		return fileError(err, b.path, "open")
	}

	dec, format, err := openDecoder(f, b.path)
	if err != nil {
		_ = f.Close()
		return err
	}

	b.file = f
	b.dec = dec
	b.format = format
	return nil
}

// SampleRate implements RateProvider. It is valid after Init.
func (b *FileBackend) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dec == nil {
		return 0
	}
	return b.format.sampleRate
}

// Lossless implements Lossless. A file is read only as fast as the callback
// consumes it.
func (b *FileBackend) Lossless() bool { return true }

// Devices implements Backend. The file is the only device.
func (b *FileBackend) Devices() ([]DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dec == nil {
		return nil, fileError(errors.NewStd("file backend not initialized"), b.path, "devices")
	}
	return []DeviceInfo{{
		Index:            0,
		Name:             filepath.Base(b.path),
		IsDefault:        true,
		MaxInputChannels: b.format.channels,
	}}, nil
}

// OpenStream implements Backend. The requested rate must match the file.
func (b *FileBackend) OpenStream(cfg StreamConfig, cb Callback) (Stream, error) {
	if err := validateStreamConfig(&cfg, BackendFile); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dec == nil {
		return nil, fileError(errors.NewStd("file backend not initialized"), b.path, "open_stream")
	}
	if cfg.Device != DefaultDevice && cfg.Device != 0 {
		return nil, deviceIndexError(BackendFile, cfg.Device, 1)
	}
	if cfg.SampleRate != b.format.sampleRate {
		return nil, errors.Newf("stream rate %d Hz does not match file rate %d Hz", cfg.SampleRate, b.format.sampleRate).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Context("file", b.path).
			Build()
	}

	return &fileStream{
		log:      b.log,
		name:     filepath.Base(b.path),
		dec:      b.dec,
		cfg:      cfg,
		chans:    b.format.channels,
		shift:    uint(b.format.bitDepth) - 16,
		realtime: b.realtime,
		frames:   newReframer(cfg.BufferSize, cfg.SampleRate, cb),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Terminate closes the file.
func (b *FileBackend) Terminate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	b.dec = nil
	b.format = audioFormat{}
	if err != nil {
		return fileError(err, b.path, "close")
	}
	return nil
}

// fileStream reads the decoder on its own goroutine.
type fileStream struct {
	log      logger.Logger
	name     string
	dec      pcmDecoder
	cfg      StreamConfig
	chans    int
	shift    uint
	realtime bool
	frames   *reframer

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	mu        sync.Mutex
	err       error
	quit      chan struct{}
	done      chan struct{}
}

func (s *fileStream) Start() error {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.started = true
		s.mu.Unlock()
		go s.run()
	})
	return nil
}

func (s *fileStream) run() {
	defer close(s.done)

	buf := make([]int, s.cfg.BufferSize*s.chans)
	mono := make([]int16, 0, s.cfg.BufferSize)
	carry := make([]int, 0, s.chans)
	begin := time.Now()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		n, err := s.dec.read(buf)
		if err != nil {
			s.setErr(fileError(err, s.name, "read_pcm"))
			return
		}
		if n == 0 {
			return
		}

		mono = mono[:0]
		for _, v := range buf[:n] {
			carry = append(carry, v)
			if len(carry) < s.chans {
				continue
			}
			sum := 0
			for _, c := range carry {
				sum += c
			}
			mono = append(mono, int16((sum/s.chans)>>s.shift))
			carry = carry[:0]
		}
		s.frames.write(mono)

		if s.realtime && !s.pace(begin) {
			return
		}
	}
}

// pace sleeps until the wall clock catches up with the stream clock. It
// returns false when the stream is being stopped.
func (s *fileStream) pace(begin time.Time) bool {
	wait := time.Until(begin.Add(s.frames.clock()))
	if wait <= 0 {
		return true
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-s.quit:
		return false
	case <-t.C:
		return true
	}
}

func (s *fileStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the read error that ended the stream, if any.
func (s *fileStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fileStream) Stop() error {
	s.stopOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
	return nil
}

func (s *fileStream) Close() error {
	err := s.Stop()
	if s.log != nil {
		s.log.Debug("file stream closed",
			logger.String("file", s.name),
			logger.Uint64("frames", s.frames.delivered()))
	}
	return err
}

func (s *fileStream) Info() StreamInfo {
	return StreamInfo{
		DeviceName: s.name,
		SampleRate: float64(s.cfg.SampleRate),
		BufferSize: s.cfg.BufferSize,
	}
}

// Done implements Finite.
func (s *fileStream) Done() <-chan struct{} { return s.done }
