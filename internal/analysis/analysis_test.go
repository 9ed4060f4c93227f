package analysis

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dtmfin/dtmfin/internal/conf"
	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
	"github.com/dtmfin/dtmfin/internal/encoder"
	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testRate   = 8000
	testBuffer = 205
)

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func defaultSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings, err := conf.Load(conf.NewViper(), "")
	require.NoError(t, err)
	settings.Input.SampleRate = testRate
	settings.Input.BufferSize = testBuffer
	return settings
}

// keyFile writes a mono 16-bit WAV holding each key for four buffers,
// separated by four buffers of silence.
func keyFile(t *testing.T, keys string) string {
	t.Helper()
	var samples []int
	for i := range len(keys) {
		for _, s := range dtmf.Generate(dtmf.Symbol(keys[i]), testRate, testBuffer*4, 8000) {
			samples = append(samples, int(s))
		}
		samples = append(samples, make([]int, testBuffer*4)...)
	}

	path := filepath.Join(t.TempDir(), "keys.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, testRate, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: testRate, NumChannels: 1},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func eventFor(key byte) detection.Event {
	return detection.Event{Symbol: dtmf.Symbol(key)}
}

func listen(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc, pc.LocalAddr().(*net.UDPAddr).Port
}

func readDatagrams(t *testing.T, pc net.PacketConn, n int) [][]byte {
	t.Helper()
	var out [][]byte
	buf := make([]byte, 1024)
	for range n {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(3*time.Second)))
		m, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		out = append(out, append([]byte(nil), buf[:m]...))
	}
	return out
}

func TestFileAnalysisSendsRawKeys(t *testing.T) {
	pc, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.Output.Protocol = conf.ProtocolRaw

	err := FileAnalysis(context.Background(), settings, keyFile(t, "1*2"), false, quietLogger())
	require.NoError(t, err)

	got := readDatagrams(t, pc, 3)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("*"), []byte("2")}, got)
}

func TestFileAnalysisSendsOSC(t *testing.T) {
	pc, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.Output.OSCPath = "/phone/key"
	settings.Telemetry.Enabled = true
	settings.Telemetry.Listen = "127.0.0.1:0"

	require.NoError(t, FileAnalysis(context.Background(), settings, keyFile(t, "9"), false, quietLogger()))

	osc, err := encoder.NewOSC("/phone/key", encoder.DefaultCapacity)
	require.NoError(t, err)
	want, err := osc.Encode(eventFor('9'))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{want}, readDatagrams(t, pc, 1))
}

func TestFileAnalysisDoesNotModifySettings(t *testing.T) {
	_, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.Input.Device = 3

	require.NoError(t, FileAnalysis(context.Background(), settings, keyFile(t, "5"), false, quietLogger()))
	assert.Equal(t, 3, settings.Input.Device)
}

func TestFileAnalysisRejectsBadPaths(t *testing.T) {
	settings := defaultSettings(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	for name, path := range map[string]string{
		"missing":   filepath.Join(dir, "missing.wav"),
		"directory": dir,
		"empty":     empty,
	} {
		t.Run(name, func(t *testing.T) {
			err := FileAnalysis(context.Background(), settings, path, false, quietLogger())
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryFileIO), "got %v", err)
		})
	}
}

func TestFileAnalysisRejectsBadBroker(t *testing.T) {
	_, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.MQTT.Enabled = true
	settings.MQTT.Broker = "localhost:1883"

	err := FileAnalysis(context.Background(), settings, keyFile(t, "5"), false, quietLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), "got %v", err)
}

func TestFileAnalysisStopsOnCancel(t *testing.T) {
	_, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Twelve keys paced in realtime take well over a second.
	start := time.Now()
	err := FileAnalysis(ctx, settings, keyFile(t, "123456789ABC"), true, quietLogger())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

// collectDatagrams reads datagrams in the background until want have arrived
// or the socket stays quiet for a second.
func collectDatagrams(pc net.PacketConn, want int) <-chan [][]byte {
	out := make(chan [][]byte, 1)
	go func() {
		var got [][]byte
		buf := make([]byte, 1024)
		for len(got) < want {
			_ = pc.SetReadDeadline(time.Now().Add(time.Second))
			m, _, err := pc.ReadFrom(buf)
			if err != nil {
				break
			}
			got = append(got, append([]byte(nil), buf[:m]...))
		}
		out <- got
	}()
	return out
}

func TestFileAnalysisKeepsEveryKeyWithSmallQueue(t *testing.T) {
	pc, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.Output.Protocol = conf.ProtocolRaw
	settings.Output.QueueSize = 8

	keys := strings.Repeat("12", 200)
	received := collectDatagrams(pc, len(keys))

	require.NoError(t, FileAnalysis(context.Background(), settings, keyFile(t, keys), false, quietLogger()))

	var got strings.Builder
	for _, d := range <-received {
		got.Write(d)
	}
	assert.Equal(t, keys, got.String())
}

// lockedBuffer lets the test read log output written from several goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFileAnalysisStopsOnRepeatedInterrupt(t *testing.T) {
	// Keep a handler installed for the whole test so a late SIGINT can never
	// reach the default action.
	guard := make(chan os.Signal, 2)
	signal.Notify(guard, os.Interrupt)
	defer signal.Stop(guard)

	pc, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	settings.Output.Protocol = conf.ProtocolRaw
	var logs lockedBuffer
	log := logger.NewSlogLogger(&logs, logger.LogLevelInfo, nil)

	path := keyFile(t, "123456789ABC")

	errc := make(chan error, 1)
	start := time.Now()
	go func() { errc <- FileAnalysis(context.Background(), settings, path, true, log) }()

	// The first key proves the session is running and the handler is set.
	assert.Equal(t, [][]byte{[]byte("1")}, readDatagrams(t, pc, 1))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGINT))

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("FileAnalysis did not return after SIGINT")
	}
	// Twelve keys paced in realtime take over two seconds.
	assert.Less(t, time.Since(start), 2*time.Second)
	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, `stopping reason="stop requested"`))
	assert.Contains(t, out, "trace_id=")
}

func TestSessionsGetDistinctTraceIDs(t *testing.T) {
	_, port := listen(t)
	settings := defaultSettings(t)
	settings.Output.Port = port
	path := keyFile(t, "5")

	traceIDs := map[string]bool{}
	for range 2 {
		var logs lockedBuffer
		log := logger.NewSlogLogger(&logs, logger.LogLevelInfo, nil)
		require.NoError(t, FileAnalysis(context.Background(), settings, path, false, log))

		id := ""
		for line := range strings.SplitSeq(logs.String(), "\n") {
			if !strings.Contains(line, "[lifecycle]") {
				continue
			}
			_, after, ok := strings.Cut(line, "trace_id=")
			require.True(t, ok, line)
			if id == "" {
				id = strings.Fields(after)[0]
			}
			assert.Equal(t, id, strings.Fields(after)[0])
		}
		require.NotEmpty(t, id)
		traceIDs[id] = true
	}
	assert.Len(t, traceIDs, 2)
}

func TestControllerConfig(t *testing.T) {
	settings := defaultSettings(t)
	settings.Detection.Timeout = 250

	cfg := ControllerConfig(settings)
	assert.Equal(t, -1, cfg.Device)
	assert.Equal(t, testRate, cfg.SampleRate)
	assert.Equal(t, testBuffer, cfg.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.RepeatThreshold)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 3001, cfg.Port)
	assert.True(t, cfg.Broadcast)
	assert.Equal(t, encoder.ProtocolOSC, cfg.Protocol)
	assert.Equal(t, "/dtmf", cfg.OSCPath)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestMQTTConfig(t *testing.T) {
	settings := defaultSettings(t)
	settings.MQTT.Broker = "tcp://broker:1883"
	settings.MQTT.ClientID = ""
	settings.MQTT.Topic = "house/keys"

	cfg := mqttConfig(settings)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "house/keys", cfg.Topic)
	assert.Equal(t, "dtmfin", cfg.ClientID)
}
