package analysis

import (
	"context"
	"io"

	"github.com/dtmfin/dtmfin/internal/capture"
	"github.com/dtmfin/dtmfin/internal/conf"
	"github.com/dtmfin/dtmfin/internal/lifecycle"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// RealtimeAnalysis captures from the configured audio device and sends an
// event per detected key until SIGINT, SIGTERM or ctx cancellation.
func RealtimeAnalysis(ctx context.Context, settings *conf.Settings, log logger.Logger) error {
	backend, err := capture.New(settings.Input.Backend, log.Module("capture"))
	if err != nil {
		return err
	}
	log.Info("starting DTMF detection in realtime mode",
		logger.String("backend", backend.Name()),
		logger.Int("device", settings.Input.Device))
	return run(ctx, settings, backend, log)
}

// ListDevices prints the capture devices of the configured backend to w.
func ListDevices(settings *conf.Settings, w io.Writer, log logger.Logger) error {
	backend, err := capture.New(settings.Input.Backend, log.Module("capture"))
	if err != nil {
		return err
	}
	return lifecycle.ListDevices(backend, w)
}
