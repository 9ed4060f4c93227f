package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dtmfin/dtmfin/internal/capture"
	"github.com/dtmfin/dtmfin/internal/conf"
	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// FileAnalysis runs detection over a WAV or FLAC file and sends an event per detected
// key. With realtime set the file is paced at its own sample rate, which
// suits receivers that expect human key timing.
func FileAnalysis(ctx context.Context, settings *conf.Settings, path string, realtime bool, log logger.Logger) error {
	if err := validateAudioFile(path); err != nil {
		return err
	}

	// The file is the only device and defines the sample rate.
	fileSettings := *settings
	fileSettings.Input.Device = capture.DefaultDevice

	backend := capture.NewFileBackend(path, log.Module("capture"), capture.WithRealtime(realtime))
	log.Info("starting DTMF detection from file",
		logger.String("file", filepath.Base(path)),
		logger.Bool("realtime", realtime))
	return run(ctx, &fileSettings, backend, log)
}

// validateAudioFile checks that path names a non-empty regular file.
func validateAudioFile(path string) error {
	var err error
	info, statErr := os.Stat(path)
	switch {
	case statErr != nil:
		err = fmt.Errorf("error accessing file %s: %w", filepath.Base(path), statErr)
	case info.IsDir():
		err = fmt.Errorf("the path %s is a directory, not a file", filepath.Base(path))
	case info.Size() == 0:
		err = fmt.Errorf("file %s is empty (0 bytes)", filepath.Base(path))
	}
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return nil
}
