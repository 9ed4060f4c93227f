// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/dtmfin/dtmfin/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateInputSettings(&settings.Input); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDetectionSettings(&settings.Detection); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateLogSettings(&settings.Log); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateInputSettings(settings *InputSettings) error {
	var errs []string

	switch settings.Backend {
	case BackendMalgo, BackendPortAudio:
	default:
		errs = append(errs, fmt.Sprintf("input backend must be %q or %q, got %q", BackendMalgo, BackendPortAudio, settings.Backend))
	}

	if settings.Device < -1 {
		errs = append(errs, "-d takes a device index. Use -l to list all available devices.")
	}

	if settings.SampleRate < MinSampleRate || settings.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Sprintf("sample rate must be between %d and %d Hz, got %d", MinSampleRate, MaxSampleRate, settings.SampleRate))
	}

	if settings.BufferSize < MinBufferSize || settings.BufferSize > MaxBufferSize {
		errs = append(errs, fmt.Sprintf("buffer size must be between %d and %d frames, got %d", MinBufferSize, MaxBufferSize, settings.BufferSize))
	}

	if len(errs) > 0 {
		return errors.ValidationError(fmt.Sprintf("input settings errors: %v", errs))
	}
	return nil
}

func validateDetectionSettings(settings *DetectionSettings) error {
	if settings.Timeout < 0 {
		return errors.ValidationError(fmt.Sprintf("timeout must be a non-negative number of milliseconds, got %d", settings.Timeout))
	}
	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	var errs []string

	if strings.TrimSpace(settings.Host) == "" {
		errs = append(errs, "Please specify an ip and port to send to.")
	}

	if settings.Port < 1 || settings.Port > 65535 {
		errs = append(errs, fmt.Sprintf("port must be between 1 and 65535, got %d", settings.Port))
	}

	switch settings.Protocol {
	case ProtocolOSC:
		if settings.OSCPath == "" || settings.OSCPath[0] != '/' {
			errs = append(errs, fmt.Sprintf("osc path must start with '/', got %q", settings.OSCPath))
		}
	case ProtocolRaw:
	default:
		errs = append(errs, fmt.Sprintf("protocol must be %q or %q, got %q", ProtocolOSC, ProtocolRaw, settings.Protocol))
	}

	if settings.QueueSize < 1 {
		errs = append(errs, fmt.Sprintf("queue size must be at least 1, got %d", settings.QueueSize))
	}

	if len(errs) > 0 {
		return errors.ValidationError(fmt.Sprintf("output settings errors: %v", errs))
	}
	return nil
}

func validateMQTTSettings(settings *MQTTSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Broker == "" {
		return errors.ValidationError("MQTT broker URL is required when MQTT is enabled")
	}
	if settings.Topic == "" {
		return errors.ValidationError("MQTT topic is required when MQTT is enabled")
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.Listen == "" {
		return errors.ValidationError("telemetry listen address is required when telemetry is enabled")
	}
	return nil
}

func validateLogSettings(settings *LogSettings) error {
	switch settings.Level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return errors.ValidationError(fmt.Sprintf("log level must be one of trace, debug, info, warn, error, got %q", settings.Level))
	}
}
