// config.go: settings struct and functions to load and save it.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// InputSettings selects the capture backend and stream format.
type InputSettings struct {
	Backend    string `yaml:"backend" mapstructure:"backend"`       // malgo or portaudio
	Device     int    `yaml:"device" mapstructure:"device"`         // capture device index, -1 for the system default
	SampleRate int    `yaml:"samplerate" mapstructure:"samplerate"` // Hz
	BufferSize int    `yaml:"buffersize" mapstructure:"buffersize"` // frames per callback
}

// DetectionSettings contains debounce settings.
type DetectionSettings struct {
	Timeout int `yaml:"timeout" mapstructure:"timeout"` // repeat threshold for a held key, ms; 0 disables suppression
}

// OutputSettings describes where and how events are sent.
type OutputSettings struct {
	Host      string `yaml:"host" mapstructure:"host"`           // destination host name or address
	Port      int    `yaml:"port" mapstructure:"port"`           // destination UDP port
	Protocol  string `yaml:"protocol" mapstructure:"protocol"`   // osc or raw
	OSCPath   string `yaml:"oscpath" mapstructure:"oscpath"`     // OSC address pattern
	Broadcast bool   `yaml:"broadcast" mapstructure:"broadcast"` // enable SO_BROADCAST on the socket
	QueueSize int    `yaml:"queuesize" mapstructure:"queuesize"` // events buffered between the audio callback and the sender
}

// MQTTSettings contains settings for the optional MQTT event mirror.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker   string `yaml:"broker" mapstructure:"broker"` // e.g. tcp://localhost:1883
	Topic    string `yaml:"topic" mapstructure:"topic"`
	ClientID string `yaml:"clientid" mapstructure:"clientid"` // a random suffix is appended at connect time
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// TelemetrySettings controls the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"` // e.g. 0.0.0.0:9090
}

// LogSettings configures the central logger.
type LogSettings struct {
	Level    string `yaml:"level" mapstructure:"level"` // trace, debug, info, warn, error
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
	File     string `yaml:"file" mapstructure:"file"` // optional JSON log file
}

// Settings is the complete runtime configuration. Keys are the lowercased
// field names used by viper and the YAML file.
type Settings struct {
	Debug     bool              `yaml:"debug" mapstructure:"debug"`
	Input     InputSettings     `yaml:"input" mapstructure:"input"`
	Detection DetectionSettings `yaml:"detection" mapstructure:"detection"`
	Output    OutputSettings    `yaml:"output" mapstructure:"output"`
	MQTT      MQTTSettings      `yaml:"mqtt" mapstructure:"mqtt"`
	Telemetry TelemetrySettings `yaml:"telemetry" mapstructure:"telemetry"`
	Log       LogSettings       `yaml:"log" mapstructure:"log"`
}

// RepeatThreshold returns the debounce window as a duration.
func (s *Settings) RepeatThreshold() time.Duration {
	return time.Duration(s.Detection.Timeout) * time.Millisecond
}

// LoggingConfig maps the log section to the logger package configuration.
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Log.Level
	if s.Debug {
		level = "debug"
	}
	cfg := &logger.LoggingConfig{
		Level:    level,
		Timezone: s.Log.Timezone,
		Console:  &logger.ConsoleOutput{Enabled: true, Level: level},
	}
	if s.Log.File != "" {
		cfg.FileOutput = &logger.FileOutput{Enabled: true, Path: s.Log.File, Level: level}
	}
	return cfg
}

// NewViper returns a viper instance with all defaults registered.
// Environment variables are not consulted.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)
	return v
}

// Load reads the optional config file into v, unmarshals the layered values
// and validates them. Flags bound to v take precedence over the file.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("config_file", configFile).
				Build()
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	return settings, nil
}

// SaveYAMLConfig writes settings to configPath as YAML.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	// Write to a temporary file first so a crash never leaves a torn config
	tempFile, err := os.CreateTemp(dir, "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Rename can fail across devices; fall back to a direct write
		if err := os.WriteFile(configPath, yamlData, 0o644); err != nil {
			return fmt.Errorf("error writing config file: %w", err)
		}
	}
	return nil
}
