package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string         `yaml:"level" json:"level"`             // debug, info, warn, error
	Timezone   string         `yaml:"timezone" json:"timezone"`       // "Local", "UTC", or an IANA name
	Console    *ConsoleOutput `yaml:"console" json:"console"`         // console output configuration
	FileOutput *FileOutput    `yaml:"file_output" json:"file_output"` // optional JSON file output
}

// ConsoleOutput represents console logging configuration.
// Console output is text without timestamps; the supervisor adds them.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level"`
}

// FileOutput represents file logging configuration.
// File output uses JSON with RFC3339 timestamps.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Level   string `yaml:"level" json:"level"`
}

const (
	DefaultLogLevel       = "info"
	DefaultLogPath        = "logs/dtmfin.log"
	DefaultConsoleEnabled = true
)

// applyConfigDefaults fills nil sections so a zero config still logs to the console.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}
	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: DefaultConsoleEnabled,
			Level:   cfg.Level,
		}
	}
	if cfg.Console.Level == "" {
		cfg.Console.Level = cfg.Level
	}
	if cfg.FileOutput != nil && cfg.FileOutput.Enabled {
		if cfg.FileOutput.Path == "" {
			cfg.FileOutput.Path = DefaultLogPath
		}
		if cfg.FileOutput.Level == "" {
			cfg.FileOutput.Level = cfg.Level
		}
	}
}
