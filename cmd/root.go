package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dtmfin/dtmfin/cmd/file"
	"github.com/dtmfin/dtmfin/internal/analysis"
	"github.com/dtmfin/dtmfin/internal/buildinfo"
	"github.com/dtmfin/dtmfin/internal/conf"
	"github.com/dtmfin/dtmfin/internal/errors"
	"github.com/dtmfin/dtmfin/internal/logger"
)

// Replaced in tests, which have no audio devices.
var (
	realtimeAnalysis = analysis.RealtimeAnalysis
	listDevices      = analysis.ListDevices
)

const (
	msgHostPort = "Please specify an ip and port to send to."
	msgTimeOut  = "Please specify a time out value in milliseconds."
	msgDevice   = "-d takes a device index. Use -l to list all available devices."
)

// usageError is a command line mistake that is answered with the usage text.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// options holds flags that steer the invocation rather than the session.
type options struct {
	configFile  string
	writeConfig string
	list        bool
}

// RootCommand creates the dtmfin command. Flags are bound to v, so a flag
// given on the command line overrides the config file, which overrides the
// defaults registered on v.
func RootCommand(v *viper.Viper, appCtx *conf.Context, info *buildinfo.Context) *cobra.Command {
	var opts options

	rootCmd := &cobra.Command{
		Use:   "dtmfin [flags] [<host> <port>]",
		Short: "Detect DTMF tones on an audio input and send each key over UDP",
		Long: `dtmfin listens on an audio input device, detects DTMF key tones and sends
one UDP datagram per key press, either as an OSC message or as a single
ASCII byte.`,
		Example: `  dtmfin -h <IP address> -p <port> -t <time out> [-d <device id>]
  dtmfin -l (to list devices)
  dtmfin 192.168.1.255 9000 (raw bytes)`,
		Version:       info.String(),
		Args:          positionalArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.list {
				return listDevices(appCtx.Settings, cmd.OutOrStdout(), appCtx.Logger)
			}
			if opts.writeConfig != "" {
				return conf.SaveYAMLConfig(opts.writeConfig, appCtx.Settings)
			}
			return realtimeAnalysis(cmd.Context(), appCtx.Settings, appCtx.Logger)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetFlagErrorFunc(flagError)

	setupFlags(rootCmd, v, &opts)

	rootCmd.AddCommand(file.Command(appCtx))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd == rootCmd && len(args) == 2 {
			if err := applyHostPort(v, cmd.Flags(), args); err != nil {
				return err
			}
		}
		// The optional outputs are enabled by naming them.
		if cmd.Flags().Changed("mqtt-broker") {
			v.Set("mqtt.enabled", true)
		}
		if cmd.Flags().Changed("metrics-listen") {
			v.Set("telemetry.enabled", true)
		}

		settings, err := conf.Load(v, opts.configFile)
		if err != nil {
			return err
		}
		if err := appCtx.Init(settings); err != nil {
			return err
		}
		appCtx.Logger.Debug("build info",
			logger.String("version", info.GetVersion()),
			logger.String("build_date", info.GetBuildDate()))
		return nil
	}

	return rootCmd
}

// setupFlags defines the flags and binds those that map to settings.
func setupFlags(rootCmd *cobra.Command, v *viper.Viper, opts *options) {
	pf := rootCmd.PersistentFlags()
	pf.BoolP("help", "?", false, "Print usage")
	pf.StringP("host", "h", v.GetString("output.host"), "Destination host name or IP address")
	pf.IntP("port", "p", v.GetInt("output.port"), "Destination UDP port")
	pf.IntP("time-out", "t", v.GetInt("detection.timeout"), "Time for repeated detection of a held key in milliseconds")
	pf.StringP("osc-path", "o", v.GetString("output.oscpath"), "OSC address pattern")
	pf.StringP("protocol", "P", v.GetString("output.protocol"), "Wire protocol: osc or raw")
	pf.BoolP("broadcast", "b", v.GetBool("output.broadcast"), "Enable broadcast on the UDP socket")
	pf.Int("buffer-size", v.GetInt("input.buffersize"), "Frames per audio buffer")
	pf.Int("queue-size", v.GetInt("output.queuesize"), "Events buffered between detection and sending")
	pf.Bool("debug", v.GetBool("debug"), "Enable debug output")
	pf.String("metrics-listen", v.GetString("telemetry.listen"), "Serve Prometheus metrics on this address")
	pf.String("mqtt-broker", v.GetString("mqtt.broker"), "Mirror events to this MQTT broker, e.g. tcp://localhost:1883")
	pf.String("mqtt-topic", v.GetString("mqtt.topic"), "MQTT topic for mirrored events")
	pf.StringVar(&opts.configFile, "config", "", "Read settings from this YAML file")

	f := rootCmd.Flags()
	f.IntP("device", "d", v.GetInt("input.device"), "Capture device index, -1 for the system default")
	f.Int("sample-rate", v.GetInt("input.samplerate"), "Capture sample rate in Hz")
	f.String("backend", v.GetString("input.backend"), "Audio backend: malgo or portaudio")
	f.BoolVarP(&opts.list, "list", "l", false, "List capture devices and exit")
	f.StringVar(&opts.writeConfig, "write-config", "", "Write the effective settings to this YAML file and exit")

	bind := map[string]*pflag.Flag{
		"output.host":       pf.Lookup("host"),
		"output.port":       pf.Lookup("port"),
		"detection.timeout": pf.Lookup("time-out"),
		"output.oscpath":    pf.Lookup("osc-path"),
		"output.protocol":   pf.Lookup("protocol"),
		"output.broadcast":  pf.Lookup("broadcast"),
		"input.buffersize":  pf.Lookup("buffer-size"),
		"output.queuesize":  pf.Lookup("queue-size"),
		"debug":             pf.Lookup("debug"),
		"telemetry.listen":  pf.Lookup("metrics-listen"),
		"mqtt.broker":       pf.Lookup("mqtt-broker"),
		"mqtt.topic":        pf.Lookup("mqtt-topic"),
		"input.device":      f.Lookup("device"),
		"input.samplerate":  f.Lookup("sample-rate"),
		"input.backend":     f.Lookup("backend"),
	}
	for key, flag := range bind {
		// BindPFlag only fails on a nil flag.
		_ = v.BindPFlag(key, flag)
	}
}

// positionalArgs accepts either no arguments or <host> <port>.
func positionalArgs(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return &usageError{fmt.Errorf("expected <host> <port>, got %d argument(s)", len(args))}
	}
	return nil
}

// applyHostPort sets the destination from the positional form. That form
// sends raw bytes unless a protocol is given explicitly.
func applyHostPort(v *viper.Viper, flags *pflag.FlagSet, args []string) error {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		return errors.New(errors.NewStd(msgHostPort)).
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Context("port", args[1]).
			Build()
	}
	v.Set("output.host", args[0])
	v.Set("output.port", port)
	if !flags.Changed("protocol") {
		v.Set("output.protocol", conf.ProtocolRaw)
	}
	return nil
}

// flagError rewrites flag parse failures into the classic dtmfin
// diagnostics. Other flag mistakes are answered with the usage text.
func flagError(_ *cobra.Command, err error) error {
	var name string
	var required *pflag.ValueRequiredError
	var invalid *pflag.InvalidValueError
	switch {
	case errors.As(err, &required):
		name = required.GetFlag().Name
	case errors.As(err, &invalid):
		name = invalid.GetFlag().Name
	}

	switch name {
	case "host", "port":
		return errors.NewStd(msgHostPort)
	case "time-out":
		return errors.NewStd(msgTimeOut)
	case "device":
		return errors.NewStd(msgDevice)
	case "":
		return &usageError{err}
	default:
		return err
	}
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, info *buildinfo.Context, args []string, stdout, stderr io.Writer) int {
	var appCtx conf.Context
	rootCmd := RootCommand(conf.NewViper(), &appCtx, info)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := appCtx.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, err)
	var ue *usageError
	if errors.As(err, &ue) {
		fmt.Fprint(stderr, rootCmd.UsageString())
	}
	return 1
}
