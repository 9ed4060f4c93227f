package file

import (
	"github.com/spf13/cobra"

	"github.com/dtmfin/dtmfin/internal/analysis"
	"github.com/dtmfin/dtmfin/internal/conf"
)

// Command creates the file command, which runs detection over a WAV or FLAC
// file instead of a live device.
func Command(appCtx *conf.Context) *cobra.Command {
	var realtime bool

	cmd := &cobra.Command{
		Use:   "file <input.wav|input.flac>",
		Short: "Detect DTMF tones in a WAV or FLAC file",
		Long: `Run the detection pipeline over a WAV or FLAC file and send an event for every
detected key, as if the file were played into the capture device.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return analysis.FileAnalysis(cmd.Context(), appCtx.Settings, args[0], realtime, appCtx.Logger)
		},
	}

	setupFlags(cmd, &realtime)

	return cmd
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command, realtime *bool) {
	cmd.Flags().BoolVar(realtime, "realtime", false, "Pace the file at its sample rate instead of reading it at full speed")
}
