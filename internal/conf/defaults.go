// conf/defaults.go default values for settings
package conf

import "github.com/spf13/viper"

// setDefaultConfig registers a default for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("input.backend", BackendMalgo)
	v.SetDefault("input.device", -1)
	v.SetDefault("input.samplerate", SampleRate)
	v.SetDefault("input.buffersize", BufferSize)

	v.SetDefault("detection.timeout", 500)

	v.SetDefault("output.host", "127.0.0.1")
	v.SetDefault("output.port", 3001)
	v.SetDefault("output.protocol", ProtocolOSC)
	v.SetDefault("output.oscpath", "/dtmf")
	v.SetDefault("output.broadcast", true)
	v.SetDefault("output.queuesize", 64)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "dtmfin/keys")
	v.SetDefault("mqtt.clientid", "dtmfin")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.file", "")
}
