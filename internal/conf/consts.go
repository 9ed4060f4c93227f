// conf/consts.go hard coded constants
package conf

const (
	SampleRate  = 44100 // Default capture sample rate
	BufferSize  = 1024  // Default frames per callback, also the classifier window
	BitDepth    = 16    // Capture format is signed 16-bit PCM
	NumChannels = 1     // Mono only

	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinBufferSize = 64
	MaxBufferSize = 16384

	OSCBufferCapacity = 512 // Encoding buffer for one OSC message

	DefaultPollInterval = 100 // ms, control loop RunningFlag poll

	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"

	ProtocolOSC = "osc"
	ProtocolRaw = "raw"
)
