// mqtt.go: Package mqtt mirrors detected key events to an MQTT broker.
package mqtt

import (
	"time"
)

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string // a random suffix is appended per connection
	Username string
	Password string
	Topic    string // topic every event is published to
	// Connection timeouts
	ConnectTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		ClientID:          "dtmfin",
		Topic:             "dtmfin/keys",
		ConnectTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}
