// Package encoder serializes detection events for the wire.
package encoder

import (
	"fmt"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
	"github.com/dtmfin/dtmfin/internal/errors"
)

// Protocol names an output wire format.
type Protocol string

const (
	// ProtocolOSC sends one OSC message per event.
	ProtocolOSC Protocol = "osc"
	// ProtocolRaw sends the key as a single ASCII byte.
	ProtocolRaw Protocol = "raw"
)

// DefaultOSCPath is the address used when none is configured.
const DefaultOSCPath = "/dtmf"

// DefaultCapacity is the encoding buffer size.
const DefaultCapacity = 512

// Encoder turns an event into a datagram payload. The returned slice is
// owned by the encoder and is valid only until the next call to Encode.
// Encoders are used from a single goroutine.
type Encoder interface {
	Protocol() Protocol
	Encode(ev detection.Event) ([]byte, error)
}

// ParseProtocol validates a protocol name.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(s); p {
	case ProtocolOSC, ProtocolRaw:
		return p, nil
	default:
		return "", errors.Newf("unknown protocol %q, expected %q or %q", s, ProtocolOSC, ProtocolRaw).
			Component("encoder").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// New builds the encoder for protocol. oscPath is ignored for raw output.
func New(protocol Protocol, oscPath string) (Encoder, error) {
	switch protocol {
	case ProtocolOSC:
		return NewOSC(oscPath, DefaultCapacity)
	case ProtocolRaw:
		return NewRaw(), nil
	default:
		_, err := ParseProtocol(string(protocol))
		return nil, err
	}
}

func errUnencodable(protocol Protocol, ev detection.Event) error {
	msg := "encoder: cannot encode NoTone"
	if ev.Symbol != dtmf.NoTone {
		msg = fmt.Sprintf("encoder: invalid symbol 0x%02x", byte(ev.Symbol))
	}
	return errors.New(errors.NewStd(msg)).
		Component("encoder").
		Category(errors.CategoryEncoding).
		Context("protocol", string(protocol)).
		Build()
}
