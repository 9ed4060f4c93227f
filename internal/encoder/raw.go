package encoder

import "github.com/dtmfin/dtmfin/internal/detection"

// Raw encodes each event as the key's ASCII byte.
type Raw struct {
	buf [1]byte
}

// NewRaw returns a raw single-byte encoder.
func NewRaw() *Raw { return &Raw{} }

// Protocol implements Encoder.
func (r *Raw) Protocol() Protocol { return ProtocolRaw }

// Encode implements Encoder.
func (r *Raw) Encode(ev detection.Event) ([]byte, error) {
	if !ev.Symbol.Valid() {
		return nil, errUnencodable(ProtocolRaw, ev)
	}
	r.buf[0] = byte(ev.Symbol)
	return r.buf[:], nil
}

var _ Encoder = (*Raw)(nil)
