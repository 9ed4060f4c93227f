package encoder

import (
	"fmt"
	"strings"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/errors"
)

// OSC encodes each event as an OSC 1.0 message with a single argument:
// an int32 for digit keys, otherwise a one character string.
type OSC struct {
	path string
	buf  *Buffer
}

// worstCaseArgs is the type tag plus the larger of the two arguments.
// ",s" pads to 4 bytes, a one character string pads to 4 bytes.
const worstCaseArgs = 4 + 4

// NewOSC validates path against the buffer capacity so that Encode can
// only fail for NoTone.
func NewOSC(path string, capacity int) (*OSC, error) {
	if path == "" || path[0] != '/' {
		return nil, errors.Newf("osc path must start with '/', got %q", path).
			Component("encoder").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if strings.IndexByte(path, 0) >= 0 {
		return nil, errors.Newf("osc path must not contain NUL bytes").
			Component("encoder").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if need := paddedLen(len(path)) + worstCaseArgs; need > capacity {
		return nil, errors.New(fmt.Errorf("osc path of %d bytes needs a %d byte message, buffer holds %d", len(path), need, capacity)).
			Component("encoder").
			Category(errors.CategoryEncoding).
			Context("path_length", len(path)).
			Build()
	}
	return &OSC{path: path, buf: NewBuffer(capacity)}, nil
}

// Protocol implements Encoder.
func (o *OSC) Protocol() Protocol { return ProtocolOSC }

// Path returns the OSC address.
func (o *OSC) Path() string { return o.path }

// Encode implements Encoder.
func (o *OSC) Encode(ev detection.Event) ([]byte, error) {
	if !ev.Symbol.Valid() {
		return nil, errUnencodable(ProtocolOSC, ev)
	}

	o.buf.Reset()
	if err := o.buf.WritePaddedString(o.path); err != nil {
		return nil, err
	}
	if ev.Symbol.IsDigit() {
		if err := o.buf.WritePaddedString(",i"); err != nil {
			return nil, err
		}
		if err := o.buf.WriteInt32(ev.Symbol.Digit()); err != nil {
			return nil, err
		}
	} else {
		if err := o.buf.WritePaddedString(",s"); err != nil {
			return nil, err
		}
		if err := o.buf.WritePaddedChar(byte(ev.Symbol)); err != nil {
			return nil, err
		}
	}
	return o.buf.Bytes(), nil
}

var _ Encoder = (*OSC)(nil)
