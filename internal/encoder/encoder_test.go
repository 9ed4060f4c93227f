package encoder

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtmfin/dtmfin/internal/detection"
	"github.com/dtmfin/dtmfin/internal/dtmf"
	"github.com/dtmfin/dtmfin/internal/errors"
)

func ev(sym dtmf.Symbol) detection.Event {
	return detection.Event{Symbol: sym}
}

func TestOSCGoldenVectors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
		sym  dtmf.Symbol
		want []byte
	}{
		{
			name: "digit five",
			path: "/dtmf",
			sym:  '5',
			want: []byte("/dtmf\x00\x00\x00" + ",i\x00\x00" + "\x00\x00\x00\x05"),
		},
		{
			name: "digit zero",
			path: "/dtmf",
			sym:  '0',
			want: []byte("/dtmf\x00\x00\x00" + ",i\x00\x00" + "\x00\x00\x00\x00"),
		},
		{
			name: "hash as string",
			path: "/dtmf",
			sym:  '#',
			want: []byte("/dtmf\x00\x00\x00" + ",s\x00\x00" + "#\x00\x00\x00"),
		},
		{
			name: "letter key",
			path: "/dtmf",
			sym:  'D',
			want: []byte("/dtmf\x00\x00\x00" + ",s\x00\x00" + "D\x00\x00\x00"),
		},
		{
			name: "path of exactly four bytes gets a full pad word",
			path: "/abc",
			sym:  '1',
			want: []byte("/abc\x00\x00\x00\x00" + ",i\x00\x00" + "\x00\x00\x00\x01"),
		},
		{
			name: "root path",
			path: "/",
			sym:  '*',
			want: []byte("/\x00\x00\x00" + ",s\x00\x00" + "*\x00\x00\x00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			enc, err := NewOSC(tt.path, DefaultCapacity)
			require.NoError(t, err)
			got, err := enc.Encode(ev(tt.sym))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Zero(t, len(got)%4)
		})
	}
}

func TestOSCAllKeysDecode(t *testing.T) {
	t.Parallel()

	enc, err := NewOSC("/keys/in", DefaultCapacity)
	require.NoError(t, err)
	for _, sym := range dtmf.Alphabet() {
		msg, err := enc.Encode(ev(sym))
		require.NoError(t, err)
		path, got, err := decodeOSC(msg)
		require.NoError(t, err)
		assert.Equal(t, "/keys/in", path)
		assert.Equal(t, sym, got)
	}
}

func TestOSCRejectsBadPaths(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", "dtmf", "/a\x00b"} {
		_, err := NewOSC(path, DefaultCapacity)
		require.Error(t, err, "path %q", path)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	}
}

func TestOSCPathCapacity(t *testing.T) {
	t.Parallel()

	// "/" plus 499 bytes pads to 504, leaving exactly 8 for tags and argument
	fits := "/" + strings.Repeat("x", 499)
	enc, err := NewOSC(fits, DefaultCapacity)
	require.NoError(t, err)
	msg, err := enc.Encode(ev('#'))
	require.NoError(t, err)
	assert.Len(t, msg, DefaultCapacity)

	tooLong := "/" + strings.Repeat("x", 503)
	_, err = NewOSC(tooLong, DefaultCapacity)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEncoding))
}

func TestEncodeNoToneFails(t *testing.T) {
	t.Parallel()

	osc, err := NewOSC(DefaultOSCPath, DefaultCapacity)
	require.NoError(t, err)
	for _, enc := range []Encoder{osc, NewRaw()} {
		_, err := enc.Encode(ev(dtmf.NoTone))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryEncoding), "%s", enc.Protocol())
	}
}

func TestRawEncoder(t *testing.T) {
	t.Parallel()

	enc := NewRaw()
	got, err := enc.Encode(ev('*'))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2A}, got)

	for _, sym := range dtmf.Alphabet() {
		got, err := enc.Encode(ev(sym))
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(sym)}, got)
	}
}

func TestNewSelectsProtocol(t *testing.T) {
	t.Parallel()

	enc, err := New(ProtocolOSC, "")
	require.Error(t, err)
	assert.Nil(t, enc)

	enc, err = New(ProtocolOSC, "/dtmf")
	require.NoError(t, err)
	assert.Equal(t, ProtocolOSC, enc.Protocol())

	enc, err = New(ProtocolRaw, "")
	require.NoError(t, err)
	assert.Equal(t, ProtocolRaw, enc.Protocol())

	_, err = New("midi", "/dtmf")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestParseProtocol(t *testing.T) {
	t.Parallel()

	p, err := ParseProtocol("raw")
	require.NoError(t, err)
	assert.Equal(t, ProtocolRaw, p)
	_, err = ParseProtocol("OSC")
	require.Error(t, err)
}

func TestBufferOverflowLeavesContents(t *testing.T) {
	t.Parallel()

	b := NewBuffer(8)
	require.NoError(t, b.WritePaddedString("abc"))
	require.NoError(t, b.WriteInt32(-1))
	assert.Equal(t, 8, b.Len())

	err := b.WriteByte('x')
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEncoding))
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0xff, 0xff, 0xff, 0xff}, b.Bytes())

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Equal(t, 8, b.Cap())
}

func TestEncodeDoesNotAllocate(t *testing.T) {
	osc, err := NewOSC(DefaultOSCPath, DefaultCapacity)
	require.NoError(t, err)
	raw := NewRaw()
	e := ev('7')
	allocs := testing.AllocsPerRun(100, func() {
		_, _ = osc.Encode(e)
		_, _ = raw.Encode(e)
	})
	assert.Zero(t, allocs)
}

// decodeOSC parses a message produced by OSC.Encode.
func decodeOSC(msg []byte) (string, dtmf.Symbol, error) {
	readString := func() (string, error) {
		end := bytes.IndexByte(msg, 0)
		if end < 0 {
			return "", fmt.Errorf("unterminated string")
		}
		s := string(msg[:end])
		size := paddedLen(end)
		if size > len(msg) {
			return "", fmt.Errorf("short padding")
		}
		msg = msg[size:]
		return s, nil
	}

	path, err := readString()
	if err != nil {
		return "", 0, err
	}
	tags, err := readString()
	if err != nil {
		return "", 0, err
	}
	switch tags {
	case ",i":
		if len(msg) != 4 {
			return "", 0, fmt.Errorf("int32 argument has %d bytes", len(msg))
		}
		v := int32(msg[0])<<24 | int32(msg[1])<<16 | int32(msg[2])<<8 | int32(msg[3])
		return path, dtmf.Symbol('0' + v), nil
	case ",s":
		s, err := readString()
		if err != nil {
			return "", 0, err
		}
		return path, dtmf.Symbol(s[0]), nil
	default:
		return "", 0, fmt.Errorf("unexpected type tags %q", tags)
	}
}
