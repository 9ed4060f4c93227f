package capture

import (
	"encoding/binary"
	"time"
)

// reframer turns callbacks of arbitrary length into buffers of exactly size
// samples. The stream clock counts delivered frames, so it is monotonic and
// independent of the wall clock.
type reframer struct {
	buf    []int16
	n      int
	frames uint64
	rate   uint64
	cb     Callback
}

func newReframer(size, rate int, cb Callback) *reframer {
	return &reframer{
		buf:  make([]int16, size),
		rate: uint64(rate),
		cb:   cb,
	}
}

// clock returns the stream time of the first sample in the pending buffer.
func (r *reframer) clock() time.Duration {
	secs := r.frames / r.rate
	rem := r.frames % r.rate
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(r.rate)
}

// write appends samples and flushes every complete buffer.
func (r *reframer) write(samples []int16) {
	for len(samples) > 0 {
		c := copy(r.buf[r.n:], samples)
		r.n += c
		samples = samples[c:]
		if r.n == len(r.buf) {
			r.flush()
		}
	}
}

// writeS16LE appends little-endian signed 16-bit mono frames.
func (r *reframer) writeS16LE(in []byte) {
	for len(in) >= 2 {
		r.buf[r.n] = int16(binary.LittleEndian.Uint16(in))
		r.n++
		in = in[2:]
		if r.n == len(r.buf) {
			r.flush()
		}
	}
}

func (r *reframer) flush() {
	r.cb(r.buf, r.clock())
	r.frames += uint64(len(r.buf))
	r.n = 0
}

// delivered returns the number of frames handed to the callback.
func (r *reframer) delivered() uint64 { return r.frames }
