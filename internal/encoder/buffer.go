package encoder

import (
	"encoding/binary"
	"fmt"

	"github.com/dtmfin/dtmfin/internal/errors"
)

// Buffer is a fixed-capacity byte buffer. Appends that would exceed the
// capacity fail with an encoding error and leave the contents unchanged.
type Buffer struct {
	buf []byte
	n   int
}

// NewBuffer allocates a buffer of the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Reset empties the buffer without releasing memory.
func (b *Buffer) Reset() { b.n = 0 }

// Len returns the number of bytes written.
func (b *Buffer) Len() int { return b.n }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// Bytes returns the written bytes. The slice is only valid until the next
// Reset or write.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n] }

func (b *Buffer) reserve(size int) ([]byte, error) {
	if size > len(b.buf)-b.n {
		return nil, errors.New(fmt.Errorf("encoder: message needs %d bytes, %d of %d left", size, len(b.buf)-b.n, len(b.buf))).
			Component("encoder").
			Category(errors.CategoryEncoding).
			Context("capacity", len(b.buf)).
			Build()
	}
	p := b.buf[b.n : b.n+size]
	b.n += size
	return p, nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	p, err := b.reserve(1)
	if err != nil {
		return err
	}
	p[0] = c
	return nil
}

// WriteInt32 appends v in big-endian order.
func (b *Buffer) WriteInt32(v int32) error {
	p, err := b.reserve(4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(p, uint32(v))
	return nil
}

// WritePaddedString appends s, a NUL terminator and zero padding up to the
// next multiple of four.
func (b *Buffer) WritePaddedString(s string) error {
	size := paddedLen(len(s))
	p, err := b.reserve(size)
	if err != nil {
		return err
	}
	copy(p, s)
	clear(p[len(s):])
	return nil
}

// WritePaddedChar appends a one character OSC string.
func (b *Buffer) WritePaddedChar(c byte) error {
	p, err := b.reserve(4)
	if err != nil {
		return err
	}
	p[0] = c
	clear(p[1:])
	return nil
}

// paddedLen is the on-wire size of an OSC string of length n.
func paddedLen(n int) int {
	return (n + 4) &^ 3
}
