package relay

import (
	"bytes"
	"errors"
)

var (
	ErrBufferLimit = errors.New("Connection buffered more data than the limit allows")
)

// Buffer accumulates raw bytes for one connection and yields complete
// newline delimited frames in arrival order.
//
// It is a ring over a growable contiguous slice. Capacity doubles when
// incoming data would not fit, up to a hard limit; hitting the limit is a
// protocol violation and the caller is expected to drop the connection.
// Unread bytes survive across pushes, so a frame may arrive in as many
// reads as the peer's stack fancies.
type Buffer struct {
	buf    []byte
	head   int // next byte to write
	tail   int // next unread byte
	amount int // unread byte count
	limit  int
}

// NewBuffer returns a Buffer starting at initial capacity that refuses to
// hold more than limit unread bytes.
func NewBuffer(initial int, limit int) *Buffer {
	if initial < 1 {
		initial = 1
	}
	if initial > limit {
		initial = limit
	}

	return &Buffer{
		buf:   make([]byte, initial),
		limit: limit,
	}
}

// Push appends data after the unread region, growing the ring as needed.
// Returns ErrBufferLimit when the unread region would exceed the limit,
// in which case nothing is appended and the connection should be closed.
func (b *Buffer) Push(data []byte) error {
	need := b.amount + len(data)
	if need > b.limit {
		return ErrBufferLimit
	}

	if need > len(b.buf) {
		size := len(b.buf) * 2
		for size < need {
			size *= 2
		}
		if size > b.limit {
			size = b.limit
		}
		b.grow(size)
	}

	n := copy(b.buf[b.head:], data)
	copy(b.buf, data[n:])

	b.head = (b.head + len(data)) % len(b.buf)
	b.amount += len(data)

	return nil
}

// NextFrame returns the next complete frame without it's delimiter and
// true, or "" and false when no complete frame is buffered yet. Callers
// drain frames by calling it until it reports false; a single push can
// complete any number of frames.
//
// The returned string is a copy and stays valid after further pushes.
func (b *Buffer) NextFrame() (string, bool) {
	if b.amount == 0 {
		return "", false
	}

	if b.tail+b.amount <= len(b.buf) {
		// Unread region is contiguous
		span := b.buf[b.tail : b.tail+b.amount]

		i := bytes.IndexByte(span, '\n')
		if i < 0 {
			return "", false
		}

		frame := string(span[:i])
		b.advance(i + 1)

		return frame, true
	}

	// Unread region wraps. The delimiter is either in the span up to the
	// end of the ring or in the span from the start, and only in the
	// second case does the frame itself straddle the seam.
	first := b.buf[b.tail:]
	second := b.buf[:b.head]

	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		frame := string(first[:i])
		b.advance(i + 1)

		return frame, true
	}

	i := bytes.IndexByte(second, '\n')
	if i < 0 {
		return "", false
	}

	// Stitch the two halves into one contiguous frame
	frame := make([]byte, 0, len(first)+i)
	frame = append(frame, first...)
	frame = append(frame, second[:i]...)

	b.advance(len(first) + i + 1)

	return string(frame), true
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return b.amount
}

// Cap returns the current ring capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

func (b *Buffer) advance(n int) {
	b.tail = (b.tail + n) % len(b.buf)
	b.amount -= n
}

func (b *Buffer) grow(size int) {
	next := make([]byte, size)

	// Unwrap the unread region to the start of the new ring
	if b.tail+b.amount <= len(b.buf) {
		copy(next, b.buf[b.tail:b.tail+b.amount])
	} else {
		n := copy(next, b.buf[b.tail:])
		copy(next[n:], b.buf[:b.head])
	}

	b.buf = next
	b.tail = 0
	b.head = b.amount
}
