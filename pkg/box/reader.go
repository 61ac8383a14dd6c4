package box

import (
	"encoding/binary"
	"fmt"
)

// OverrunPolicy decides what happens to a box whose declared size runs past the buffer end.
type OverrunPolicy int

const (
	// OverrunReject treats an overrunning box as malformed.
	OverrunReject OverrunPolicy = iota
	// OverrunClamp shortens the box to the buffer end and marks it truncated.
	OverrunClamp
)

func (p OverrunPolicy) String() string {
	switch p {
	case OverrunReject:
		return "reject"
	case OverrunClamp:
		return "clamp"
	}
	return fmt.Sprintf("OverrunPolicy(%d)", int(p))
}

// Header is a decoded box header.
type Header struct {
	Type       BoxType
	Size       uint64
	HeaderSize int
	Truncated  bool
}

// ReadHeader decodes the box header at off, rejecting boxes that overrun buf.
func ReadHeader(buf []byte, off int) (Header, error) {
	return ReadHeaderPolicy(buf, off, OverrunReject)
}

// ReadHeaderPolicy decodes the box header at off and resolves its size.
//
// The returned size always satisfies HeaderSize <= Size <= len(buf)-off.
func ReadHeaderPolicy(buf []byte, off int, policy OverrunPolicy) (Header, error) {
	if off < 0 || off > len(buf) || len(buf)-off < HeaderSize {
		return Header{}, ErrTruncatedHeader
	}
	remaining := uint64(len(buf) - off)

	var h Header
	copy(h.Type[:], buf[off+4:off+8])
	h.HeaderSize = HeaderSize

	size := uint64(binary.BigEndian.Uint32(buf[off : off+4]))
	switch size {
	case 0:
		size = remaining
	case 1:
		if remaining < LargeHeaderSize {
			return Header{}, ErrTruncatedHeader
		}
		size = binary.BigEndian.Uint64(buf[off+8 : off+16])
		h.HeaderSize = LargeHeaderSize
	}

	if size < uint64(h.HeaderSize) {
		return Header{}, fmt.Errorf("%w: %q size %d smaller than its %d-byte header",
			ErrMalformedBox, h.Type.String(), size, h.HeaderSize)
	}
	if size > remaining {
		if policy != OverrunClamp {
			return Header{}, fmt.Errorf("%w: %q size %d overruns the %d bytes left",
				ErrMalformedBox, h.Type.String(), size, remaining)
		}
		size = remaining
		h.Truncated = true
	}

	h.Size = size
	return h, nil
}
