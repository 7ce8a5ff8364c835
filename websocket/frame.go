package websocket

import (
	"encoding/binary"
	"errors"
)

// Opcode identifies the purpose of a frame per RFC 6455, section 5.2.
type Opcode byte

// Opcodes defined in RFC 6455, section 11.8.
const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

// IsValid reports whether the opcode is one of the defined opcodes.
func (o Opcode) IsValid() bool {
	switch o {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	default:
		return false
	}
}

// IsControl reports whether the opcode is a control opcode (close, ping, pong).
func (o Opcode) IsControl() bool {
	return o&0x8 != 0
}

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Frame header constants per RFC 6455, section 5.2.
const (
	finalBit = 1 << 7
	rsvBits  = 0x70
	maskBit  = 1 << 7

	opcodeMask     = 0x0f
	payloadLenMask = 0x7f
	payloadLen16   = 126
	payloadLen64   = 127
)

// Decode errors.
var (
	ErrTruncatedFrame = errors.New("websocket: truncated frame")
	ErrInvalidOpcode  = errors.New("websocket: invalid opcode")
	ErrReservedBits   = errors.New("websocket: reserved bits set")
	ErrInvalidLength  = errors.New("websocket: invalid payload length")
	ErrFrameTooLarge  = errors.New("websocket: frame too large")
)

// Frame is a single wire frame. Payload is always unmasked.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// NewTextFrame returns a final, unmasked text frame carrying payload.
func NewTextFrame(payload []byte) Frame {
	return Frame{Fin: true, Opcode: OpText, Payload: payload}
}

// PayloadLength returns the number of payload bytes carried by the frame.
func (f Frame) PayloadLength() int {
	return len(f.Payload)
}

// Encode serializes f as a server frame. Server frames are never masked,
// so Masked and MaskKey are ignored.
func Encode(f Frame) []byte {
	n := len(f.Payload)

	headerLen := 2
	switch {
	case n > 65535:
		headerLen += 8
	case n >= payloadLen16:
		headerLen += 2
	}

	buf := make([]byte, headerLen+n)

	buf[0] = byte(f.Opcode) & opcodeMask
	if f.Fin {
		buf[0] |= finalBit
	}

	switch headerLen {
	case 2:
		buf[1] = byte(n)
	case 4:
		buf[1] = payloadLen16
		binary.BigEndian.PutUint16(buf[2:], uint16(n))
	default:
		buf[1] = payloadLen64
		binary.BigEndian.PutUint64(buf[2:], uint64(n))
	}

	copy(buf[headerLen:], f.Payload)

	return buf
}

// Decode parses one frame from the start of buf and returns it together with
// the number of bytes it occupied. ErrTruncatedFrame means buf does not yet
// hold a complete frame.
func Decode(buf []byte) (Frame, int, error) {
	return DecodeLimit(buf, 0)
}

// DecodeLimit is like Decode but fails with ErrFrameTooLarge when the declared
// payload length exceeds limit. A limit of zero disables the check.
//
// The limit is enforced as soon as the length field has been read, so an
// oversized frame is rejected without waiting for its payload.
func DecodeLimit(buf []byte, limit int64) (Frame, int, error) {
	var f Frame
	c := cursor{buf: buf}

	hdr, err := c.next(2)
	if err != nil {
		return Frame{}, 0, err
	}

	if hdr[0]&rsvBits != 0 {
		return Frame{}, 0, ErrReservedBits
	}

	f.Fin = hdr[0]&finalBit != 0
	f.Opcode = Opcode(hdr[0] & opcodeMask)
	if !f.Opcode.IsValid() {
		return Frame{}, 0, ErrInvalidOpcode
	}

	f.Masked = hdr[1]&maskBit != 0
	length := uint64(hdr[1] & payloadLenMask)

	switch length {
	case payloadLen16:
		ext, err := c.next(2)
		if err != nil {
			return Frame{}, 0, err
		}
		length = uint64(binary.BigEndian.Uint16(ext))
	case payloadLen64:
		ext, err := c.next(8)
		if err != nil {
			return Frame{}, 0, err
		}
		length = binary.BigEndian.Uint64(ext)
		// The most significant bit must be 0 (RFC 6455, section 5.2).
		if length>>63 != 0 {
			return Frame{}, 0, ErrInvalidLength
		}
	}

	if limit > 0 && length > uint64(limit) {
		return Frame{}, 0, ErrFrameTooLarge
	}

	if f.Masked {
		key, err := c.next(4)
		if err != nil {
			return Frame{}, 0, err
		}
		copy(f.MaskKey[:], key)
	}

	if length > 0 {
		if length > uint64(c.remaining()) {
			return Frame{}, 0, ErrTruncatedFrame
		}

		payload, err := c.next(int(length))
		if err != nil {
			return Frame{}, 0, err
		}

		f.Payload = make([]byte, len(payload))
		copy(f.Payload, payload)

		if f.Masked {
			MaskBytes(f.MaskKey, 0, f.Payload)
		}
	}

	return f, c.pos, nil
}

// MaskBytes applies XOR masking to data per RFC 6455, section 5.3, starting
// at key offset pos, and returns the offset for the next call. Masking and
// unmasking are the same operation.
func MaskBytes(key [4]byte, pos int, data []byte) int {
	for i := range data {
		data[i] ^= key[(pos+i)&3]
	}
	return (pos + len(data)) & 3
}

// cursor is a read position over a byte slice with checked advancement.
type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.pos
}

func (c *cursor) next(n int) ([]byte, error) {
	if n < 0 || n > c.remaining() {
		return nil, ErrTruncatedFrame
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}
