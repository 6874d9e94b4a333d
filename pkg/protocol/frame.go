package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderSize is the big-endian length prefix in front of every payload.
	HeaderSize = 4
	// MaxPayload caps the declared payload length. Anything outside
	// (0, MaxPayload] is treated as stream corruption.
	MaxPayload = 1024
)

// ErrBadLength reports a declared frame length outside (0, MaxPayload].
type ErrBadLength struct {
	Length uint32
}

func (e ErrBadLength) Error() string {
	return fmt.Sprintf("declared frame length %d outside (0, %d]", e.Length, MaxPayload)
}

// Deframer reassembles length-prefixed payloads from an incoming byte
// stream. It holds the per-connection receive buffer and the pending
// expected payload length; Reset it whenever a client attaches or detaches.
type Deframer struct {
	buf  []byte
	need int
}

// Reset discards all buffered bytes and any pending frame.
func (d *Deframer) Reset() {
	d.buf = d.buf[:0]
	d.need = 0
}

// Push appends freshly received bytes to the buffer.
func (d *Deframer) Push(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered reports the number of unconsumed bytes.
func (d *Deframer) Buffered() int {
	return len(d.buf)
}

// Next returns the next complete payload, or nil when more bytes are
// needed. A declared length outside (0, MaxPayload] yields ErrBadLength
// and drops everything buffered so far: the length field cannot be
// trusted to skip past the frame, so the stream resynchronizes on
// whatever arrives next.
func (d *Deframer) Next() ([]byte, error) {
	if d.need == 0 {
		if len(d.buf) < HeaderSize {
			return nil, nil
		}
		length := binary.BigEndian.Uint32(d.buf[:HeaderSize])
		if length == 0 || length > MaxPayload {
			d.Reset()
			return nil, ErrBadLength{Length: length}
		}
		d.buf = d.buf[HeaderSize:]
		d.need = int(length)
	}

	if len(d.buf) < d.need {
		return nil, nil
	}
	payload := append([]byte(nil), d.buf[:d.need]...)
	d.buf = d.buf[d.need:]
	d.need = 0
	return payload, nil
}

// Frame prepends the length header to a payload.
func Frame(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayload {
		return nil, ErrBadLength{Length: uint32(len(payload))}
	}
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out[:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// FrameCommand encodes a command and wraps it in a frame, ready to write
// to the wire.
func FrameCommand(cmd MotorCommand) ([]byte, error) {
	payload, err := EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return Frame(payload)
}

// FrameAck encodes an acknowledgement frame for a correlation id.
func FrameAck(id int64) ([]byte, error) {
	payload, err := EncodeAck(id)
	if err != nil {
		return nil, err
	}
	return Frame(payload)
}
