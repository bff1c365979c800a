package ats

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wire frame:
//
//	'A' | type | length (u16 BE) | seq | body ... | crc8
//
// The CRC covers everything before it. The body of C/R/E frames is an
// encrypted payload; H (heartbeat) frames carry no body. Responses echo
// the sequence of the command they answer; event frames carry seq 0.
const (
	frameStart = 'A'

	frameCommand   = 'C'
	frameResponse  = 'R'
	frameEvent     = 'E'
	frameHeartbeat = 'H'

	frameHeaderSize = 5
	frameMaxBody    = 1024
)

type frame struct {
	Type byte
	Seq  byte
	Body []byte
}

func encodeFrame(typ, seq byte, body []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(body)+1)
	buf[0] = frameStart
	buf[1] = typ
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(body)))
	buf[4] = seq
	copy(buf[frameHeaderSize:], body)
	buf[len(buf)-1] = CRC8(buf[:len(buf)-1])
	return buf
}

func validFrameType(t byte) bool {
	switch t {
	case frameCommand, frameResponse, frameEvent, frameHeartbeat:
		return true
	}
	return false
}

// Decoder accumulates raw socket bytes and cuts them into frames. Message
// boundaries are protocol-defined, not socket-defined, so partial reads
// simply stay buffered until the rest arrives. Corruption discards bytes
// up to the next plausible start marker and decoding continues.
type Decoder struct {
	buf []byte
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes from the socket.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the next complete frame, or (nil, nil) when more bytes are
// needed. A frame-level error reports corruption that was skipped; the
// caller logs it and calls Next again.
func (d *Decoder) Next() (*frame, error) {
	if len(d.buf) == 0 {
		return nil, nil
	}

	if d.buf[0] != frameStart {
		i := bytes.IndexByte(d.buf, frameStart)
		if i < 0 {
			n := len(d.buf)
			d.buf = d.buf[:0]
			return nil, &frameError{fmt.Sprintf("discarded %d bytes without start marker", n)}
		}
		d.buf = d.buf[i:]
		return nil, &frameError{fmt.Sprintf("skipped %d bytes to next start marker", i)}
	}

	if len(d.buf) < frameHeaderSize {
		return nil, nil
	}

	typ := d.buf[1]
	length := int(binary.BigEndian.Uint16(d.buf[2:4]))
	if !validFrameType(typ) || length > frameMaxBody {
		d.buf = d.buf[1:]
		return nil, &frameError{fmt.Sprintf("implausible header (type 0x%02x len %d)", typ, length)}
	}

	total := frameHeaderSize + length + 1
	if len(d.buf) < total {
		return nil, nil
	}

	if CRC8(d.buf[:total-1]) != d.buf[total-1] {
		// A corrupt frame may hide a genuine one starting inside it, so
		// only the start byte is dropped before resyncing.
		d.buf = d.buf[1:]
		return nil, &frameError{"crc mismatch"}
	}

	f := &frame{
		Type: typ,
		Seq:  d.buf[4],
		Body: append([]byte(nil), d.buf[frameHeaderSize:total-1]...),
	}
	d.buf = d.buf[total:]
	return f, nil
}
