package vita

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrInvalidLength = errors.New("vita: declared length does not match received length")
	ErrInvalidOUI    = errors.New("vita: OUI does not match vendor")
	ErrInvalidClass  = errors.New("vita: information class does not match radio")
	ErrTooShort      = errors.New("vita: packet shorter than minimum header")
)

// ClassCheck carries the vendor OUI and information class a Decoder should
// enforce; both come from the radio, not from the wire format itself.
type ClassCheck struct {
	OUI              uint32
	InformationClass uint16
}

// Decoder parses VITA-49 packets emitted by one particular radio (identified
// by its OUI and information class).
type Decoder struct {
	check ClassCheck
}

func NewDecoder(check ClassCheck) *Decoder {
	return &Decoder{check: check}
}

// Parse converts a network-order byte slice into a typed Packet. It
// validates declared length, OUI, and information class per spec §4.1.
func (d *Decoder) Parse(b []byte) (Packet, error) {
	if len(b) < headerSizeWithoutTimestamp {
		return Packet{}, ErrTooShort
	}

	word0 := binary.BigEndian.Uint32(b[0:4])

	var h Header
	h.Type = PacketType((word0 >> 28) & 0xf)
	h.ClassPresent = (word0>>27)&1 != 0
	h.TrailerPresent = (word0>>26)&1 != 0
	h.IntTimestamp = IntTimestampType((word0 >> 22) & 0x3)
	h.FracTimestamp = FracTimestampType((word0 >> 20) & 0x3)
	h.Sequence = uint8((word0 >> 16) & 0xf)
	h.LengthWords = uint16(word0 & 0xffff)

	if int(h.LengthWords)*4 != len(b) {
		return Packet{}, fmt.Errorf("%w: declared %d words (%d bytes), got %d bytes",
			ErrInvalidLength, h.LengthWords, int(h.LengthWords)*4, len(b))
	}

	off := 4
	if off+4 > len(b) {
		return Packet{}, ErrTooShort
	}
	h.StreamID = binary.BigEndian.Uint32(b[off : off+4])
	off += 4

	if !h.ClassPresent {
		return Packet{}, fmt.Errorf("%w: class word absent", ErrInvalidClass)
	}
	if off+8 > len(b) {
		return Packet{}, ErrTooShort
	}
	ouiWord := binary.BigEndian.Uint32(b[off : off+4])
	classWord := binary.BigEndian.Uint32(b[off+4 : off+8])
	off += 8

	oui := ouiWord & 0x00ffffff
	if oui != d.check.OUI {
		return Packet{}, fmt.Errorf("%w: got 0x%06x, want 0x%06x", ErrInvalidOUI, oui, d.check.OUI)
	}

	h.Class = ClassID{
		OUI:              oui,
		InformationClass: uint16(classWord >> 16),
		PacketClass:      uint16(classWord & 0xffff),
	}
	if h.Class.InformationClass != d.check.InformationClass {
		return Packet{}, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrInvalidClass, h.Class.InformationClass, d.check.InformationClass)
	}

	if h.IntTimestamp != IntTimestampNone {
		if off+4 > len(b) {
			return Packet{}, ErrTooShort
		}
		h.IntegerTime = binary.BigEndian.Uint32(b[off : off+4])
		off += 4
	}

	if h.FracTimestamp != FracTimestampNone {
		if off+8 > len(b) {
			return Packet{}, ErrTooShort
		}
		// Fractional timestamp is treated as a single big-endian 64-bit
		// quantity throughout (spec §9 redesign note), not two
		// byte-swapped 32-bit halves.
		h.FractionalTime = binary.BigEndian.Uint64(b[off : off+8])
		off += 8
	}

	wirePayload := b[off:]

	var out []byte
	switch Classify(h) {
	case KindByte:
		if len(wirePayload) < 4 {
			return Packet{}, fmt.Errorf("%w: byte packet missing length prefix", ErrTooShort)
		}
		n := binary.BigEndian.Uint32(wirePayload[0:4])
		if int(n) > len(wirePayload)-4 {
			return Packet{}, fmt.Errorf("%w: byte packet declares %d bytes, only %d available", ErrTooShort, n, len(wirePayload)-4)
		}
		out = make([]byte, n)
		copy(out, wirePayload[4:4+n])

	default: // audio and unknown: 32-bit word payload
		out = make([]byte, len(wirePayload))
		copy(out, wirePayload)
		swapWords(out)
	}

	return Packet{Header: h, Payload: out}, nil
}

// Encode writes p in network byte order, computing the final header length
// from the payload size. The returned slice is always a fresh copy.
func Encode(p Packet) []byte {
	h := p.Header

	var payload []byte
	switch Classify(h) {
	case KindByte:
		payload = make([]byte, 4+len(p.Payload))
		binary.BigEndian.PutUint32(payload[0:4], uint32(len(p.Payload)))
		copy(payload[4:], p.Payload)

	default:
		// Never mutate the caller's payload; operate on a copy before
		// the byte-swap, so a repeated Encode can't corrupt data a
		// caller still holds a reference to.
		payload = make([]byte, len(p.Payload))
		copy(payload, p.Payload)
		swapWords(payload)
	}

	// Count the header words actually written below: the class words and
	// each timestamp appear only when the header says they are present.
	headerBytes := 8
	if h.ClassPresent {
		headerBytes += 8
	}
	if h.IntTimestamp != IntTimestampNone {
		headerBytes += 4
	}
	if h.FracTimestamp != FracTimestampNone {
		headerBytes += 8
	}
	totalBytes := headerBytes + len(payload)
	lengthWords := uint16(totalBytes / 4)
	if totalBytes%4 != 0 {
		lengthWords++
	}

	out := make([]byte, 0, int(lengthWords)*4)

	var word0 uint32
	word0 |= uint32(h.Type&0xf) << 28
	if h.ClassPresent {
		word0 |= 1 << 27
	}
	if h.TrailerPresent {
		word0 |= 1 << 26
	}
	word0 |= uint32(h.IntTimestamp&0x3) << 22
	word0 |= uint32(h.FracTimestamp&0x3) << 20
	word0 |= uint32(h.Sequence&0xf) << 16
	word0 |= uint32(lengthWords)

	out = appendUint32(out, word0)
	out = appendUint32(out, h.StreamID)

	if h.ClassPresent {
		out = appendUint32(out, h.Class.OUI&0x00ffffff)
		classWord := uint32(h.Class.InformationClass)<<16 | uint32(h.Class.PacketClass)
		out = appendUint32(out, classWord)
	}

	if h.IntTimestamp != IntTimestampNone {
		out = appendUint32(out, h.IntegerTime)
	}

	if h.FracTimestamp != FracTimestampNone {
		out = appendUint64(out, h.FractionalTime)
	}

	out = append(out, payload...)
	// Pad to the declared word count (byte payloads need not fill a word).
	for len(out) < int(lengthWords)*4 {
		out = append(out, 0)
	}
	return out
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

// swapWords reverses the byte order of every complete 32-bit word in place.
// It is applied to audio and unknown payloads (treated as arrays of 32-bit
// words) but never to byte-stream payloads, whose data bytes pass through
// untouched (spec §4.1).
func swapWords(b []byte) {
	for i := 0; i+4 <= len(b); i += 4 {
		b[i], b[i+1], b[i+2], b[i+3] = b[i+3], b[i+2], b[i+1], b[i+0]
	}
}
