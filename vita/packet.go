// Package vita implements the wire codec for VITA-49 packets as used by the
// radio's UDP data channel: parsing, encoding, and classification into
// audio, byte, and unknown streams.
package vita

// Packet type (header bits 31..28).
type PacketType uint8

const (
	IFDataWithoutID  PacketType = 0
	IFDataWithID     PacketType = 1
	ExtDataWithoutID PacketType = 2
	ExtDataWithID    PacketType = 3
	CtxPacket        PacketType = 4
	ExtCtxPacket     PacketType = 5
	CmdPacket        PacketType = 6
	ExtCmdPacket     PacketType = 7
)

// Integer timestamp type (header bits 23..22).
type IntTimestampType uint8

const (
	IntTimestampNone IntTimestampType = 0
	IntTimestampUTC  IntTimestampType = 1
	IntTimestampGPS  IntTimestampType = 2
	IntTimestampOther IntTimestampType = 3
)

// Fractional timestamp type (header bits 21..20).
type FracTimestampType uint8

const (
	FracTimestampNone        FracTimestampType = 0
	FracTimestampSampleCount FracTimestampType = 1
	FracTimestampRealTime    FracTimestampType = 2
	FracTimestampFreeRunning FracTimestampType = 3
)

// ClassID is the VITA-49 class identifier word pair (word 2 + word 3 lo/hi
// halves of word 3), decomposed into the fields the radio actually uses.
type ClassID struct {
	OUI             uint32 // low 24 bits significant
	InformationClass uint16
	PacketClass     uint16
}

// PacketClass bit layout, packed into ClassID.PacketClass:
//
//	bit 15    : is_audio
//	bit 14    : is_float
//	bit 13..9 : sample_rate (5 bits)
//	bit 8..7  : bits_per_sample (2 bits)
//	bit 6     : frames_per_sample (1 bit)
const (
	pcIsAudioBit  = 15
	pcIsFloatBit  = 14
	pcSampleRateShift = 9
	pcSampleRateMask  = 0x1f
	pcBitsPerSampleShift = 7
	pcBitsPerSampleMask  = 0x3
	pcFramesPerSampleBit = 6
)

// Sample rate codes used by the radio (5-bit field).
const (
	SampleRate24K SampleRateCode = 1
	SampleRate3K  SampleRateCode = 2
)

type SampleRateCode uint8

// BitsPerSample codes (2-bit field).
const (
	BitsPerSample8  BitsPerSampleCode = 0
	BitsPerSample32 BitsPerSampleCode = 2
)

type BitsPerSampleCode uint8

// FramesPerSample codes (1-bit field).
const (
	FramesPerSample1 FramesPerSampleCode = 0
	FramesPerSample2 FramesPerSampleCode = 1
)

type FramesPerSampleCode uint8

func MakePacketClass(isAudio, isFloat bool, sr SampleRateCode, bps BitsPerSampleCode, fps FramesPerSampleCode) uint16 {
	var v uint16
	if isAudio {
		v |= 1 << pcIsAudioBit
	}
	if isFloat {
		v |= 1 << pcIsFloatBit
	}
	v |= uint16(sr&pcSampleRateMask) << pcSampleRateShift
	v |= uint16(bps&pcBitsPerSampleMask) << pcBitsPerSampleShift
	if fps == FramesPerSample2 {
		v |= 1 << pcFramesPerSampleBit
	}
	return v
}

func (c ClassID) IsAudio() bool {
	return c.PacketClass&(1<<pcIsAudioBit) != 0
}

func (c ClassID) IsFloat() bool {
	return c.PacketClass&(1<<pcIsFloatBit) != 0
}

func (c ClassID) SampleRate() SampleRateCode {
	return SampleRateCode((c.PacketClass >> pcSampleRateShift) & pcSampleRateMask)
}

func (c ClassID) BitsPerSample() BitsPerSampleCode {
	return BitsPerSampleCode((c.PacketClass >> pcBitsPerSampleShift) & pcBitsPerSampleMask)
}

func (c ClassID) FramesPerSample() FramesPerSampleCode {
	if c.PacketClass&(1<<pcFramesPerSampleBit) != 0 {
		return FramesPerSample2
	}
	return FramesPerSample1
}

// Header holds the fields of a VITA-49 packet header in host byte order.
// It intentionally avoids packed/bitfield structs (see DESIGN.md, §9 note on
// portability of the wire header): each field of the leading word is kept
// as its own struct field, and Parse and Encode unpack and pack them with
// explicit masks and shifts rather than relying on the host ABI's bit
// ordering.
type Header struct {
	Type            PacketType
	ClassPresent    bool
	TrailerPresent  bool
	IntTimestamp    IntTimestampType
	FracTimestamp   FracTimestampType
	Sequence        uint8 // 4-bit, mod 16
	LengthWords     uint16 // including header, in 32-bit words
	StreamID        uint32
	Class           ClassID
	IntegerTime     uint32
	FractionalTime  uint64
}

// Packet is a fully decoded VITA-49 packet: header plus payload bytes.
// Payload is already in the representation the caller wants: for audio and
// unknown packets, each 32-bit word has been byte-swapped to host order (see
// Parse); for byte packets, payload is the opaque data with the length
// prefix stripped.
type Packet struct {
	Header  Header
	Payload []byte
}

// HeaderSize returns the size, in bytes, of the header implied by h's
// integer-timestamp presence: 28 bytes with an integer timestamp, 16 without.
func (h Header) HeaderSize() int {
	if h.IntTimestamp != IntTimestampNone {
		return headerSizeWithTimestamp
	}
	return headerSizeWithoutTimestamp
}

const (
	headerSizeWithoutTimestamp = 16
	headerSizeWithTimestamp    = 28
)

// Audio/byte payload limits per spec §6.
const (
	MaxAudioSamplePairs = 360
	MaxBytePayload      = 1436
	MaxMeterSlots        = 363
)
