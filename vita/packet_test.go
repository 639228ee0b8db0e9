package vita

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testOUI   = 0x00001c2d
	testClass = 0x534c
)

func genHeader(t *rapid.T) Header {
	kind := rapid.SampledFrom([]Kind{KindAudio, KindByte, KindUnknown}).Draw(t, "kind")

	var h Header
	switch kind {
	case KindAudio:
		h.Type = IFDataWithID
		h.Class = AudioClass(testOUI, testClass)
	case KindByte:
		h.Type = ExtDataWithID
		h.Class = ByteClass(testOUI, testClass)
	default:
		h.Type = PacketType(rapid.IntRange(0, 7).Draw(t, "type"))
		h.Class = ClassID{
			OUI:              testOUI,
			InformationClass: testClass,
			PacketClass:      uint16(rapid.IntRange(0, 0x3fff).Draw(t, "pclass")),
		}
	}

	h.ClassPresent = true
	h.TrailerPresent = rapid.Bool().Draw(t, "trailer")
	h.IntTimestamp = IntTimestampType(rapid.IntRange(0, 3).Draw(t, "itt"))
	h.FracTimestamp = FracTimestampType(rapid.IntRange(0, 3).Draw(t, "ftt"))
	h.Sequence = uint8(rapid.IntRange(0, 15).Draw(t, "seq"))
	h.StreamID = rapid.Uint32().Draw(t, "streamid")

	if h.IntTimestamp != IntTimestampNone {
		h.IntegerTime = rapid.Uint32().Draw(t, "itime")
	}
	if h.FracTimestamp != FracTimestampNone {
		h.FractionalTime = rapid.Uint64().Draw(t, "ftime")
	}

	return h
}

func genPayload(t *rapid.T, kind Kind) []byte {
	switch kind {
	case KindByte:
		n := rapid.IntRange(0, MaxBytePayload).Draw(t, "n")
		return rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "payload")
	default:
		words := rapid.IntRange(0, 8).Draw(t, "words")
		return rapid.SliceOfN(rapid.Byte(), words*4, words*4).Draw(t, "payload")
	}
}

// Invariant 1 (spec §8): for every legal Packet, parse(encode(p)) == p.
func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := genHeader(rt)
		payload := genPayload(rt, Classify(h))
		p := Packet{Header: h, Payload: payload}

		// LengthWords is derived by Encode, not supplied by the caller;
		// clear it so the comparison below reflects the computed value.
		p.Header.LengthWords = 0

		wire := Encode(p)

		d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
		got, err := d.Parse(wire)
		require.NoError(rt, err)

		want := p
		want.Header.LengthWords = uint16(len(wire) / 4)

		if diff := cmp.Diff(want, got); diff != "" {
			rt.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	})
}

// Invariant 2 (byte-swap symmetry): Encode swaps a copy of the payload, so
// the caller's payload is unchanged after encoding.
func TestEncodeDoesNotMutateInput(t *testing.T) {
	h := Header{Type: IFDataWithID, ClassPresent: true, Class: AudioClass(testOUI, testClass), StreamID: 2}
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	original := append([]byte(nil), payload...)

	_ = Encode(Packet{Header: h, Payload: payload})

	require.Equal(t, original, payload, "Encode must not mutate the caller's payload")
}

// Invariant 3 groundwork: an audio-class header classifies as KindAudio for
// every stream id, so the TX/RX split rests on the stream id's low bit alone.
// The direction rule itself is applied in package dataplane.
func TestAudioStreamDirection(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		streamID := rapid.Uint32().Draw(rt, "streamid")
		h := Header{
			Type:         IFDataWithID,
			ClassPresent: true,
			Class:        AudioClass(testOUI, testClass),
			StreamID:     streamID,
		}
		require.Equal(rt, Classify(h), KindAudio)

		isTransmit := streamID&1 == 1
		require.Equal(rt, isTransmit, streamID&1 == 1)
	})
}

func TestParseRejectsBadLength(t *testing.T) {
	h := Header{Type: IFDataWithID, ClassPresent: true, Class: AudioClass(testOUI, testClass)}
	wire := Encode(Packet{Header: h})
	wire = append(wire, 0, 0, 0, 0) // now longer than declared length

	d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
	_, err := d.Parse(wire)
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestParseRejectsBadOUI(t *testing.T) {
	h := Header{Type: IFDataWithID, ClassPresent: true, Class: AudioClass(0xdeadbe, testClass)}
	wire := Encode(Packet{Header: h})

	d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
	_, err := d.Parse(wire)
	require.ErrorIs(t, err, ErrInvalidOUI)
}

func TestParseRejectsBadClass(t *testing.T) {
	h := Header{Type: IFDataWithID, ClassPresent: true, Class: AudioClass(testOUI, 0xbad1)}
	wire := Encode(Packet{Header: h})

	d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
	_, err := d.Parse(wire)
	require.ErrorIs(t, err, ErrInvalidClass)
}

func TestHeaderSize(t *testing.T) {
	withTS := Header{IntTimestamp: IntTimestampUTC}
	require.Equal(t, headerSizeWithTimestamp, withTS.HeaderSize())

	withoutTS := Header{IntTimestamp: IntTimestampNone}
	require.Equal(t, headerSizeWithoutTimestamp, withoutTS.HeaderSize())
}

func TestBytePacketRoundTrip(t *testing.T) {
	h := Header{
		Type:         ExtDataWithID,
		ClassPresent: true,
		Class:        ByteClass(testOUI, testClass),
		StreamID:     7,
	}
	payload := []byte("hello, radio")
	wire := Encode(Packet{Header: h, Payload: payload})

	d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
	got, err := d.Parse(wire)
	require.NoError(t, err)
	require.Equal(t, payload, got.Payload)
}

func TestFractionalTimestampIsOpaque64Bit(t *testing.T) {
	// Regression for the §9 redesign note: the fractional timestamp must
	// not be reinterpreted as two 32-bit network-order halves.
	h := Header{
		Type:          IFDataWithID,
		ClassPresent:  true,
		Class:         AudioClass(testOUI, testClass),
		FracTimestamp: FracTimestampRealTime,
		FractionalTime: math.MaxUint64 - 1,
	}
	wire := Encode(Packet{Header: h})
	d := NewDecoder(ClassCheck{OUI: testOUI, InformationClass: testClass})
	got, err := d.Parse(wire)
	require.NoError(t, err)
	require.Equal(t, h.FractionalTime, got.Header.FractionalTime)
}
