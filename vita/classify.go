package vita

// Kind is the logical stream a packet belongs to, per spec §4.1/§4.2.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindByte
)

// Classify identifies a packet's logical kind from its header alone, per the
// exact conjunctions in spec §4.1.
func Classify(h Header) Kind {
	switch {
	case h.Type == IFDataWithID &&
		h.Class.IsAudio() &&
		h.Class.BitsPerSample() == BitsPerSample32 &&
		h.Class.SampleRate() == SampleRate24K &&
		h.Class.FramesPerSample() == FramesPerSample2 &&
		h.Class.IsFloat():
		return KindAudio

	case h.Type == ExtDataWithID &&
		h.Class.IsAudio() &&
		h.Class.BitsPerSample() == BitsPerSample8 &&
		h.Class.SampleRate() == SampleRate3K &&
		h.Class.FramesPerSample() == FramesPerSample1 &&
		!h.Class.IsFloat():
		return KindByte

	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindByte:
		return "byte"
	default:
		return "unknown"
	}
}

// AudioClass is the class word combination for an audio packet (spec §4.1/§6).
func AudioClass(oui uint32, infoClass uint16) ClassID {
	return ClassID{
		OUI:              oui,
		InformationClass: infoClass,
		PacketClass:      MakePacketClass(true, true, SampleRate24K, BitsPerSample32, FramesPerSample2),
	}
}

// ByteClass is the class word combination for a byte-stream packet.
func ByteClass(oui uint32, infoClass uint16) ClassID {
	return ClassID{
		OUI:              oui,
		InformationClass: infoClass,
		PacketClass:      MakePacketClass(true, false, SampleRate3K, BitsPerSample8, FramesPerSample1),
	}
}
