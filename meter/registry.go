// Package meter implements the named-meter registry (C7): radio-assigned id
// binding, fixed-point float encoding, range validation, and coalesced
// VITA-49 emission.
package meter

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sdrwf/wfcore/vita"
)

// Unit selects a meter's fixed-point radix (spec §4.7).
type Unit int

const (
	UnitDB Unit = iota
	UnitDBM
	UnitDBFS
	UnitSWR
	UnitVolts
	UnitAmps
	UnitTempF
	UnitTempC
	UnitRPM
	UnitWatts
	UnitPercent
	UnitNone
)

func (u Unit) radix() uint {
	switch u {
	case UnitDB, UnitDBM, UnitDBFS, UnitSWR:
		return 7
	case UnitVolts, UnitAmps:
		return 8
	case UnitTempF, UnitTempC:
		return 6
	default:
		return 0
	}
}

func (u Unit) String() string {
	switch u {
	case UnitDB:
		return "DB"
	case UnitDBM:
		return "DBM"
	case UnitDBFS:
		return "DBFS"
	case UnitSWR:
		return "SWR"
	case UnitVolts:
		return "VOLTS"
	case UnitAmps:
		return "AMPS"
	case UnitTempF:
		return "TEMP_F"
	case UnitTempC:
		return "TEMP_C"
	case UnitRPM:
		return "RPM"
	case UnitWatts:
		return "WATTS"
	case UnitPercent:
		return "PERCENT"
	default:
		return "NONE"
	}
}

var (
	ErrDuplicateName = errors.New("meter: duplicate meter name")
	ErrOutOfRange    = errors.New("meter: value outside [min,max]")
	ErrNotFinite     = errors.New("meter: value is not finite")
	ErrTooManyMeters = errors.New("meter: too many meters with a pending value for one packet")
	ErrUnknownMeter  = errors.New("meter: no such meter")
)

// MaxSlots is the maximum number of {id,value} pairs one meter packet can
// carry (spec §4.7, §6).
const MaxSlots = vita.MaxMeterSlots

// MeterStreamID is the fixed stream id meter packets are sent on (spec §6).
const MeterStreamID = 0x00534d54 // "SMT" stream marker chosen by this module

// Meter is one named scalar streamed back to the radio (spec §3).
type Meter struct {
	Name string
	Min  float64
	Max  float64
	Unit Unit

	id      uint16
	hasID   bool
	encoded int32
	hasValue bool
}

// ID returns the radio-assigned id, or ok=false before the create response
// has been processed.
func (m *Meter) ID() (uint16, bool) { return m.id, m.hasID }

// Value returns the meter's current fixed-point value, or -1 if unset (spec
// §3's "value, signed 32-bit, -1 = unset").
func (m *Meter) Value() int32 {
	if !m.hasValue {
		return -1
	}
	return m.encoded
}

// Registry owns one waveform's named meters.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*Meter
	order  []*Meter

	seq uint8 // 4-bit monotonic sequence for meter packets, mod 16
}

// New creates an empty meter registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*Meter)}
}

// Register inserts a new meter. Duplicate names are rejected with
// ErrDuplicateName and logged by the caller (spec §4.7: "no-op with an error
// log").
func (r *Registry) Register(name string, min, max float64, unit Unit) (*Meter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	m := &Meter{Name: name, Min: min, Max: max, Unit: unit}
	r.byName[name] = m
	r.order = append(r.order, m)
	return m, nil
}

// Snapshot returns every registered meter, keyed by name, as it stands at
// call time. Used on radio connection to emit one "meter create" per meter
// (spec §4.7).
func (r *Registry) Snapshot() map[string]*Meter {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Meter, len(r.byName))
	for k, v := range r.byName {
		out[k] = v
	}
	return out
}

// Unregister removes a meter, used when the "meter create" response fails
// to parse as an id (spec §4.7: "a parse failure unlinks and frees the
// entry").
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeter, name)
	}
	delete(r.byName, name)
	for i, candidate := range r.order {
		if candidate == m {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// BindID assigns the radio-allocated id to a previously registered meter,
// parsed from a "meter create" response body as an unsigned integer ≤
// 65535 (spec §4.7). IDs are assigned once and then immutable (spec §3).
func (r *Registry) BindID(name string, id uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeter, name)
	}
	if m.hasID {
		return nil // ids are immutable once assigned
	}
	m.id = id
	m.hasID = true
	return nil
}

// SetFloat encodes v into meter name's fixed-point representation after
// checking it against [min,max] (spec invariant 6/7). Inf/NaN and
// out-of-range values are rejected, not clamped, and the meter is left
// untouched.
func (r *Registry) SetFloat(name string, v float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeter, name)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v", ErrNotFinite, v)
	}
	if v < m.Min || v > m.Max {
		return fmt.Errorf("%w: %v not in [%v,%v]", ErrOutOfRange, v, m.Min, m.Max)
	}

	encoded := math.Round(v * float64(uint32(1)<<m.Unit.radix()))
	m.encoded = int32(int16(encoded))
	m.hasValue = true
	return nil
}

// SetInt stores an already fixed-point-encoded value directly, bypassing
// radix scaling. Used when a caller already has a raw i16 reading.
func (r *Registry) SetInt(name string, v int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMeter, name)
	}
	m.encoded = int32(v)
	m.hasValue = true
	return nil
}

// pendingSlot is a meter with a value ready to send.
type pendingSlot struct {
	id    uint16
	value int16
}

// BuildPacket composes one no-timestamp VITA-49 extension packet carrying
// every meter whose value is set and whose id is bound, and resets each
// emitted meter's value to unset (spec §4.7). check supplies the OUI and
// infoClass the information class the header is stamped with. Because the
// guard below uses >=, at most MaxSlots-1 pairs are sent; with MaxSlots or
// more pending it returns ErrTooManyMeters, with no packet and no meters
// reset (invariant 7: no partial wire output on a contract violation).
func (r *Registry) BuildPacket(check vita.ClassCheck, infoClass uint16) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []pendingSlot
	for _, m := range r.order {
		if !m.hasValue || !m.hasID {
			continue
		}
		pending = append(pending, pendingSlot{id: m.id, value: int16(m.encoded)})
	}

	// The meter-count guard uses >= against the slot bound (spec §9 open
	// question: the source's ">" looks like an off-by-one).
	if len(pending) >= MaxSlots {
		return nil, fmt.Errorf("%w: %d pending, limit %d", ErrTooManyMeters, len(pending), MaxSlots)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	payload := make([]byte, 0, len(pending)*4)
	for _, slot := range pending {
		// Slots are written {value_lo, value_hi, id_lo, id_hi} here so
		// that vita.Encode's generic per-word byte-swap (meter packets
		// classify as "unknown") produces {id_hi, id_lo, value_hi,
		// value_lo} on the wire: two big-endian u16 fields, id first,
		// matching the documented {id, value} slot order (spec §9 open
		// question on meter slot byte order).
		payload = append(payload,
			byte(uint16(slot.value)),
			byte(uint16(slot.value)>>8),
			byte(slot.id),
			byte(slot.id>>8),
		)
	}

	seq := r.seq
	r.seq = (r.seq + 1) & 0xf

	h := vita.Header{
		Type:         vita.ExtDataWithID,
		ClassPresent: true,
		Sequence:     seq,
		StreamID:     MeterStreamID,
		Class: vita.ClassID{
			OUI:              check.OUI,
			InformationClass: infoClass,
			PacketClass:      0, // is_audio=false: falls into Classify's KindUnknown bucket
		},
	}

	wire := vita.Encode(vita.Packet{Header: h, Payload: payload})

	for _, m := range r.order {
		if m.hasValue && m.hasID {
			m.hasValue = false
		}
	}

	return wire, nil
}
