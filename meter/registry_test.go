package meter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdrwf/wfcore/vita"
)

func TestRegisterDuplicateNameRejected(t *testing.T) {
	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)

	_, err = r.Register("snr", -1, 1, UnitVolts)
	require.ErrorIs(t, err, ErrDuplicateName)
}

// Invariant 6 + S5: DB radix=7, -12.5 -> round(-12.5*128) = -1600.
func TestSetFloatEncodesFixedPoint(t *testing.T) {
	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)

	require.NoError(t, r.SetFloat("snr", -12.5))
	require.NoError(t, r.BindID("snr", 42))

	m, err := r.lookup("snr")
	require.NoError(t, err)
	require.Equal(t, int32(-1600), m.Value())
}

func (r *Registry) lookup(name string) (*Meter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byName[name]
	if !ok {
		return nil, ErrUnknownMeter
	}
	return m, nil
}

func TestSetFloatRejectsOutOfRange(t *testing.T) {
	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)

	err = r.SetFloat("snr", 150)
	require.ErrorIs(t, err, ErrOutOfRange)

	m, _ := r.lookup("snr")
	require.Equal(t, int32(-1), m.Value(), "meter must stay untouched on rejection")
}

func TestSetFloatRejectsNonFinite(t *testing.T) {
	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)

	require.ErrorIs(t, r.SetFloat("snr", math.NaN()), ErrNotFinite)
	require.ErrorIs(t, r.SetFloat("snr", math.Inf(1)), ErrNotFinite)
}

// S5: meter encode end-to-end, including wire round trip through vita.
func TestBuildPacketProducesIDFirstSlot(t *testing.T) {
	const testOUI = 0x00001c2d
	const testClass = 0x534c

	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)
	require.NoError(t, r.BindID("snr", 42))
	require.NoError(t, r.SetFloat("snr", -12.5))

	wire, err := r.BuildPacket(vita.ClassCheck{OUI: testOUI, InformationClass: testClass}, testClass)
	require.NoError(t, err)
	require.NotNil(t, wire)

	d := vita.NewDecoder(vita.ClassCheck{OUI: testOUI, InformationClass: testClass})
	p, err := d.Parse(wire)
	require.NoError(t, err)
	require.Equal(t, uint32(MeterStreamID), p.Header.StreamID)
	require.Len(t, p.Payload, 4)

	// Parse returns the payload words swapped back to host order, so the
	// slot's wire layout is read from the encoded bytes after the header.
	slot := wire[len(wire)-4:]
	id := uint16(slot[0])<<8 | uint16(slot[1])
	value := int16(uint16(slot[2])<<8 | uint16(slot[3]))
	require.Equal(t, uint16(42), id)
	require.Equal(t, int16(-1600), value)

	m, _ := r.lookup("snr")
	require.Equal(t, int32(-1), m.Value(), "value resets to unset after send")
}

func TestBuildPacketEmptyWhenNothingPending(t *testing.T) {
	r := New()
	_, err := r.Register("snr", -100, 100, UnitDB)
	require.NoError(t, err)
	require.NoError(t, r.BindID("snr", 1))

	wire, err := r.BuildPacket(vita.ClassCheck{OUI: 1, InformationClass: 2}, 2)
	require.NoError(t, err)
	require.Nil(t, wire)
}

func TestBuildPacketRejectsTooManyMeters(t *testing.T) {
	r := New()
	for i := 0; i < MaxSlots; i++ {
		name := string(rune('a' + i%26)) + string(rune('A'+i/26))
		_, err := r.Register(name, -100, 100, UnitDB)
		require.NoError(t, err)
		require.NoError(t, r.BindID(name, uint16(i+1)))
		require.NoError(t, r.SetFloat(name, 1))
	}

	_, err := r.BuildPacket(vita.ClassCheck{OUI: 1, InformationClass: 2}, 2)
	require.ErrorIs(t, err, ErrTooManyMeters)
}
