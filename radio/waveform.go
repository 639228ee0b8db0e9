package radio

import (
	"fmt"
	"sync"

	"github.com/sdrwf/wfcore/dataplane"
	"github.com/sdrwf/wfcore/meter"
	"github.com/sdrwf/wfcore/slice"
	"github.com/sdrwf/wfcore/vita"
)

// DefaultFilterDepth is the default RX/TX filter depth (spec §3).
const DefaultFilterDepth = 8

// StreamIDs are the six 32-bit ids learned from the radio's "waveform
// create" response (spec §3). The low-order bit distinguishes TX (1) from
// RX (0) for audio streams; byte streams carry their own direction ids.
type StreamIDs struct {
	TxAudioIn, TxAudioOut uint32
	RxAudioIn, RxAudioOut uint32
	ByteIn, ByteOut       uint32
}

// Waveform represents one configured mode on a Radio (spec §3).
type Waveform struct {
	FullName       string
	ShortName      string
	UnderlyingMode string
	Version        string
	RXFilterDepth  int
	TXFilterDepth  int
	Context        any

	Meters *meter.Registry

	radio *Radio

	mu        sync.Mutex
	streamIDs StreamIDs
	callbacks []CallbackEntry

	slice    *slice.Machine
	dataLoop *dataplane.Loop
}

func newWaveform(r *Radio, fullName, shortName, underlyingMode, version string) (*Waveform, error) {
	if len(shortName) == 0 || len(shortName) > 4 {
		return nil, fmt.Errorf("radio: short name %q must be 1-4 characters", shortName)
	}

	wf := &Waveform{
		FullName:       fullName,
		ShortName:      shortName,
		UnderlyingMode: underlyingMode,
		Version:        version,
		RXFilterDepth:  DefaultFilterDepth,
		TXFilterDepth:  DefaultFilterDepth,
		Meters:         meter.New(),
		radio:          r,
		slice:          slice.New(shortName),
	}
	wf.slice.SetScheduler(func(fn func()) { r.pool.Go(fn) })
	wf.slice.SetLifecycle(wf.activateDataPlane, wf.deactivateDataPlane)
	return wf, nil
}

// StreamIDs returns the ids learned from the "waveform create" response.
func (w *Waveform) StreamIDs() StreamIDs {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streamIDs
}

func (w *Waveform) setStreamIDs(ids StreamIDs) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.streamIDs = ids
}

// ActiveSlice reports the waveform's current activation state (spec §4.6).
func (w *Waveform) ActiveSlice() (active bool, sliceNum int) {
	state, s := w.slice.State()
	return state == slice.Active, s
}

// --- Callback registration (spec §3's CallbackEntry) ---

func (w *Waveform) addCallback(entry CallbackEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, entry)
}

// OnStatus registers fn for every status line whose first token equals key.
func (w *Waveform) OnStatus(key string, fn StatusFunc, ctx any) {
	w.addCallback(CallbackEntry{Kind: CallbackStatus, Key: key, fn: fn, ctx: ctx})
}

// OnState registers fn for activation/interlock transitions.
func (w *Waveform) OnState(fn StateFunc, ctx any) {
	w.addCallback(CallbackEntry{Kind: CallbackState, fn: fn, ctx: ctx})
	w.slice.OnStateChange(func(e slice.Event, s int) { fn(e, s, ctx) })
}

// OnCommand registers fn for radio-originated commands whose verb equals
// key.
func (w *Waveform) OnCommand(key string, fn CommandFunc, ctx any) {
	w.addCallback(CallbackEntry{Kind: CallbackCommand, Key: key, fn: fn, ctx: ctx})
}

// OnRXAudio, OnTXAudio, OnRXByte, OnTXByte, OnUnknown register data
// callbacks for their respective classified stream (spec §4.2).
func (w *Waveform) OnRXAudio(fn DataFunc, ctx any) { w.addDataCallback("rx_audio", fn, ctx) }
func (w *Waveform) OnTXAudio(fn DataFunc, ctx any) { w.addDataCallback("tx_audio", fn, ctx) }
func (w *Waveform) OnRXByte(fn DataFunc, ctx any)  { w.addDataCallback("rx_byte", fn, ctx) }
func (w *Waveform) OnTXByte(fn DataFunc, ctx any)  { w.addDataCallback("tx_byte", fn, ctx) }
func (w *Waveform) OnUnknown(fn DataFunc, ctx any) { w.addDataCallback("unknown", fn, ctx) }

func (w *Waveform) addDataCallback(key string, fn DataFunc, ctx any) {
	w.addCallback(CallbackEntry{Kind: CallbackData, Key: key, fn: fn, ctx: ctx})
}

func (w *Waveform) callbacksFor(kind CallbackKind, key string) []CallbackEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []CallbackEntry
	for _, c := range w.callbacks {
		if c.Kind == kind && c.Key == key {
			out = append(out, c)
		}
	}
	return out
}

// --- dataplane.Dispatcher ---

func (w *Waveform) DispatchAudio(dir dataplane.Direction, p vita.Packet) {
	key := "rx_audio"
	if dir == dataplane.DirTX {
		key = "tx_audio"
	}
	for _, c := range w.callbacksFor(CallbackData, key) {
		c.fn.(DataFunc)(p, c.ctx)
	}
}

func (w *Waveform) DispatchByte(dir dataplane.Direction, p vita.Packet) {
	key := "rx_byte"
	if dir == dataplane.DirTX {
		key = "tx_byte"
	}
	for _, c := range w.callbacksFor(CallbackData, key) {
		c.fn.(DataFunc)(p, c.ctx)
	}
}

func (w *Waveform) DispatchUnknown(p vita.Packet) {
	for _, c := range w.callbacksFor(CallbackData, "unknown") {
		c.fn.(DataFunc)(p, c.ctx)
	}
}

// --- status/command fanout, invoked by Radio ---

func (w *Waveform) dispatchStatus(tokens []string) {
	if len(tokens) == 0 {
		return
	}
	for _, c := range w.callbacksFor(CallbackStatus, tokens[0]) {
		c.fn.(StatusFunc)(tokens, c.ctx)
	}
}

func (w *Waveform) dispatchCommand(verb string, tokens []string) (status int, handled bool) {
	entries := w.callbacksFor(CallbackCommand, verb)
	if len(entries) == 0 {
		return 0, false
	}
	// tokens is the full "<subsystem> <slice> <verb> [args...]" line; the
	// callback only sees the argv past the verb (spec §4.5, scenario S6:
	// "slice 1 set mode=USB" invokes the "set" callback with
	// argv=["mode=USB"]).
	var argv []string
	if len(tokens) > 3 {
		argv = tokens[3:]
	}
	for _, c := range entries {
		status = c.fn.(CommandFunc)(argv, c.ctx)
	}
	return status, true
}

// --- data-plane lifecycle, invoked by the slice state machine ---

func (w *Waveform) activateDataPlane(sliceNum int) error {
	loop, err := dataplane.NewLoop(w.ShortName, w.radio.classCheck(), w, w.radio.worker, w.radio.log, w.radio.metrics)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.dataLoop = loop
	w.mu.Unlock()

	go loop.StartPinned(w.radio.basePriority)

	return loop.Announce(w.radio.controlLoop)
}

func (w *Waveform) deactivateDataPlane() error {
	w.mu.Lock()
	loop := w.dataLoop
	w.dataLoop = nil
	w.mu.Unlock()

	if loop == nil {
		return nil
	}
	loop.Stop()
	return nil
}

// send writes an encoded packet to this waveform's data-plane socket, or
// returns an error if the data plane isn't currently up.
func (w *Waveform) send(wire []byte) error {
	w.mu.Lock()
	loop := w.dataLoop
	w.mu.Unlock()

	if loop == nil {
		return fmt.Errorf("radio: waveform %s has no active data plane", w.ShortName)
	}
	return loop.Send(wire)
}

// SendMeters builds and sends one meter packet for every meter with a
// pending value (spec §4.7).
func (w *Waveform) SendMeters() error {
	wire, err := w.Meters.BuildPacket(w.radio.classCheck(), w.radio.infoClass)
	if err != nil {
		return err
	}
	if wire == nil {
		return nil
	}
	return w.send(wire)
}
