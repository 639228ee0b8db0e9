package radio

import (
	"github.com/sdrwf/wfcore/slice"
	"github.com/sdrwf/wfcore/vita"
)

// CallbackKind is the explicit tag spec §9 asks for in place of an
// implicit-union callback table: every registered callback carries its kind
// rather than being identified by which list it happens to live on.
type CallbackKind int

const (
	CallbackStatus CallbackKind = iota
	CallbackState
	CallbackCommand
	CallbackData
	CallbackResponse
	CallbackQueued
)

// StatusFunc handles a status line whose first token equals the
// registration key.
type StatusFunc func(tokens []string, ctx any)

// StateFunc handles an activation/interlock transition (spec §4.6).
type StateFunc func(event slice.Event, sliceNum int, ctx any)

// CommandFunc handles a radio-originated command whose verb equals the
// registration key. Its return value becomes the "waveform response" code
// (spec §4.5).
type CommandFunc func(tokens []string, ctx any) int

// DataFunc handles one classified VITA-49 data packet.
type DataFunc func(p vita.Packet, ctx any)

// CallbackEntry is one registered callback: kind, key (status name or
// command verb; unused for data callbacks), and the opaque user context,
// insertion-ordered within its kind+key group (spec §3).
type CallbackEntry struct {
	Kind CallbackKind
	Key  string
	ctx  any
	fn   any
}
