// Package dataplane implements the UDP data channel: the realtime receive
// loop that classifies VITA-49 packets and learns stream directions (C2),
// and the ordered worker queue that runs user callbacks for them (C3).
package dataplane

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sdrwf/wfcore/logging"
	"github.com/sdrwf/wfcore/metrics"
	"github.com/sdrwf/wfcore/rtsched"
	"github.com/sdrwf/wfcore/vita"
)

// Direction distinguishes TX from RX for audio and byte streams, per the
// stream-id low-bit rule (spec §3, §4.2).
type Direction int

const (
	DirUnknown Direction = iota
	DirRX
	DirTX
)

func directionOf(streamID uint32) Direction {
	if streamID&1 == 1 {
		return DirTX
	}
	return DirRX
}

// CommandSender is the control-plane capability the data-plane loop needs on
// activation: announcing its UDP port (spec §4.2). Satisfied by
// *control.Loop.
type CommandSender interface {
	SendCommand(cmd string) error
}

// Dispatcher receives classified packets. Loop enqueues one WorkItem per
// accepted packet, and that item calls the matching Dispatcher method on the
// worker goroutine; the implementation runs its registered callbacks from
// there, in registration order. Loop itself only routes by kind and
// direction.
type Dispatcher interface {
	DispatchAudio(dir Direction, p vita.Packet)
	DispatchByte(dir Direction, p vita.Packet)
	DispatchUnknown(p vita.Packet)
}

// streamLearner enforces "first packet seen seeds the id; later packets with
// a different id are dropped" independently for each of the four learned
// directions (spec §4.2).
type streamLearner struct {
	audioRX, audioTX uint32
	byteRX, byteTX   uint32
	haveAudioRX, haveAudioTX bool
	haveByteRX, haveByteTX   bool
}

// accept reports whether streamID is consistent with whatever was learned
// for (kind, dir) so far, seeding the learned value on first sight.
func (s *streamLearner) accept(kind vita.Kind, dir Direction, streamID uint32) bool {
	switch {
	case kind == vita.KindAudio && dir == DirTX:
		return learn(&s.audioTX, &s.haveAudioTX, streamID)
	case kind == vita.KindAudio && dir == DirRX:
		return learn(&s.audioRX, &s.haveAudioRX, streamID)
	case kind == vita.KindByte && dir == DirTX:
		return learn(&s.byteTX, &s.haveByteTX, streamID)
	case kind == vita.KindByte && dir == DirRX:
		return learn(&s.byteRX, &s.haveByteRX, streamID)
	default:
		return true
	}
}

func learn(id *uint32, have *bool, streamID uint32) bool {
	if !*have {
		*id = streamID
		*have = true
		return true
	}
	return *id == streamID
}

// Loop owns the UDP socket and runs the realtime receive loop described in
// spec §4.2. It must run on thread B at the highest real-time FIFO priority
// the process holds (spec §5); StartPinned arranges this via
// rtsched.RunPinned, while Start itself does not change scheduling.
type Loop struct {
	name       string
	conn       *net.UDPConn
	decoder    *vita.Decoder
	worker     *Worker
	dispatcher Dispatcher
	log        logging.Logger
	metrics    *metrics.Registry

	learner streamLearner
	stop    chan struct{}
	done    chan struct{}
}

// NewLoop creates a non-blocking UDP socket bound to an OS-chosen local
// port. The caller is responsible for announcing the port to the radio
// (Announce) once the socket is up.
func NewLoop(name string, check vita.ClassCheck, dispatcher Dispatcher, worker *Worker, log logging.Logger, reg *metrics.Registry) (*Loop, error) {
	if log == nil {
		log = logging.Discard
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
	if err != nil {
		return nil, fmt.Errorf("dataplane: bind udp socket: %w", err)
	}

	return &Loop{
		name:       name,
		conn:       conn,
		decoder:    vita.NewDecoder(check),
		worker:     worker,
		dispatcher: dispatcher,
		log:        log,
		metrics:    reg,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// LocalPort returns the OS-chosen port the socket is bound to.
func (l *Loop) LocalPort() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

// Announce informs the radio of this loop's UDP port with the two commands
// spec §4.2 requires, in order.
func (l *Loop) Announce(sender CommandSender) error {
	port := l.LocalPort()
	if err := sender.SendCommand(fmt.Sprintf("waveform set %s udpport=%d", l.name, port)); err != nil {
		return fmt.Errorf("dataplane: announce waveform udpport: %w", err)
	}
	if err := sender.SendCommand(fmt.Sprintf("client udpport %d", port)); err != nil {
		return fmt.Errorf("dataplane: announce client udpport: %w", err)
	}
	return nil
}

// readPollInterval bounds how often the blocking read yields to check the
// cooperative stop flag, keeping shutdown latency low without busy-polling.
const readPollInterval = 250 * time.Millisecond

// Start runs the receive loop until Stop is called. It blocks, so callers
// invoke it via rtsched.RunPinned on a dedicated goroutine.
func (l *Loop) Start() {
	defer close(l.done)

	buf := make([]byte, 2048)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			l.log.Log(logging.LevelError, "dataplane: set read deadline", "waveform", l.name, "err", err)
		}

		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-l.stop:
				return
			default:
			}
			l.log.Log(logging.LevelError, "dataplane: socket read failed", "waveform", l.name, "err", err)
			l.metrics.TransportError("data")
			continue
		}

		l.handle(buf[:n])
	}
}

func (l *Loop) handle(raw []byte) {
	p, err := l.decoder.Parse(raw)
	if err != nil {
		l.log.Log(logging.LevelInfo, "dataplane: dropping malformed packet", "waveform", l.name, "err", err)
		l.metrics.DroppedPacket("malformed")
		return
	}

	kind := vita.Classify(p.Header)
	dir := directionOf(p.Header.StreamID)

	switch kind {
	case vita.KindAudio, vita.KindByte:
		if !l.learner.accept(kind, dir, p.Header.StreamID) {
			l.log.Log(logging.LevelInfo, "dataplane: dropping packet with mismatched stream id",
				"waveform", l.name, "kind", kind.String(), "stream_id", p.Header.StreamID)
			l.metrics.DroppedPacket("stream_id_mismatch")
			return
		}
	}

	l.worker.Enqueue(WorkItem{Run: func() {
		switch kind {
		case vita.KindAudio:
			l.dispatcher.DispatchAudio(dir, p)
		case vita.KindByte:
			l.dispatcher.DispatchByte(dir, p)
		default:
			l.dispatcher.DispatchUnknown(p)
		}
	}})
}

// Send writes an already-encoded VITA-49 packet to the radio's data socket.
// Sends are non-blocking sendto calls made from whichever thread invokes
// this (spec §5); typically thread C, i.e. from inside a worker callback.
func (l *Loop) Send(wire []byte) error {
	_, err := l.conn.Write(wire)
	return err
}

// Stop requests cooperative shutdown, waits for the receive loop to exit,
// then closes the socket. The worker queue (thread C) is not stopped here:
// it is shared across activations, and Radio.Destroy stops it before
// calling this (spec §5's teardown order: join C, tear down B's event base,
// close the socket).
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
	l.conn.Close()
}

// StartPinned is a convenience wrapper that runs Start under rtsched at the
// highest real-time priority the process holds (role RoleDataIO), logging
// any degradation.
func (l *Loop) StartPinned(basePriority int) {
	rtsched.RunPinned(rtsched.RoleDataIO, basePriority, func(res rtsched.Result) {
		if !res.Applied {
			l.log.Log(logging.LevelWarn, "dataplane: running without real-time scheduling", "waveform", l.name, "err", res.Err)
		}
	}, l.Start)
}
