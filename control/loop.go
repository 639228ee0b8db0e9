package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sdrwf/wfcore/logging"
	"github.com/sdrwf/wfcore/metrics"
)

// responseCodeBias is added to a non-zero command-callback return value
// before it is hex-encoded into a "waveform response" frame (spec §4.5,
// scenario S6).
const responseCodeBias = 0x50000000

// ResponseEntry tracks one outstanding sequence number awaiting a radio
// response (spec §3). At most one entry exists per sequence; it is removed
// when a final R arrives, or when a Q reports a non-zero code.
type ResponseEntry struct {
	Sequence   uint32
	OnComplete func(code uint32, message string)
	OnQueued   func(code uint32, message string)
}

type responseQueue struct {
	mu      sync.Mutex
	entries map[uint32]*ResponseEntry
}

func newResponseQueue() *responseQueue {
	return &responseQueue{entries: make(map[uint32]*ResponseEntry)}
}

func (q *responseQueue) insert(e *ResponseEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[e.Sequence] = e
}

func (q *responseQueue) lookup(seq uint32) (*ResponseEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[seq]
	return e, ok
}

func (q *responseQueue) remove(seq uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, seq)
}

// CallbackPool is thread pool D (spec §5): normal-priority workers that run
// status/state/command/response callbacks. Callbacks enqueued together may
// run concurrently with each other; callers must not assume mutual
// exclusion between them. golang.org/x/sync/semaphore.Weighted bounds the
// number of callbacks in flight at once.
type CallbackPool struct {
	sem *semaphore.Weighted
}

// NewCallbackPool creates a pool that runs up to limit callbacks
// concurrently.
func NewCallbackPool(limit int) *CallbackPool {
	return &CallbackPool{sem: semaphore.NewWeighted(int64(limit))}
}

// Go schedules fn to run on the pool, blocking the caller only long enough
// to acquire a slot.
func (p *CallbackPool) Go(fn func()) {
	_ = p.sem.Acquire(context.Background(), 1)
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
}

// StatusHandler applies the built-in side effects of status lines: slice
// activation/deactivation and PTT/unkey transitions (spec §4.5, §4.6). It is
// invoked before the line is fanned out to user status callbacks.
type StatusHandler interface {
	HandleStatus(tokens []string)
}

// Dispatcher fans inbound events out to user callbacks, all scheduled on the
// callback pool.
type Dispatcher interface {
	// DispatchStatus invokes every status callback across every waveform on
	// this radio whose key equals tokens[0].
	DispatchStatus(tokens []string)

	// DispatchCommand looks up the waveform whose active slice matches the
	// command's target slice, invokes matching command callbacks, and
	// returns the status to embed in the "waveform response" reply. handled
	// is false if no waveform/command matched (spec silently drops this
	// case rather than replying).
	DispatchCommand(tokens []string) (status int, handled bool)
}

// Loop owns the TCP control connection: thread A in the concurrency model
// (spec §5), normal priority, serializing reads and writes through its event
// loop.
type Loop struct {
	conn net.Conn

	writeMu sync.Mutex
	seq     uint32

	responses *responseQueue
	pool      *CallbackPool
	status    StatusHandler
	dispatch  Dispatcher
	log       logging.Logger
	metrics   *metrics.Registry

	version string
	handle  uint32

	stop chan struct{}
	done chan struct{}
}

// DialConfig configures connection establishment (spec §4.5 item 1 delegates
// timeout/retry policy to "the transport library").
type DialConfig struct {
	Connect    time.Duration
	Retry      time.Duration
	MaxRetries int
}

// Dial opens the TCP control connection, retrying per cfg, and returns a
// Loop ready to Run.
func Dial(ctx context.Context, addr string, cfg DialConfig, status StatusHandler, dispatch Dispatcher, pool *CallbackPool, log logging.Logger, reg *metrics.Registry) (*Loop, error) {
	if log == nil {
		log = logging.Discard
	}

	var conn net.Conn
	var err error

	dialer := net.Dialer{Timeout: cfg.Connect}
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
		if attempt == cfg.MaxRetries {
			return nil, fmt.Errorf("control: dial %s: %w", addr, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.Retry):
		}
	}

	return &Loop{
		conn: conn,
		// seq starts one before the wrap point so the first command emitted
		// gets sequence 0 (NextSequence always pre-increments its argument).
		seq:       sequenceMask,
		responses: newResponseQueue(),
		pool:      pool,
		status:    status,
		dispatch:  dispatch,
		log:       log,
		metrics:   reg,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Version returns the last recorded "V" frame payload.
func (l *Loop) Version() string { return l.version }

// Handle returns the last recorded "H" frame value.
func (l *Loop) Handle() uint32 { return l.handle }

// SendCommand transmits an immediate command with no completion callback,
// satisfying dataplane.CommandSender.
func (l *Loop) SendCommand(cmd string) error {
	_, err := l.send(cmd, nil, nil)
	return err
}

// SendWithCallback transmits an immediate command, registering a
// ResponseEntry before writing to the wire so a reply can never race ahead
// of the entry existing (spec §4.5).
func (l *Loop) SendWithCallback(cmd string, onComplete, onQueued func(code uint32, message string)) (seq uint32, err error) {
	return l.send(cmd, onComplete, onQueued)
}

func (l *Loop) send(cmd string, onComplete, onQueued func(code uint32, message string)) (uint32, error) {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	seq := NextSequence(l.seq)
	l.seq = seq

	if onComplete != nil || onQueued != nil {
		l.responses.insert(&ResponseEntry{Sequence: seq, OnComplete: onComplete, OnQueued: onQueued})
	}

	line := FormatCommand(seq, cmd)
	if _, err := l.conn.Write([]byte(line)); err != nil {
		l.responses.remove(seq)
		return 0, fmt.Errorf("control: write command: %w", err)
	}

	l.metrics.CommandEmitted()
	return seq, nil
}

// replyToRadioCommand emits the "waveform response" acknowledgement to a
// radio-originated command (spec §4.5, scenario S6).
func (l *Loop) replyToRadioCommand(origSeq uint32, status int) error {
	code := status
	if code != 0 {
		code += responseCodeBias
	}
	return l.SendCommand(fmt.Sprintf("waveform response %d|%x", origSeq, code))
}

// Run reads and dispatches frames until the connection closes, an error
// occurs, or Stop is called. It blocks; callers run it on thread A.
func (l *Loop) Run() error {
	defer close(l.done)

	scanner := bufio.NewScanner(l.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		select {
		case <-l.stop:
			return nil
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		frame, err := ParseFrame(line)
		if err != nil {
			l.log.Log(logging.LevelInfo, "control: dropping malformed frame", "line", line, "err", err)
			l.metrics.DroppedPacket("malformed_frame")
			continue
		}

		l.handleFrame(frame)
	}

	if err := scanner.Err(); err != nil {
		l.metrics.TransportError("control")
		return fmt.Errorf("control: read loop: %w", err)
	}
	return nil
}

func (l *Loop) handleFrame(f Frame) {
	switch f.Tag {
	case TagVersion:
		l.version = f.Version

	case TagHandle:
		l.handle = f.Handle

	case TagLog:
		l.log.Log(logging.LevelInfo, "control: radio log", "message", f.LogMessage)

	case TagResponse:
		entry, ok := l.responses.lookup(f.Sequence)
		if !ok {
			return // missing correlations are dropped silently
		}
		l.responses.remove(f.Sequence)
		if entry.OnComplete != nil {
			l.pool.Go(func() { entry.OnComplete(f.Code, f.Message) })
		}

	case TagQueuedResponse:
		entry, ok := l.responses.lookup(f.Sequence)
		if !ok {
			return
		}
		if f.Code != 0 {
			l.responses.remove(f.Sequence)
		}
		if entry.OnQueued != nil {
			l.pool.Go(func() { entry.OnQueued(f.Code, f.Message) })
		}

	case TagStatus:
		if l.status != nil {
			l.status.HandleStatus(f.Tokens)
		}
		if l.dispatch != nil {
			tokens := f.Tokens
			l.pool.Go(func() { l.dispatch.DispatchStatus(tokens) })
		}

	case TagCommand:
		if l.dispatch == nil {
			return
		}
		origSeq := f.Sequence
		tokens := f.Tokens
		l.pool.Go(func() {
			status, handled := l.dispatch.DispatchCommand(tokens)
			if !handled {
				return
			}
			if err := l.replyToRadioCommand(origSeq, status); err != nil {
				l.log.Log(logging.LevelError, "control: failed to reply to radio command", "seq", origSeq, "err", err)
			}
		})
	}
}

// Stop requests cooperative shutdown of the read loop and closes the
// connection.
func (l *Loop) Stop() {
	close(l.stop)
	l.conn.Close()
	<-l.done
}
