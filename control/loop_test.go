package control

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeStatusHandler struct {
	mu     sync.Mutex
	tokens [][]string
}

func (h *fakeStatusHandler) HandleStatus(tokens []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens = append(h.tokens, tokens)
}

type fakeDispatcher struct {
	mu            sync.Mutex
	statusCalls   [][]string
	commandTokens []string
	commandStatus int
	commandHandled bool
}

func (d *fakeDispatcher) DispatchStatus(tokens []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusCalls = append(d.statusCalls, tokens)
}

func (d *fakeDispatcher) DispatchCommand(tokens []string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commandTokens = tokens
	return d.commandStatus, d.commandHandled
}

// radioPeer simulates the radio side of the TCP connection for tests.
type radioPeer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Scanner
}

func acceptOne(t *testing.T, ln net.Listener) *radioPeer {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	return &radioPeer{t: t, conn: conn, r: bufio.NewScanner(conn)}
}

func (p *radioPeer) send(line string) {
	p.t.Helper()
	_, err := p.conn.Write([]byte(line + "\n"))
	require.NoError(p.t, err)
}

func (p *radioPeer) readLine() string {
	p.t.Helper()
	require.True(p.t, p.r.Scan())
	return p.r.Text()
}

func newLoopPair(t *testing.T, status StatusHandler, dispatch Dispatcher) (*Loop, *radioPeer) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	var peer *radioPeer
	peerReady := make(chan struct{})
	go func() {
		peer = acceptOne(t, ln)
		close(peerReady)
	}()

	pool := NewCallbackPool(4)
	loop, err := Dial(context.Background(), ln.Addr().String(), DialConfig{Connect: time.Second, Retry: time.Millisecond, MaxRetries: 3}, status, dispatch, pool, nil, nil)
	require.NoError(t, err)

	<-peerReady
	t.Cleanup(loop.Stop)

	go loop.Run()

	return loop, peer
}

// S3: command round-trip.
func TestLoopCommandRoundTrip(t *testing.T) {
	loop, peer := newLoopPair(t, nil, nil)

	var code uint32
	var msg string
	done := make(chan struct{})
	seq, err := loop.SendWithCallback("filt 0 100 3000", func(c uint32, m string) {
		code, msg = c, m
		close(done)
	}, nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0), seq)

	line := peer.readLine()
	require.Equal(t, "C0|filt 0 100 3000", line)

	peer.send("R0|00000000|ok")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}
	require.Equal(t, uint32(0), code)
	require.Equal(t, "ok", msg)
}

// S2: version + handle.
func TestLoopRecordsVersionAndHandle(t *testing.T) {
	loop, peer := newLoopPair(t, nil, nil)

	peer.send("V1.2.3.4")
	peer.send("H0000ABCD")

	require.Eventually(t, func() bool { return loop.Version() == "1.2.3.4" }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return loop.Handle() == 0xABCD }, time.Second, time.Millisecond)
}

// Invariant 5: a sequence that receives one R frame is removed exactly once;
// Q then R fires queued once and completion once.
func TestLoopQueuedThenResponse(t *testing.T) {
	loop, peer := newLoopPair(t, nil, nil)

	var queuedCount, completeCount int
	var mu sync.Mutex
	done := make(chan struct{})

	_, err := loop.SendWithCallback("cmd", func(c uint32, m string) {
		mu.Lock()
		completeCount++
		mu.Unlock()
		close(done)
	}, func(c uint32, m string) {
		mu.Lock()
		queuedCount++
		mu.Unlock()
	})
	require.NoError(t, err)
	peer.readLine()

	peer.send("Q0|0|queued")
	time.Sleep(50 * time.Millisecond)
	peer.send("R0|00000000|done")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, queuedCount)
	require.Equal(t, 1, completeCount)
}

// S6: radio-originated command dispatch and reply encoding.
func TestLoopRadioCommandReplyZero(t *testing.T) {
	disp := &fakeDispatcher{commandStatus: 0, commandHandled: true}
	loop, peer := newLoopPair(t, nil, disp)
	_ = loop

	peer.send("C99|slice 1 set mode=USB")

	line := peer.readLine()
	require.Equal(t, "C0|waveform response 99|0", line)

	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Equal(t, []string{"slice", "1", "set", "mode=USB"}, disp.commandTokens)
}

func TestLoopRadioCommandReplyNonZero(t *testing.T) {
	disp := &fakeDispatcher{commandStatus: 7, commandHandled: true}
	_, peer := newLoopPair(t, nil, disp)

	peer.send("C99|slice 1 set mode=USB")

	line := peer.readLine()
	require.Equal(t, "C0|waveform response 99|50000007", line)
}

func TestLoopStatusBuiltinThenFanout(t *testing.T) {
	status := &fakeStatusHandler{}
	disp := &fakeDispatcher{}
	_, peer := newLoopPair(t, status, disp)

	peer.send("S12345678|slice 1 mode=JUNK")

	require.Eventually(t, func() bool {
		status.mu.Lock()
		defer status.mu.Unlock()
		return len(status.tokens) == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		disp.mu.Lock()
		defer disp.mu.Unlock()
		return len(disp.statusCalls) == 1
	}, time.Second, time.Millisecond)
}
