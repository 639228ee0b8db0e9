// Package radio ties the control plane, data plane, slice state machine,
// and meter registry together into the public waveform/radio surface (C9),
// and implements the per-radio choreography described in spec §4.5.
package radio

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sdrwf/wfcore/config"
	"github.com/sdrwf/wfcore/control"
	"github.com/sdrwf/wfcore/dataplane"
	"github.com/sdrwf/wfcore/logging"
	"github.com/sdrwf/wfcore/metrics"
	"github.com/sdrwf/wfcore/vita"
)

// RadioOUI is the vendor OUI embedded in every VITA-49 class id this module
// speaks (spec §6).
const RadioOUI = 0x00001c2d

// Radio is a long-lived handle to one SDR, parameterized by target address
// (spec §3).
type Radio struct {
	addr        string
	cfg         config.Config
	infoClass   uint16
	log         logging.Logger
	metrics     *metrics.Registry
	pool        *control.CallbackPool
	worker      *dataplane.Worker
	basePriority int

	controlLoop *control.Loop

	mu         sync.Mutex
	started    bool
	waveforms  []*Waveform
	runErr     chan error
}

// New creates a Radio targeting addr (host:controlPort is derived from cfg
// if addr is empty). infoClass is the radio's VITA-49 information class
// (spec §6); log and reg may be nil.
func New(addr string, infoClass uint16, cfg config.Config, log logging.Logger, reg *metrics.Registry) *Radio {
	if log == nil {
		log = logging.Discard
	}
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Radio.Host, cfg.Radio.ControlPort)
	}

	callbackWorkers := cfg.Worker.CallbackWorkers
	if callbackWorkers <= 0 {
		callbackWorkers = runtime.NumCPU()
	}

	return &Radio{
		addr:         addr,
		cfg:          cfg,
		infoClass:    infoClass,
		log:          log,
		metrics:      reg,
		pool:         control.NewCallbackPool(callbackWorkers),
		worker:       dataplane.NewWorker(),
		basePriority: 50,
		runErr:       make(chan error, 1),
	}
}

func (r *Radio) classCheck() vita.ClassCheck {
	return vita.ClassCheck{OUI: RadioOUI, InformationClass: r.infoClass}
}

// CreateWaveform registers a new Waveform on this radio (spec §3, §4.9).
// Mutation must occur before Start; doing so afterward is accepted but its
// effect on an already-running control loop is undefined (spec §4.9).
func (r *Radio) CreateWaveform(fullName, shortName, underlyingMode, version string) (*Waveform, error) {
	wf, err := newWaveform(r, fullName, shortName, underlyingMode, version)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		r.log.Log(logging.LevelWarn, "radio: waveform created after start; behavior is undefined", "waveform", shortName)
	}
	r.waveforms = append(r.waveforms, wf)
	return wf, nil
}

func (r *Radio) waveformsSnapshot() []*Waveform {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Waveform(nil), r.waveforms...)
}

// --- control.StatusHandler: built-in status side effects (spec §4.6) ---

func (r *Radio) HandleStatus(tokens []string) {
	if len(tokens) == 0 {
		return
	}

	switch tokens[0] {
	case "slice":
		if len(tokens) < 2 {
			return
		}
		sliceNum, err := strconv.Atoi(tokens[1])
		if err != nil {
			return
		}
		mode := control.FindKwarg(tokens, "mode")
		if mode == "absent" {
			return
		}
		for _, wf := range r.waveformsSnapshot() {
			wf.slice.HandleSliceStatus(sliceNum, mode)
		}

	case "interlock":
		state := control.FindKwarg(tokens, "state")
		for _, wf := range r.waveformsSnapshot() {
			switch state {
			case "PTT_REQUESTED":
				wf.slice.HandlePTTRequested()
			case "UNKEY_REQUESTED":
				wf.slice.HandleUnkeyRequested()
			}
		}
	}
}

// --- control.Dispatcher: user callback fanout (spec §4.5) ---

func (r *Radio) DispatchStatus(tokens []string) {
	for _, wf := range r.waveformsSnapshot() {
		wf.dispatchStatus(tokens)
	}
}

func (r *Radio) DispatchCommand(tokens []string) (status int, handled bool) {
	// Body grammar: <subsystem> <slice> <verb> [args...] (spec §4.5).
	if len(tokens) < 3 {
		return 0, false
	}
	sliceNum, err := strconv.Atoi(tokens[1])
	if err != nil {
		return 0, false
	}
	verb := tokens[2]

	for _, wf := range r.waveformsSnapshot() {
		active, activeSlice := wf.ActiveSlice()
		if !active || activeSlice != sliceNum {
			continue
		}
		if s, ok := wf.dispatchCommand(verb, tokens); ok {
			status, handled = s, true
		}
	}
	return status, handled
}

// Start dials the control connection, runs the on-connect choreography
// (spec §4.5 item 2), and starts the read loop in the background.
func (r *Radio) Start(ctx context.Context) error {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	loop, err := control.Dial(ctx, r.addr, control.DialConfig{
		Connect:    r.cfg.Timeouts.Connect,
		Retry:      r.cfg.Timeouts.Retry,
		MaxRetries: r.cfg.Timeouts.MaxRetries,
	}, r, r, r.pool, r.log, r.metrics)
	if err != nil {
		return fmt.Errorf("radio: start: %w", err)
	}
	r.controlLoop = loop

	go func() { r.runErr <- loop.Run() }()

	if err := r.subscribe(); err != nil {
		return err
	}

	for _, wf := range r.waveformsSnapshot() {
		if err := r.initWaveform(wf); err != nil {
			return err
		}
	}

	return nil
}

func (r *Radio) subscribe() error {
	for _, cmd := range []string{"sub slice all", "sub radio all", "sub client all"} {
		if err := r.controlLoop.SendCommand(cmd); err != nil {
			return fmt.Errorf("radio: subscribe: %w", err)
		}
	}
	return nil
}

func (r *Radio) initWaveform(wf *Waveform) error {
	createCmd := fmt.Sprintf("waveform create name=%s mode=%s underlying_mode=%s version=%s",
		wf.FullName, wf.ShortName, wf.UnderlyingMode, wf.Version)

	done := make(chan error, 1)
	_, err := r.controlLoop.SendWithCallback(createCmd, func(code uint32, message string) {
		if code != 0 {
			done <- fmt.Errorf("radio: waveform create failed: code=%x message=%s", code, message)
			return
		}
		ids, parseErr := parseStreamIDs(message)
		if parseErr != nil {
			done <- parseErr
			return
		}
		wf.setStreamIDs(ids)
		done <- nil
	}, nil)
	if err != nil {
		return err
	}
	if err := <-done; err != nil {
		return err
	}

	for _, cmd := range []string{
		fmt.Sprintf("waveform set %s tx=1", wf.ShortName),
		fmt.Sprintf("waveform set %s rx_filter depth=%d", wf.ShortName, wf.RXFilterDepth),
		fmt.Sprintf("waveform set %s tx_filter depth=%d", wf.ShortName, wf.TXFilterDepth),
	} {
		if err := r.controlLoop.SendCommand(cmd); err != nil {
			return err
		}
	}

	return r.createMeters(wf)
}

// parseStreamIDs decodes the "waveform create" response body into
// StreamIDs. The response is a space-separated key=value blob.
func parseStreamIDs(message string) (StreamIDs, error) {
	tokens := strings.Fields(message)
	var ids StreamIDs
	for key, dst := range map[string]*uint32{
		"tx_stream_in":  &ids.TxAudioIn,
		"tx_stream_out": &ids.TxAudioOut,
		"rx_stream_in":  &ids.RxAudioIn,
		"rx_stream_out": &ids.RxAudioOut,
		"byte_stream_in":  &ids.ByteIn,
		"byte_stream_out": &ids.ByteOut,
	} {
		v, ok := control.FindKwargAsInt(tokens, key)
		if !ok {
			continue // a radio may omit streams this waveform doesn't use
		}
		*dst = uint32(v)
	}
	return ids, nil
}

func (r *Radio) createMeters(wf *Waveform) error {
	for name, m := range wf.Meters.Snapshot() {
		name := name
		cmd := fmt.Sprintf("meter create name=%s type=WAVEFORM min=%v max=%v unit=%s fps=20",
			name, m.Min, m.Max, m.Unit)

		done := make(chan error, 1)
		_, err := r.controlLoop.SendWithCallback(cmd, func(code uint32, message string) {
			if code != 0 {
				done <- fmt.Errorf("radio: meter create %s failed: code=%x", name, code)
				return
			}
			id, parseErr := strconv.ParseUint(message, 10, 16)
			if parseErr != nil || id > 65535 {
				done <- wf.Meters.Unregister(name)
				return
			}
			done <- wf.Meters.BindID(name, uint16(id))
		}, nil)
		if err != nil {
			return err
		}
		if err := <-done; err != nil {
			return err
		}
	}
	return nil
}

// Wait blocks until the control-plane loop exits and returns its error, if
// any (spec §3's Radio lifecycle: created, started, waited on, destroyed).
func (r *Radio) Wait() error {
	return <-r.runErr
}

// Destroy stops the data worker first, then tears down every waveform's
// data plane (receive loop, then socket), then the control connection
// (spec §5's shutdown order).
func (r *Radio) Destroy() {
	r.worker.Stop()
	for _, wf := range r.waveformsSnapshot() {
		_ = wf.deactivateDataPlane()
	}
	if r.controlLoop != nil {
		r.controlLoop.Stop()
	}
}
