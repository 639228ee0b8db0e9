// Package metrics exposes Prometheus counters for the events the core's
// error taxonomy (spec §7) distinguishes: transport-fatal errors, dropped
// protocol-non-fatal packets, and contract violations, plus gauges for queue
// depth. Registration is nil-safe so embedding applications that don't run a
// Prometheus registry pay no cost.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the set of collectors the core updates. A nil *Registry is a
// no-op: every method checks for it and returns immediately.
type Registry struct {
	packetsDropped   *prometheus.CounterVec
	transportErrors  *prometheus.CounterVec
	contractErrors   *prometheus.CounterVec
	workerQueueDepth *prometheus.GaugeVec
	sequenceEmitted  prometheus.Counter
}

// New builds a Registry and, if reg is non-nil, registers every collector
// with it. reg may be nil to construct collectors without exporting them
// (tests, or embedders who only want in-process counters).
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		packetsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "packets_dropped_total",
			Help:      "VITA-49 packets dropped by the data-plane loop, by reason.",
		}, []string{"reason"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "transport_errors_total",
			Help:      "Fatal transport errors on the control or data channel.",
		}, []string{"channel"}),
		contractErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "contract_violations_total",
			Help:      "User contract violations rejected before any wire output.",
		}, []string{"kind"}),
		workerQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcore",
			Name:      "worker_queue_depth",
			Help:      "Pending items in a worker queue.",
		}, []string{"queue"}),
		sequenceEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wfcore",
			Name:      "command_sequence_emitted_total",
			Help:      "Control-plane commands emitted with an allocated sequence number.",
		}),
	}

	if reg != nil {
		reg.MustRegister(r.packetsDropped, r.transportErrors, r.contractErrors, r.workerQueueDepth, r.sequenceEmitted)
	}

	return r
}

func (r *Registry) DroppedPacket(reason string) {
	if r == nil {
		return
	}
	r.packetsDropped.WithLabelValues(reason).Inc()
}

func (r *Registry) TransportError(channel string) {
	if r == nil {
		return
	}
	r.transportErrors.WithLabelValues(channel).Inc()
}

func (r *Registry) ContractViolation(kind string) {
	if r == nil {
		return
	}
	r.contractErrors.WithLabelValues(kind).Inc()
}

func (r *Registry) SetQueueDepth(queue string, depth int) {
	if r == nil {
		return
	}
	r.workerQueueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (r *Registry) CommandEmitted() {
	if r == nil {
		return
	}
	r.sequenceEmitted.Inc()
}
