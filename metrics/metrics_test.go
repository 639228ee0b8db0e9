package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Collector, labels map[string]string) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		if labels == nil {
			return pb.GetCounter().GetValue()
		}
		match := true
		for _, lp := range pb.Label {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return pb.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRegistryIncrementsLabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.DroppedPacket("malformed_frame")
	r.DroppedPacket("malformed_frame")
	r.TransportError("control")
	r.ContractViolation("meter_overflow")
	r.CommandEmitted()

	require.Equal(t, float64(2), counterValue(t, r.packetsDropped, map[string]string{"reason": "malformed_frame"}))
	require.Equal(t, float64(1), counterValue(t, r.transportErrors, map[string]string{"channel": "control"}))
	require.Equal(t, float64(1), counterValue(t, r.contractErrors, map[string]string{"kind": "meter_overflow"}))
	require.Equal(t, float64(1), counterValue(t, r.sequenceEmitted, nil))
}

func TestRegistryWithoutRegistererStillUsable(t *testing.T) {
	r := New(nil)
	r.DroppedPacket("x")
	require.Equal(t, float64(1), counterValue(t, r.packetsDropped, map[string]string{"reason": "x"}))
}

func TestNilRegistryMethodsAreNoOps(t *testing.T) {
	var r *Registry
	r.DroppedPacket("x")
	r.TransportError("x")
	r.ContractViolation("x")
	r.SetQueueDepth("x", 1)
	r.CommandEmitted()
}

func TestSetQueueDepthSetsGauge(t *testing.T) {
	r := New(nil)
	r.SetQueueDepth("data", 5)

	ch := make(chan prometheus.Metric, 16)
	r.workerQueueDepth.Collect(ch)
	close(ch)
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		require.Equal(t, float64(5), pb.GetGauge().GetValue())
	}
}
