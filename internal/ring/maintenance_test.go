package ring

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/distsys-lab/chordring/internal/telemetry"
)

// TestStabilize_SkipsDeadAndLeftFingersWhenSuccessorDies wires a ring
// where a's immediate successor is down and the next finger entry has
// gracefully left; stabilize must skip both and land on the first
// entry that actually answers a ping.
func TestStabilize_SkipsDeadAndLeftFingersWhenSuccessorDies(t *testing.T) {
	ctx := context.Background()
	a := newTestPeer("A", 10)
	b := newTestPeer("B", 20)
	c := newTestPeer("C", 30)
	d := newTestPeer("D", 40)

	tr := newFakeTransport()
	tr.Register(a)
	tr.Register(b)
	tr.Register(c)
	tr.Register(d)

	a.setSuccessorRef(b.Self())
	for i := range a.fingers {
		a.fingers[i].store(b.Self())
	}
	a.fingers[1].store(c.Self())
	a.fingers[2].store(d.Self())

	tr.SetDown(b.Address(), true)
	c.hasLeft.Store(true)

	a.Stabilize(ctx)
	assert.Equal(t, d.Address(), a.Successor().NodeAddress, "dead successor and left finger must both be skipped")
}

// TestStabilize_FallsBackToSelfWhenEveryFingerIsDown covers the case
// where no finger candidate answers: the peer must become its own
// successor rather than adopt a dead address.
func TestStabilize_FallsBackToSelfWhenEveryFingerIsDown(t *testing.T) {
	ctx := context.Background()
	a := newTestPeer("A", 10)
	b := newTestPeer("B", 20)

	tr := newFakeTransport()
	tr.Register(a)
	tr.Register(b)

	a.setSuccessorRef(b.Self())
	for i := range a.fingers {
		a.fingers[i].store(b.Self())
	}
	tr.SetDown(b.Address(), true)

	a.Stabilize(ctx)
	assert.Equal(t, a.Address(), a.Successor().NodeAddress)
}

// TestMaintenanceTicks_IncrementMetrics confirms each of the three
// maintenance tasks records a completed tick, and a failed probe
// records an RPC failure, against an isolated registry.
func TestMaintenanceTicks_IncrementMetrics(t *testing.T) {
	ctx := context.Background()
	a := newTestPeer("A", 10)
	b := newTestPeer("B", 20)

	tr := newFakeTransport()
	tr.Register(a)
	tr.Register(b)

	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	a.SetMetrics(metrics)

	a.setSuccessorRef(b.Self())
	a.setPredecessorRef(ptr(b.Self()))

	a.Stabilize(ctx)
	a.FixFingers(ctx)
	a.CheckPredecessor(ctx)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues("stabilize")), "FixFingers' internal Stabilize call plus the direct one")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues("fix_fingers")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.MaintenanceRuns.WithLabelValues("check_predecessor")))

	tr.SetDown(b.Address(), true)
	a.CheckPredecessor(ctx)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RPCFailuresTotal.WithLabelValues("ping")))
}
