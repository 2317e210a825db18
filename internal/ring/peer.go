// Package ring implements Chord ring state, routing, maintenance and
// lifecycle for a single peer. It knows nothing about HTTP; all
// cross-peer interaction goes through the Transport interface so the
// package never holds a live handle to another process.
package ring

import (
	"sync"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/distsys-lab/chordring/internal/chordid"
	"github.com/distsys-lab/chordring/internal/telemetry"
	"github.com/distsys-lab/chordring/internal/wire"
)

// Peer is one Chord node's local state. All cross-field consistency
// requirements in the design are per-field: each accessor/mutator pair
// below installs or reads one field atomically, never all of them
// under one lock, since RPCs performed while computing a new value
// must not block unrelated readers.
type Peer struct {
	address string
	nodeID  int

	successor   atomicRef // wire.NodeRef, never nil
	predecessor atomicRef // *wire.NodeRef, nil means unknown

	fingers [chordid.M]atomicRef // each wire.NodeRef

	data sync.Map // string -> string

	next    uatomic.Int32
	crashed uatomic.Bool
	hasLeft uatomic.Bool

	joinedVia uatomic.String
	backup    uatomic.String

	transport Transport
	log       *zap.SugaredLogger
	metrics   *telemetry.Metrics
}

// New creates a fresh peer for address, in the "alone" state: its own
// successor, no predecessor, finger table full of self.
func New(address string, log *zap.SugaredLogger) *Peer {
	p := &Peer{
		address: address,
		nodeID:  chordid.Hash(address),
		log:     log,
	}
	p.next.Store(1)
	self := p.Self()
	p.successor.store(self)
	p.predecessor.storeNil()
	for i := range p.fingers {
		p.fingers[i].store(self)
	}
	return p
}

// SetTransport wires the RPC implementation in after construction,
// mirroring the teacher's two-phase Node/HTTPTransport wiring (the
// transport's mux handlers need a *Peer and the peer needs a
// Transport, so one must be set after the other is built).
func (p *Peer) SetTransport(t Transport) { p.transport = t }

// SetMetrics wires the prometheus collector bundle in after
// construction, same two-phase pattern as SetTransport. Nil-safe: a
// peer with no metrics set simply skips every recording call, which
// keeps the ring package usable from tests with no registry at hand.
func (p *Peer) SetMetrics(m *telemetry.Metrics) { p.metrics = m }

// recordFailure increments the outbound-RPC-failure counter for
// method, a no-op when no metrics are wired.
func (p *Peer) recordFailure(method string) {
	if p.metrics == nil {
		return
	}
	p.metrics.RPCFailuresTotal.WithLabelValues(method).Inc()
}

// recordMaintenanceRun increments the completed-tick counter for
// task, a no-op when no metrics are wired.
func (p *Peer) recordMaintenanceRun(task string) {
	if p.metrics == nil {
		return
	}
	p.metrics.MaintenanceRuns.WithLabelValues(task).Inc()
}

// recordRingSize publishes the known-peer gauge, a no-op when no
// metrics are wired.
func (p *Peer) recordRingSize(n int) {
	if p.metrics == nil {
		return
	}
	p.metrics.RingSize.Set(float64(n))
}

// Address returns the peer's immutable host:port.
func (p *Peer) Address() string { return p.address }

// ID returns the peer's immutable identifier.
func (p *Peer) ID() int { return p.nodeID }

// Self returns this peer as a NodeRef.
func (p *Peer) Self() wire.NodeRef {
	return wire.NodeRef{NodeID: p.nodeID, NodeAddress: p.address}
}

// Successor returns the current successor reference.
func (p *Peer) Successor() wire.NodeRef { return p.successor.load() }

// SetSuccessor installs a new successor by address.
func (p *Peer) SetSuccessor(addr string) {
	p.successor.store(wire.NodeRef{NodeID: chordid.Hash(addr), NodeAddress: addr})
}

// setSuccessorRef installs an already-resolved NodeRef.
func (p *Peer) setSuccessorRef(n wire.NodeRef) { p.successor.store(n) }

// Predecessor returns the current predecessor, or nil if unknown.
func (p *Peer) Predecessor() *wire.NodeRef { return p.predecessor.loadPtr() }

// SetPredecessor installs a new predecessor by address, or clears it
// when addr is empty.
func (p *Peer) SetPredecessor(addr string) {
	if addr == "" {
		p.predecessor.storeNil()
		return
	}
	ref := wire.NodeRef{NodeID: chordid.Hash(addr), NodeAddress: addr}
	p.predecessor.storePtr(&ref)
}

func (p *Peer) setPredecessorRef(n *wire.NodeRef) {
	if n == nil {
		p.predecessor.storeNil()
		return
	}
	cp := *n
	p.predecessor.storePtr(&cp)
}

// Finger returns the i-th finger table entry (0-indexed).
func (p *Peer) Finger(i int) wire.NodeRef { return p.fingers[i].load() }

// SetFinger installs the i-th finger table entry.
func (p *Peer) SetFinger(i int, n wire.NodeRef) { p.fingers[i].store(n) }

// FingerAddresses returns every finger table entry's address in
// table order (may contain duplicates; callers that need the
// deduplicated "others" set should use Others()).
func (p *Peer) FingerAddresses() []string {
	out := make([]string, chordid.M)
	for i := range p.fingers {
		out[i] = p.fingers[i].load().NodeAddress
	}
	return out
}

// Others returns the de-duplicated union of the predecessor's address
// (if any) and every finger table entry's address, per the node-info
// wire contract in the external interfaces table.
func (p *Peer) Others() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	if pred := p.Predecessor(); pred != nil {
		add(pred.NodeAddress)
	}
	for i := range p.fingers {
		add(p.fingers[i].load().NodeAddress)
	}
	return out
}

// NextCursor returns the current 1..M fix_fingers cursor.
func (p *Peer) NextCursor() int { return int(p.next.Load()) }

// AdvanceCursor advances the fix_fingers cursor with wrap from M back to 1.
func (p *Peer) AdvanceCursor() {
	for {
		cur := p.next.Load()
		next := cur + 1
		if next > chordid.M {
			next = 1
		}
		if p.next.CAS(cur, next) {
			return
		}
	}
}

// Crashed reports whether the peer is currently simulating a crash.
func (p *Peer) Crashed() bool { return p.crashed.Load() }

// HasLeft reports whether the peer has gracefully left the ring.
func (p *Peer) HasLeft() bool { return p.hasLeft.Load() }

// Get reads a locally-held key.
func (p *Peer) Get(key string) (string, bool) {
	v, ok := p.data.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Put writes a key locally.
func (p *Peer) Put(key, value string) { p.data.Store(key, value) }

// atomicRef stores a wire.NodeRef (or, for predecessor, *wire.NodeRef)
// behind a single atomic.Value so reads never observe a torn struct.
type atomicRef struct {
	v uatomic.Value
}

func (r *atomicRef) store(n wire.NodeRef) { r.v.Store(n) }

func (r *atomicRef) load() wire.NodeRef {
	v := r.v.Load()
	if v == nil {
		return wire.NodeRef{}
	}
	return v.(wire.NodeRef)
}

func (r *atomicRef) storePtr(n *wire.NodeRef) { r.v.Store(n) }

func (r *atomicRef) storeNil() { r.v.Store((*wire.NodeRef)(nil)) }

func (r *atomicRef) loadPtr() *wire.NodeRef {
	v := r.v.Load()
	if v == nil {
		return nil
	}
	return v.(*wire.NodeRef)
}
