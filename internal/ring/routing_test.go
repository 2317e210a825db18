package ring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPeer builds a Peer with an explicit identifier, bypassing the
// address hash so ring-order fixtures are deterministic.
func newTestPeer(addr string, id int) *Peer {
	p := &Peer{address: addr, nodeID: id}
	p.next.Store(1)
	self := p.Self()
	p.successor.store(self)
	p.predecessor.storeNil()
	for i := range p.fingers {
		p.fingers[i].store(self)
	}
	return p
}

// wireRing links four peers address:A(10) -> B(20) -> C(30) -> D(40) -> A
// as successors, with every finger table entry pointing at the
// immediate successor so lookups must hop node-by-node.
func wireRing(t *testing.T) (a, b, c, d *Peer, tr *fakeTransport) {
	t.Helper()
	a = newTestPeer("A", 10)
	b = newTestPeer("B", 20)
	c = newTestPeer("C", 30)
	d = newTestPeer("D", 40)

	tr = newFakeTransport()
	tr.Register(a)
	tr.Register(b)
	tr.Register(c)
	tr.Register(d)

	link := func(p, succ *Peer) {
		p.setSuccessorRef(succ.Self())
		for i := range p.fingers {
			p.fingers[i].store(succ.Self())
		}
	}
	link(a, b)
	link(b, c)
	link(c, d)
	link(d, a)
	return
}

func TestFindSuccessor_ImmediateSuccessor(t *testing.T) {
	a, b, _, _, _ := wireRing(t)
	got := a.FindSuccessor(context.Background(), 15)
	assert.Equal(t, b.Address(), got.NodeAddress)
}

func TestFindSuccessor_ExactMatchIsOwner(t *testing.T) {
	_, _, c, d, _ := wireRing(t)
	got := c.FindSuccessor(context.Background(), 40)
	assert.Equal(t, d.Address(), got.NodeAddress)
}

func TestFindSuccessor_MultiHopWrapsAround(t *testing.T) {
	a, _, _, _, _ := wireRing(t)
	// 5 precedes every node; the successor is the smallest id that
	// wraps around past D back to A.
	got := a.FindSuccessor(context.Background(), 5)
	assert.Equal(t, a.Address(), got.NodeAddress)
}

func TestFindSuccessor_DegradesToSuccessorOnRemoteFailure(t *testing.T) {
	a, _, _, d, tr := wireRing(t)
	tr.SetDown(d.Address(), true)

	// Resolving key 5 from A hops A -> B -> C -> D; D is down, so C's
	// remote call fails and C degrades to its own (stale) successor
	// reference instead of propagating the RPC error up the chain.
	got := a.FindSuccessor(context.Background(), 5)
	assert.Equal(t, d.Address(), got.NodeAddress)
}

func TestClosestPrecedingFinger(t *testing.T) {
	a, b, c, _, _ := wireRing(t)

	f, ok := a.closestPrecedingFinger(25)
	require.True(t, ok)
	assert.Equal(t, b.Self(), f)

	_, ok = c.closestPrecedingFinger(35)
	assert.False(t, ok, "d's id does not lie in the open arc (c.id, 35)")
}
