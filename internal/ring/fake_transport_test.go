package ring

import (
	"context"
	"fmt"

	"github.com/distsys-lab/chordring/internal/wire"
)

// fakeTransport routes RPCs directly to in-process Peer objects keyed
// by address, so routing and lifecycle behavior can be exercised
// without any HTTP server. Peers register themselves with Register
// before any call that would reach them.
type fakeTransport struct {
	peers map[string]*Peer
	down  map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{peers: make(map[string]*Peer), down: make(map[string]bool)}
}

func (t *fakeTransport) Register(p *Peer) {
	t.peers[p.Address()] = p
	p.SetTransport(t)
}

func (t *fakeTransport) SetDown(addr string, down bool) { t.down[addr] = down }

func (t *fakeTransport) resolve(addr string) (*Peer, error) {
	if t.down[addr] {
		return nil, fmt.Errorf("fake transport: %s is down", addr)
	}
	p, ok := t.peers[addr]
	if !ok {
		return nil, fmt.Errorf("fake transport: unknown address %s", addr)
	}
	return p, nil
}

func (t *fakeTransport) Ping(ctx context.Context, addr string) (bool, error) {
	p, err := t.resolve(addr)
	if err != nil {
		return false, err
	}
	if p.Crashed() || p.HasLeft() {
		return false, nil
	}
	return true, nil
}

func (t *fakeTransport) GetPredecessor(ctx context.Context, addr string) (*wire.NodeRef, error) {
	p, err := t.resolve(addr)
	if err != nil {
		return nil, err
	}
	return p.Predecessor(), nil
}

func (t *fakeTransport) Notify(ctx context.Context, addr string, candidate wire.NodeRef) error {
	p, err := t.resolve(addr)
	if err != nil {
		return err
	}
	p.Notify(candidate)
	return nil
}

func (t *fakeTransport) FindSuccessor(ctx context.Context, addr string, keyID int) (wire.NodeRef, error) {
	p, err := t.resolve(addr)
	if err != nil {
		return wire.NodeRef{}, err
	}
	return p.FindSuccessor(ctx, keyID), nil
}

func (t *fakeTransport) UpdateSuccessor(ctx context.Context, addr string, successorAddr string) error {
	p, err := t.resolve(addr)
	if err != nil {
		return err
	}
	p.SetSuccessor(successorAddr)
	return nil
}

func (t *fakeTransport) UpdatePredecessor(ctx context.Context, addr string, predecessorAddr *string) error {
	p, err := t.resolve(addr)
	if err != nil {
		return err
	}
	if predecessorAddr == nil {
		p.SetPredecessor("")
	} else {
		p.SetPredecessor(*predecessorAddr)
	}
	return nil
}

func (t *fakeTransport) NodeInfo(ctx context.Context, addr string) (int, error) {
	p, err := t.resolve(addr)
	if err != nil {
		return 0, err
	}
	if p.Crashed() || p.HasLeft() {
		return 0, fmt.Errorf("fake transport: %s unavailable", addr)
	}
	return p.ID(), nil
}
