package ring

import (
	"context"
	"fmt"

	"github.com/distsys-lab/chordring/internal/chordid"
)

// ErrAlreadyLeft is returned by Leave when the peer has already left.
var ErrAlreadyLeft = fmt.Errorf("peer has already left the ring")

// ErrJoinSelf is returned by Join when the bootstrap address is this
// peer's own address.
var ErrJoinSelf = fmt.Errorf("cannot join via self")

// ErrCollision is returned by Join when the resolved successor shares
// this peer's identifier (a re-join of the same address).
var ErrCollision = fmt.Errorf("successor identifier collides with this node")

// ErrNotCrashed is returned by RecoverNode when the peer is not
// currently crashed.
var ErrNotCrashed = fmt.Errorf("peer is not crashed")

// Join attaches this peer to the ring through bootstrapAddr: find_successor
// is used to locate the correct successor, predecessor is cleared (it
// will be repopulated by notify), and the full finger table is
// initialized before returning.
func (p *Peer) Join(ctx context.Context, bootstrapAddr string) error {
	if bootstrapAddr == p.address {
		return ErrJoinSelf
	}

	p.joinedVia.Store(bootstrapAddr)
	p.hasLeft.Store(false)

	successor, err := p.transport.FindSuccessor(ctx, bootstrapAddr, p.nodeID)
	if err != nil {
		p.recordFailure("find_successor")
		return fmt.Errorf("join: find_successor via %s: %w", bootstrapAddr, err)
	}
	if successor.NodeID == p.nodeID {
		return ErrCollision
	}

	p.setSuccessorRef(successor)
	p.predecessor.storeNil()

	if err := p.transport.Notify(ctx, successor.NodeAddress, p.Self()); err != nil {
		if p.log != nil {
			p.log.Warnw("join: notify failed", "successor", successor.NodeAddress, "error", err)
		}
		p.recordFailure("notify")
	}

	p.Stabilize(ctx)
	p.initFingerTable(ctx)
	return nil
}

// initFingerTable resolves every finger table entry by calling
// find_successor for each (node_id + 2^i) mod HashSpace, i in 0..M-1.
// Index 0 is the direct successor finger; see the design's note on the
// original 1-based-cursor-vs-0-based-index mismatch.
func (p *Peer) initFingerTable(ctx context.Context) {
	for i := 0; i < chordid.M; i++ {
		target := (p.nodeID + (1 << uint(i))) % chordid.HashSpace
		resolved := p.FindSuccessor(ctx, target)
		p.SetFinger(i, resolved)
	}
}

// Leave gracefully removes this peer from the ring: predecessor and
// successor are spliced together, backup is captured for a future
// recovery, and local ring state resets to the loner configuration.
// Keys held in data are not migrated; see the design's documented loss.
func (p *Peer) Leave(ctx context.Context) error {
	if p.hasLeft.Load() {
		return ErrAlreadyLeft
	}

	pred := p.Predecessor()
	succ := p.Successor()

	if pred != nil {
		p.backup.Store(pred.NodeAddress)
	}
	p.hasLeft.Store(true)

	if pred != nil && succ.NodeAddress != p.address {
		if err := p.transport.UpdateSuccessor(ctx, pred.NodeAddress, succ.NodeAddress); err != nil {
			if p.log != nil {
				p.log.Warnw("leave: failed to update predecessor's successor", "predecessor", pred.NodeAddress, "error", err)
			}
			p.recordFailure("update_successor")
		}
	}
	if succ.NodeAddress != p.address {
		var predAddr *string
		if pred != nil {
			a := pred.NodeAddress
			predAddr = &a
		}
		if err := p.transport.UpdatePredecessor(ctx, succ.NodeAddress, predAddr); err != nil {
			if p.log != nil {
				p.log.Warnw("leave: failed to update successor's predecessor", "successor", succ.NodeAddress, "error", err)
			}
			p.recordFailure("update_predecessor")
		}
	}

	p.resetToLoner()
	return nil
}

// CrashNode simulates a crash: ring state resets to the loner
// configuration with no neighbor notification (neighbors discover the
// crash via check_predecessor/stabilize), and backup is refreshed from
// the current predecessor unconditionally. The original source only
// refreshed backup when it was already set, which the design flags as
// an inversion; this implementation always refreshes it so recovery
// has the best available fallback bootstrap.
func (p *Peer) CrashNode() {
	if pred := p.Predecessor(); pred != nil {
		p.backup.Store(pred.NodeAddress)
	}
	p.crashed.Store(true)
	p.resetToLoner()
}

// RecoverNode clears the crashed flag and attempts to rejoin via
// joined_via_node first, falling back to backup, reporting failure if
// neither both answers a health probe and accepts the rejoin.
func (p *Peer) RecoverNode(ctx context.Context) error {
	if !p.crashed.Load() {
		return ErrNotCrashed
	}
	p.crashed.Store(false)

	for _, candidate := range []string{p.joinedVia.Load(), p.backup.Load()} {
		if candidate == "" {
			continue
		}
		if alive, err := p.transport.Ping(ctx, candidate); err != nil || !alive {
			p.recordFailure("ping")
			continue
		}
		if err := p.Join(ctx, candidate); err == nil {
			return nil
		}
	}

	// recovery failed: stay in the crashed state so the caller can
	// report "failed" rather than silently leaving a half-recovered peer.
	p.crashed.Store(true)
	return fmt.Errorf("recover: no rejoin via joined_via_node or backup succeeded")
}

// resetToLoner restores the loner state shared by Leave and CrashNode:
// predecessor unknown, successor self, finger table full of self.
func (p *Peer) resetToLoner() {
	self := p.Self()
	p.setSuccessorRef(self)
	p.predecessor.storeNil()
	for i := range p.fingers {
		p.fingers[i].store(self)
	}
}
