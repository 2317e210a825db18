package ring

import (
	"context"

	"github.com/distsys-lab/chordring/internal/chordid"
	"github.com/distsys-lab/chordring/internal/wire"
)

// FindSuccessor resolves the successor of keyID: the live peer whose
// identifier is the smallest identifier clockwise-equal-or-after keyID.
//
// Steps, matching the design exactly:
//  1. If keyID is in (node_id, successor.node_id], the immediate
//     successor is the answer.
//  2. Otherwise scan the finger table from the highest index down and
//     take the first entry in the open arc (node_id, keyID).
//  3. No qualifying finger: fall back to the successor (also the
//     termination case for a lone peer).
//  4. A qualifying finger that is self: fall back to the successor.
//  5. Otherwise issue one remote find_successor hop; on failure,
//     degrade to the current successor rather than propagate the error.
func (p *Peer) FindSuccessor(ctx context.Context, keyID int) wire.NodeRef {
	succ := p.Successor()
	if chordid.InLeftOpenRightClosed(keyID, p.nodeID, succ.NodeID) {
		return succ
	}

	finger, ok := p.closestPrecedingFinger(keyID)
	if !ok {
		return succ
	}
	if finger.NodeAddress == p.address {
		return succ
	}

	remote, err := p.transport.FindSuccessor(ctx, finger.NodeAddress, keyID)
	if err != nil {
		if p.log != nil {
			p.log.Warnw("find_successor RPC failed, degrading to current successor",
				"target", finger.NodeAddress, "error", err)
		}
		return p.Successor()
	}
	return remote
}

// closestPrecedingFinger scans the finger table from the highest index
// down and returns the first entry in the open arc (node_id, keyID).
// Ties are broken by the scan order itself: the highest qualifying
// index always wins because it is examined first.
func (p *Peer) closestPrecedingFinger(keyID int) (wire.NodeRef, bool) {
	for i := chordid.M - 1; i >= 0; i-- {
		f := p.fingers[i].load()
		if chordid.InOpen(f.NodeID, p.nodeID, keyID) {
			return f, true
		}
	}
	return wire.NodeRef{}, false
}
