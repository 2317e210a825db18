package ring

import (
	"context"
	"time"

	"github.com/distsys-lab/chordring/internal/chordid"
	"github.com/distsys-lab/chordring/internal/wire"
)

// Maintenance periods, per the design.
const (
	StabilizePeriod        = 7 * time.Second
	FixFingersPeriod       = 3 * time.Second
	CheckPredecessorPeriod = 5 * time.Second
)

// RunMaintenance runs the three periodic tasks until ctx is canceled.
// Each runs on its own ticker so the periods in the design stay
// independent; all three are guarded so nothing runs while the peer
// is crashed.
func (p *Peer) RunMaintenance(ctx context.Context) {
	stabilizeT := time.NewTicker(StabilizePeriod)
	fixFingersT := time.NewTicker(FixFingersPeriod)
	checkPredT := time.NewTicker(CheckPredecessorPeriod)
	defer stabilizeT.Stop()
	defer fixFingersT.Stop()
	defer checkPredT.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stabilizeT.C:
			if !p.Crashed() {
				p.Stabilize(ctx)
			}
		case <-fixFingersT.C:
			if !p.Crashed() {
				p.FixFingers(ctx)
			}
		case <-checkPredT.C:
			if !p.Crashed() {
				p.CheckPredecessor(ctx)
			}
		}
	}
}

// Stabilize verifies the successor is alive and correctly positioned,
// then notifies it of this peer's existence so joins propagate.
func (p *Peer) Stabilize(ctx context.Context) {
	defer p.recordMaintenanceRun("stabilize")

	succ := p.Successor()

	if succ.NodeAddress != p.address {
		alive, err := p.transport.Ping(ctx, succ.NodeAddress)
		if err != nil || !alive {
			if p.log != nil {
				p.log.Warnw("stabilize: successor unresponsive, searching finger table", "successor", succ.NodeAddress, "error", err)
			}
			p.recordFailure("ping")
			p.replaceDeadSuccessor(ctx)
			succ = p.Successor()
		}
	}

	if succ.NodeAddress != p.address {
		x, err := p.transport.GetPredecessor(ctx, succ.NodeAddress)
		if err != nil {
			if p.log != nil {
				p.log.Warnw("stabilize: failed to query successor's predecessor", "successor", succ.NodeAddress, "error", err)
			}
			p.recordFailure("get_predecessor")
		} else if x != nil && chordid.InOpen(x.NodeID, p.nodeID, succ.NodeID) {
			p.setSuccessorRef(*x)
			succ = *x
		}
	}

	p.recordRingSize(len(p.Others()))

	if succ.NodeAddress == p.address {
		return
	}
	if err := p.transport.Notify(ctx, succ.NodeAddress, p.Self()); err != nil {
		if p.log != nil {
			p.log.Warnw("stabilize: notify failed", "successor", succ.NodeAddress, "error", err)
		}
		p.recordFailure("notify")
	}
}

// replaceDeadSuccessor probes each finger table entry in order and
// adopts the first one that answers a liveness ping, mirroring the
// original source's _find_next_active_node: a crashed or departed peer
// is refused by its own crash middleware on every route including
// /ping, so a failed or negative probe here already covers both "dead"
// and "has_left" in one check. Falls back to self if nothing answers.
func (p *Peer) replaceDeadSuccessor(ctx context.Context) {
	for i := 0; i < chordid.M; i++ {
		f := p.fingers[i].load()
		if f.NodeAddress == "" {
			continue
		}
		alive, err := p.transport.Ping(ctx, f.NodeAddress)
		if err != nil || !alive {
			p.recordFailure("ping")
			continue
		}
		p.setSuccessorRef(f)
		return
	}
	p.setSuccessorRef(p.Self())
}

// Notify is the receiver side of stabilize's notify(candidate) call.
// It is idempotent: re-delivery of the same candidate is harmless
// because adoption is governed entirely by the arc-membership test.
func (p *Peer) Notify(candidate wire.NodeRef) {
	pred := p.Predecessor()
	if pred == nil || chordid.InOpen(candidate.NodeID, pred.NodeID, p.nodeID) {
		p.setPredecessorRef(&candidate)
	}

	succ := p.Successor()
	if succ.NodeAddress == p.address || chordid.InOpen(candidate.NodeID, p.nodeID, succ.NodeID) {
		p.setSuccessorRef(candidate)
	}
}

// FixFingers advances the cursor and resolves one finger table entry.
// A resolved peer marked has_left or crashed aborts the tick rather
// than poisoning the table; success triggers a stabilize pass.
func (p *Peer) FixFingers(ctx context.Context) {
	defer p.recordMaintenanceRun("fix_fingers")

	next := p.NextCursor()
	p.AdvanceCursor()

	target := (p.nodeID + (1 << uint(next-1))) % chordid.HashSpace
	resolved := p.FindSuccessor(ctx, target)

	if resolved.NodeAddress != p.address {
		// A crashed or left peer answers /node-info with 503; treat
		// that failure as "abandon this tick" rather than poisoning
		// the finger table with a dead entry.
		if _, err := p.transport.NodeInfo(ctx, resolved.NodeAddress); err != nil {
			if p.log != nil {
				p.log.Debugw("fix_fingers: resolved peer unreachable, abandoning tick", "target", resolved.NodeAddress, "error", err)
			}
			p.recordFailure("node_info")
			return
		}
	}

	p.SetFinger(next-1, resolved)
	p.Stabilize(ctx)
}

// CheckPredecessor clears the predecessor reference if its health
// probe fails. No other action is taken; the next notify repopulates it.
func (p *Peer) CheckPredecessor(ctx context.Context) {
	defer p.recordMaintenanceRun("check_predecessor")

	pred := p.Predecessor()
	if pred == nil {
		return
	}
	alive, err := p.transport.Ping(ctx, pred.NodeAddress)
	if err != nil || !alive {
		p.recordFailure("ping")
		p.predecessor.storeNil()
	}
}
