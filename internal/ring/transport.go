package ring

import (
	"context"

	"github.com/distsys-lab/chordring/internal/wire"
)

// Transport is the RPC surface a Peer needs from another peer. Every
// method is a single blocking hop; callers are responsible for
// treating failures as described in the design (fallback, not retry).
type Transport interface {
	// Ping checks liveness. Used by stabilize (successor health),
	// check_predecessor, and RecoverNode to probe whether a rejoin
	// target is reachable.
	Ping(ctx context.Context, addr string) (bool, error)

	// GetPredecessor asks addr for its predecessor. A nil result means
	// addr reports no predecessor.
	GetPredecessor(ctx context.Context, addr string) (*wire.NodeRef, error)

	// Notify tells addr that candidate might be its new predecessor.
	Notify(ctx context.Context, addr string, candidate wire.NodeRef) error

	// FindSuccessor asks addr to resolve keyID, continuing the search
	// remotely.
	FindSuccessor(ctx context.Context, addr string, keyID int) (wire.NodeRef, error)

	// UpdateSuccessor instructs addr to adopt successorAddr as its
	// successor (used by Leave).
	UpdateSuccessor(ctx context.Context, addr string, successorAddr string) error

	// UpdatePredecessor instructs addr to adopt predecessorAddr (or
	// clear it, when nil) as its predecessor (used by Leave).
	UpdatePredecessor(ctx context.Context, addr string, predecessorAddr *string) error

	// NodeInfo fetches addr's node_id. FixFingers uses it to abandon a
	// tick whose resolved peer is crashed or has left (an error here).
	NodeInfo(ctx context.Context, addr string) (int, error)
}
