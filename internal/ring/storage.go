package ring

import (
	"context"
	"errors"

	"github.com/distsys-lab/chordring/internal/chordid"
)

// ErrNotFound is returned by LookupGet when the resolved owner is this
// peer and the key is absent from its local map.
var ErrNotFound = errors.New("key not found")

// LookupPut hashes key and resolves its owner. When this peer owns the
// key it is stored locally and ownerAddr is "". Otherwise ownerAddr is
// the one-hop forwarding target and the caller (the transport layer)
// is responsible for the HTTP forward; the value is not stored here.
func (p *Peer) LookupPut(ctx context.Context, key, value string) (ownerAddr string, local bool) {
	keyID := chordid.Hash(key)
	owner := p.FindSuccessor(ctx, keyID)
	if owner.NodeAddress == p.address {
		p.Put(key, value)
		return "", true
	}
	return owner.NodeAddress, false
}

// LookupGet hashes key and resolves its owner. When this peer owns the
// key it returns the value (or ErrNotFound); otherwise it returns the
// one-hop forwarding target for the caller to chase.
func (p *Peer) LookupGet(ctx context.Context, key string) (value string, ownerAddr string, local bool, err error) {
	keyID := chordid.Hash(key)
	owner := p.FindSuccessor(ctx, keyID)
	if owner.NodeAddress == p.address {
		v, ok := p.Get(key)
		if !ok {
			return "", "", true, ErrNotFound
		}
		return v, "", true, nil
	}
	return "", owner.NodeAddress, false, nil
}
