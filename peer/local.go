package peer

import (
	"context"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/overlay"
)

// Server is what a Local peer calls straight into: the local consensus
// server's Paxos-acceptor surface plus key resolution. package consensus
// implements this; peer does not import consensus to avoid a cycle
// (consensus imports peer to address remote quorum members).
type Server interface {
	Store(ctx context.Context, b block.Block, mode block.Mode) error
	Fetch(ctx context.Context, addr address.Address, localVersion uint64) (FetchResult, error)
	Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error
	ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error)
	Propose(ctx context.Context, addr address.Address, p Proposal, insert bool) (PromiseReply, error)
	Accept(ctx context.Context, addr address.Address, p Proposal, value block.Block) error
	Confirm(ctx context.Context, addr address.Address, p Proposal) error
}

// Local is a peer backed directly by this process's consensus server — no
// network hop. Discoverable by the overlay with the zero-value NodeID
// wildcard (§4.4: "Local peers are discoverable by the overlay with a
// null-id wildcard").
type Local struct {
	id     overlay.NodeID
	server Server
}

func NewLocal(id overlay.NodeID, server Server) *Local {
	return &Local{id: id, server: server}
}

func (l *Local) ID() overlay.NodeID { return l.id }

func (l *Local) Store(ctx context.Context, b block.Block, mode block.Mode) error {
	return l.server.Store(ctx, b, mode)
}

func (l *Local) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (FetchResult, error) {
	return l.server.Fetch(ctx, addr, localVersion)
}

func (l *Local) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	return l.server.Remove(ctx, addr, sig)
}

func (l *Local) ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error) {
	return l.server.ResolveKeys(ctx, ids)
}

func (l *Local) Propose(ctx context.Context, addr address.Address, p Proposal, insert bool) (PromiseReply, error) {
	return l.server.Propose(ctx, addr, p, insert)
}

func (l *Local) Accept(ctx context.Context, addr address.Address, p Proposal, value block.Block) error {
	return l.server.Accept(ctx, addr, p, value)
}

func (l *Local) Confirm(ctx context.Context, addr address.Address, p Proposal) error {
	return l.server.Confirm(ctx, addr, p)
}

// Connected is always true for a local peer — there is no connection to lose.
func (l *Local) Connected() bool { return true }

var _ Peer = (*Local)(nil)
