// Package peer provides the uniform local/remote peer abstraction (spec
// §4.4, component C6): the same Peer interface addresses a peer running in
// this process (Local, calling straight into silo+consensus) or across the
// network (Remote, over a dock.Conn), so consensus and the model façade
// never special-case which.
package peer

import (
	"context"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/overlay"
)

// FetchResult is what Fetch returns: the accepted proposal number, its
// value if any, and whether it has been confirmed (§4.5.3).
type FetchResult struct {
	AcceptedProposal Proposal
	Value            block.Block
	Confirmed        bool
	NotModified      bool
}

// Proposal is (round_number, proposer_id), totally ordered lexicographically
// (§4.5: "Proposal = (round_number, proposer_id)").
type Proposal struct {
	Round    uint64
	Proposer overlay.NodeID
}

// Less implements the tie-break: ties broken by proposer id (§4.5.2).
func (p Proposal) Less(o Proposal) bool {
	if p.Round != o.Round {
		return p.Round < o.Round
	}
	return string(p.Proposer[:]) < string(o.Proposer[:])
}

func (p Proposal) IsZero() bool { return p.Round == 0 && p.Proposer.IsZero() }

// PromiseReply is an acceptor's answer to propose() (§4.5.1 step 1).
type PromiseReply struct {
	Promised bool
	Accepted Proposal
	Value    block.Block
}

// Peer is the uniform operation surface for a quorum member (§4.4).
type Peer interface {
	ID() overlay.NodeID

	Store(ctx context.Context, b block.Block, mode block.Mode) error
	Fetch(ctx context.Context, addr address.Address, localVersion uint64) (FetchResult, error)
	Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error
	ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error)

	// Propose/Accept/Confirm are the Paxos RPCs consensus drives per
	// address (§4.5.1).
	Propose(ctx context.Context, addr address.Address, p Proposal, insert bool) (PromiseReply, error)
	Accept(ctx context.Context, addr address.Address, p Proposal, value block.Block) error
	Confirm(ctx context.Context, addr address.Address, p Proposal) error

	Connected() bool
}

// ConnectedCallback/DisconnectedCallback fire on the peer's connected()/
// disconnected() signals (§4.4).
type ConnectedCallback func(Peer)
type DisconnectedCallback func(Peer)
