// Package overlay defines the membership and routing plane: mapping
// addresses to owner peers, and signalling peer discovery/disappearance
// (spec §4.2). Two interchangeable topologies implement it:
// overlay/gossip (Kelips-style group-gossip) and overlay/flatview (every
// node knows every other node).
package overlay

import (
	"iter"

	"github.com/meshvault/core/address"
)

// NodeID identifies a peer in the overlay. The zero value is the wildcard
// used by discoverable local peers (spec §4.4).
type NodeID [20]byte

func (id NodeID) String() string {
	const hex = "0123456789abcdef"
	b := make([]byte, len(id)*2)
	for i, v := range id {
		b[i*2] = hex[v>>4]
		b[i*2+1] = hex[v&0xf]
	}
	return string(b)
}

func (id NodeID) IsZero() bool { return id == NodeID{} }

// Endpoint is a dialable (host, port) pair, for either TCP or UTP (§6.5).
type Endpoint struct {
	Host string
	Port int
	UTP  bool
}

// Location pairs a NodeID with the endpoints reachable at it, the payload
// of overlay.Discover's hints (§4.2).
type Location struct {
	ID        NodeID
	Endpoints []Endpoint
	Passport  *Passport
}

// DiscoveryCallback is invoked when a new peer is observed; observer is true
// for a peer contributing no storage (client-only).
type DiscoveryCallback func(id NodeID, observer bool)

// DisappearanceCallback is invoked when a peer is believed gone.
type DisappearanceCallback func(id NodeID, observer bool)

// Overlay is the membership/routing contract (§4.2).
type Overlay interface {
	// Allocate returns up to n peers chosen to own a new replica, for
	// writing addr for the first time.
	Allocate(addr address.Address, n int) iter.Seq2[NodeID, error]

	// Lookup returns up to n peers believed to already own addr. fast=true
	// returns partial results as soon as any are known, rather than waiting
	// for the full gossip round.
	Lookup(addr address.Address, n int, fast bool) iter.Seq2[NodeID, error]

	LookupNode(id NodeID) (Location, bool)

	// Discover hints the overlay about peers and their endpoints, without
	// triggering rebalancing (§4.5.5: "does not automatically rebalance").
	Discover(locations ...Location)

	OnDiscovery(DiscoveryCallback)
	OnDisappearance(DisappearanceCallback)

	// Self returns this node's own id.
	Self() NodeID

	Close() error
}
