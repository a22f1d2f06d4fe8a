// Package consensus implements the per-address replicated log (spec §4.5,
// component C7): for mutable-base and ACL addresses, an independent Paxos
// state machine (acceptor.go/proposer.go); for immutable and named
// addresses, a short-circuit path that skips voting entirely. Both paths
// are reached through one Protocol entry point (record.go's Record is the
// persisted acceptor state; rebalance.go handles churn).
package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/metrics"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/peer"
	"github.com/meshvault/core/silo"
	"github.com/meshvault/core/storelog"
)

// PeerResolver looks up the Peer to use for a given node id — a pool of
// peer.Local (id == overlay's Self) and peer.Remote (everyone else).
type PeerResolver func(id overlay.NodeID) (peer.Peer, error)

// Protocol dispatches store/fetch/remove to whichever of the short-circuit
// or Paxos path an address needs, matching the original's Doughnut-style
// wrapping of _store/_fetch/_remove behind one Consensus entry point.
type Protocol interface {
	Insert(ctx context.Context, b block.Block) error
	Update(ctx context.Context, b block.Block) error
	Fetch(ctx context.Context, addr address.Address, localVersion uint64) (block.Block, error)
	Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error
}

// Server is the acceptor (peer.Server, answering RPCs from any peer that
// contacts this node) and holds the state it shares with Client, the
// proposer side that implements Protocol for a local caller.
type Server struct {
	self    overlay.NodeID
	silo    silo.Silo
	overlay overlay.Overlay
	peers   PeerResolver
	cfg     config.Config
	cache   *decisionCache
	log     storelog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	locks     map[address.Address]*addrLock
	knownKeys map[uint64]*address.PublicKey
	rounds    map[address.Address]uint64
	evictions map[address.Address]map[overlay.NodeID]*time.Timer

	underReplicated func(addr address.Address, currentFactor int)
}

// NewServer builds a consensus Server. peers resolves quorum members
// (typically backed by a dock.Pool plus a peer.Local for self); cfg's zero
// value is replaced by config.DefaultConfig().
func NewServer(self overlay.NodeID, s silo.Silo, ov overlay.Overlay, peers PeerResolver, cfg config.Config, log storelog.Logger, m *metrics.Metrics) (*Server, error) {
	cfg = defaultConfigIfZero(cfg)
	if log == nil {
		log = storelog.NewNoOp()
	}
	if m == nil {
		m = metrics.Noop()
	}
	cache, err := newDecisionCache(10_000)
	if err != nil {
		return nil, err
	}
	srv := &Server{
		self: self, silo: s, overlay: ov, peers: peers, cfg: cfg, cache: cache, log: log, metrics: m,
		locks:     map[address.Address]*addrLock{},
		knownKeys: map[uint64]*address.PublicKey{},
		rounds:    map[address.Address]uint64{},
		evictions: map[address.Address]map[overlay.NodeID]*time.Timer{},
	}
	ov.OnDisappearance(srv.handleDisappearance)
	return srv, nil
}

// OnUnderReplicated registers the §4.5.7 signal callback.
func (s *Server) OnUnderReplicated(cb func(addr address.Address, currentFactor int)) {
	s.underReplicated = cb
}

func (s *Server) nextProposal(addr address.Address) peer.Proposal {
	s.mu.Lock()
	s.rounds[addr]++
	round := s.rounds[addr]
	s.mu.Unlock()
	return peer.Proposal{Round: round, Proposer: s.self}
}

func (s *Server) peerFor(id overlay.NodeID) (peer.Peer, error) {
	return s.peers(id)
}

var _ Protocol = (*Client)(nil)
