package consensus

import (
	"context"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/silo"
)

// handleDisappearance is the overlay's DisappearanceCallback (§4.5.7): for
// every address this node stores whose quorum named the departed peer, it
// starts an eviction timer rather than reacting immediately — the peer may
// reappear before RebalanceDelay elapses, in which case cancelEviction (from
// a subsequent Confirm) cancels the replacement. If RebalanceAutoExpand is
// off, only the under_replicated signal fires.
func (s *Server) handleDisappearance(id overlay.NodeID, observer bool) {
	if observer {
		return
	}
	ctx := context.Background()
	for addr, err := range s.silo.List(ctx) {
		if err != nil {
			continue
		}
		r, existed, err := s.loadRecord(ctx, addr)
		owned := false
		if err == nil && existed {
			for _, q := range r.Quorum {
				if q == id {
					owned = true
					break
				}
			}
		} else {
			// Short-circuit (non-Paxos) address: any locally stored block
			// counts as this node being part of its quorum.
			owned = true
		}
		if !owned {
			continue
		}
		s.signalUnderReplicated(addr)
		if s.cfg.RebalanceAutoExpand {
			s.scheduleEviction(addr, id)
		}
	}
}

func (s *Server) signalUnderReplicated(addr address.Address) {
	s.metrics.UnderReplicated.Inc()
	if s.underReplicated != nil {
		s.underReplicated(addr, s.currentReplicaCount(addr))
	}
}

func (s *Server) currentReplicaCount(addr address.Address) int {
	n := 0
	for _, err := range s.overlay.Lookup(addr, s.cfg.ReplicationFactor, false) {
		if err == nil {
			n++
		}
	}
	return n
}

func (s *Server) scheduleEviction(addr address.Address, lost overlay.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNode, ok := s.evictions[addr]
	if !ok {
		byNode = map[overlay.NodeID]*time.Timer{}
		s.evictions[addr] = byNode
	}
	if _, ok := byNode[lost]; ok {
		return
	}
	byNode[lost] = time.AfterFunc(s.cfg.RebalanceDelay, func() {
		s.mu.Lock()
		delete(byNode, lost)
		if len(byNode) == 0 {
			delete(s.evictions, addr)
		}
		s.mu.Unlock()
		_ = s.Rebalance(context.Background(), addr)
	})
}

// cancelEviction stops every pending eviction timer for addr — called once
// a fresh Confirm shows the address's quorum has already been refreshed
// (§4.5.7: a later successful round supersedes a scheduled auto-expand).
func (s *Server) cancelEviction(addr address.Address) {
	s.mu.Lock()
	byNode, ok := s.evictions[addr]
	if ok {
		for _, t := range byNode {
			t.Stop()
		}
		delete(s.evictions, addr)
	}
	s.mu.Unlock()
}

// localValue returns the block this node currently holds for addr, whether
// reached through the acceptor's Record (mutable/ACL) or a raw silo entry
// (immutable/named's short-circuit path).
func (s *Server) localValue(ctx context.Context, addr address.Address) (block.Block, bool, error) {
	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	if existed {
		if len(r.Value) == 0 {
			return nil, false, nil
		}
		v, err := r.decodeValue(addr)
		return v, v != nil, err
	}
	raw, err := s.silo.Get(ctx, addr)
	if err != nil {
		if err == silo.ErrMissing {
			return nil, false, nil
		}
		return nil, false, err
	}
	b, err := block.DecodeBinary(raw, addr)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// Rebalance re-establishes addr's replication factor against the overlay's
// current membership, allocating replacements for any lost owners and
// propagating the current value to them (§4.5.7's supplemented rebalance
// operation). RebalanceWithQuorum pins the target quorum explicitly instead
// of re-deriving it from the overlay, for an operator-triggered repair.
func (s *Server) Rebalance(ctx context.Context, addr address.Address) error {
	var target []overlay.NodeID
	for id, err := range s.overlay.Lookup(addr, s.cfg.ReplicationFactor, false) {
		if err == nil {
			target = append(target, id)
		}
	}
	if len(target) < s.cfg.ReplicationFactor {
		for id, err := range s.overlay.Allocate(addr, s.cfg.ReplicationFactor-len(target)) {
			if err == nil {
				target = append(target, id)
			}
		}
	}
	return s.RebalanceWithQuorum(ctx, addr, target)
}

// RebalanceWithQuorum stores addr's current local value on every member of
// quorum (block.ModeUpsert), whether or not that member already holds it.
func (s *Server) RebalanceWithQuorum(ctx context.Context, addr address.Address, quorum []overlay.NodeID) error {
	b, found, err := s.localValue(ctx, addr)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var lastErr error
	for _, id := range quorum {
		pe, err := s.peerFor(id)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pe.Store(ctx, b, block.ModeUpsert); err != nil {
			lastErr = err
		}
	}
	s.mu.Lock()
	if r, ok := s.cache.get(addr); ok {
		r.Quorum = quorum
		s.cache.set(addr, r)
	}
	s.mu.Unlock()
	return lastErr
}

// Inspect scans every address this node stores and rebalances any whose
// live replica count has fallen below ReplicationFactor — the startup
// "inspect" pass (§4.5.7), gated by RebalanceInspect.
func (s *Server) Inspect(ctx context.Context) error {
	if !s.cfg.RebalanceInspect {
		return nil
	}
	var lastErr error
	for addr, err := range s.silo.List(ctx) {
		if err != nil {
			lastErr = err
			continue
		}
		if s.currentReplicaCount(addr) < s.cfg.ReplicationFactor {
			if err := s.Rebalance(ctx, addr); err != nil {
				lastErr = err
			}
		}
	}
	return lastErr
}

// Resign proactively replicates every address this node owns to its
// remaining quorum peers before a graceful shutdown, so a planned departure
// never needs to wait out a RebalanceDelay eviction timer (§4.5.7: "resign()
// on graceful shutdown").
func (s *Server) Resign(ctx context.Context) error {
	var lastErr error
	for addr, err := range s.silo.List(ctx) {
		if err != nil {
			lastErr = err
			continue
		}
		var quorum []overlay.NodeID
		for id, err := range s.overlay.Lookup(addr, s.cfg.ReplicationFactor+1, false) {
			if err == nil && id != s.self {
				quorum = append(quorum, id)
			}
		}
		if len(quorum) == 0 {
			continue
		}
		if err := s.RebalanceWithQuorum(ctx, addr, quorum); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
