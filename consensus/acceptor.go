package consensus

import (
	"context"
	"sync"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/peer"
	"github.com/meshvault/core/silo"
)

// addrLock is a per-address mutex released when the last waiter departs
// (§5: "The mutex map is keyed by address and released when the last waiter
// departs").
type addrLock struct {
	mu      sync.Mutex
	waiters int
}

func (s *Server) lockAddr(addr address.Address) func() {
	s.mu.Lock()
	l, ok := s.locks[addr]
	if !ok {
		l = &addrLock{}
		s.locks[addr] = l
	}
	l.waiters++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(s.locks, addr)
		}
		s.mu.Unlock()
	}
}

func (s *Server) loadRecord(ctx context.Context, addr address.Address) (Record, bool, error) {
	if r, ok := s.cache.get(addr); ok {
		return r, true, nil
	}
	raw, err := s.silo.Get(ctx, addr)
	if err != nil {
		if err == silo.ErrMissing {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	r, err := decodeRecord(raw)
	if err != nil {
		return Record{}, false, err
	}
	s.cache.set(addr, r)
	return r, true, nil
}

func (s *Server) storeRecord(ctx context.Context, addr address.Address, r Record, existed bool) error {
	raw, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if _, err := s.silo.Set(ctx, addr, raw, !existed, existed); err != nil {
		return err
	}
	s.cache.set(addr, r)
	return nil
}

// Propose is the acceptor side of §4.5.1 step 1: promise the highest
// proposal seen, or reject one numbered below an existing promise.
func (s *Server) Propose(ctx context.Context, addr address.Address, p peer.Proposal, insert bool) (peer.PromiseReply, error) {
	unlock := s.lockAddr(addr)
	defer unlock()

	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return peer.PromiseReply{}, err
	}
	if existed && insert && r.Confirmed {
		return peer.PromiseReply{}, errs.New(errs.KindCollision, "consensus: address already has a confirmed value")
	}
	var value block.Block
	if len(r.Value) > 0 {
		value, err = r.decodeValue(addr)
		if err != nil {
			return peer.PromiseReply{}, err
		}
	}

	if existed && p.Less(r.Promised) {
		// Rejected, but the acceptor still reports its highest accepted
		// proposal and value (§4.5.1), so a losing proposer can recover it.
		return peer.PromiseReply{Promised: false, Accepted: r.Accepted, Value: value}, nil
	}

	r.Promised = p
	if err := s.storeRecord(ctx, addr, r, existed); err != nil {
		return peer.PromiseReply{}, err
	}
	return peer.PromiseReply{Promised: true, Accepted: r.Accepted, Value: value}, nil
}

// Accept is the acceptor side of §4.5.1 step 2: record value under
// proposal p, provided p is still at least the current promise.
func (s *Server) Accept(ctx context.Context, addr address.Address, p peer.Proposal, value block.Block) error {
	unlock := s.lockAddr(addr)
	defer unlock()

	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return err
	}
	if existed && p.Less(r.Promised) {
		return errs.New(errs.KindConflict, "consensus: proposal superseded before accept")
	}

	encoded, tag, err := encodeValue(value)
	if err != nil {
		return err
	}
	r.Promised = p
	r.Accepted = p
	r.Value = encoded
	r.ValueTag = tag
	r.Confirmed = false
	return s.storeRecord(ctx, addr, r, existed)
}

// Confirm is the acceptor side of §4.5.1 step 3: mark the accepted value
// chosen, the commit barrier after which fetch observes it.
func (s *Server) Confirm(ctx context.Context, addr address.Address, p peer.Proposal) error {
	unlock := s.lockAddr(addr)
	defer unlock()

	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return err
	}
	if !existed {
		return errs.New(errs.KindMissingBlock, "consensus: confirm for unknown address")
	}
	if r.Accepted != p {
		// A later proposal already overtook this one; confirming a stale
		// round is a no-op rather than an error (§4.5.2: aborted lower
		// propagations cooperate with the higher one).
		return nil
	}
	r.Confirmed = true
	if err := s.storeRecord(ctx, addr, r, true); err != nil {
		return err
	}
	s.cancelEviction(addr)
	return nil
}

// Fetch answers the local replica's view (§4.5.3): the confirmed value if
// any, falling back to an unconfirmed-but-accepted value the caller can
// complete via Paxos recovery.
func (s *Server) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (peer.FetchResult, error) {
	unlock := s.lockAddr(addr)
	defer unlock()

	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return peer.FetchResult{}, err
	}
	if !existed || len(r.Value) == 0 {
		return peer.FetchResult{}, errs.New(errs.KindMissingBlock, "consensus: no value for address")
	}
	v, err := r.decodeValue(addr)
	if err != nil {
		return peer.FetchResult{}, err
	}
	if mv, ok := v.(interface{ GetVersion() uint64 }); ok && localVersion > 0 && mv.GetVersion() == localVersion && r.Confirmed {
		return peer.FetchResult{NotModified: true}, nil
	}
	return peer.FetchResult{AcceptedProposal: r.Accepted, Value: v, Confirmed: r.Confirmed}, nil
}

// Store is the non-Paxos short-circuit path for immutable/named blocks
// (§4.5: "Immutable blocks short-circuit Paxos: insertion writes to all
// allocated owners"). For a mutable/ACL address (a rebalance push) it
// replaces the value held in the acceptor Record and leaves the Record's
// Paxos state untouched.
func (s *Server) Store(ctx context.Context, b block.Block, mode block.Mode) error {
	if err := b.Validate(); err != nil {
		return err
	}
	unlock := s.lockAddr(b.Address())
	defer unlock()

	if b.Address().IsMutable() {
		r, existed, err := s.loadRecord(ctx, b.Address())
		if err != nil {
			return err
		}
		encoded, tag, err := encodeValue(b)
		if err != nil {
			return err
		}
		r.Value, r.ValueTag = encoded, tag
		return s.storeRecord(ctx, b.Address(), r, existed)
	}

	encoded, err := block.EncodeBinary(b, block.WireVersion{})
	if err != nil {
		return err
	}
	_, err = s.silo.Set(ctx, b.Address(), encoded, mode == block.ModeInsert, mode == block.ModeUpdate)
	if err == silo.ErrCollision {
		return errs.New(errs.KindCollision, "consensus: address already exists")
	}
	return err
}

// Remove applies a signature-verified deletion: the short-circuit path for
// immutable/named blocks, and the local-apply step once a mutable/ACL
// removal has been agreed (§3.3, §4.4).
func (s *Server) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	unlock := s.lockAddr(addr)
	defer unlock()

	if addr.IsMutable() {
		r, existed, err := s.loadRecord(ctx, addr)
		if err != nil {
			return err
		}
		if !existed || len(r.Value) == 0 {
			return errs.New(errs.KindMissingBlock, "consensus: no value for address")
		}
		b, err := r.decodeValue(addr)
		if err != nil {
			return err
		}
		if err := b.CheckRemove(sig); err != nil {
			return err
		}
		s.cache.remove(addr)
		return s.silo.Erase(ctx, addr)
	}

	raw, err := s.silo.Get(ctx, addr)
	if err != nil {
		return err
	}
	b, err := block.DecodeBinary(raw, addr)
	if err != nil {
		return err
	}
	if err := b.CheckRemove(sig); err != nil {
		return err
	}
	return s.silo.Erase(ctx, addr)
}

// ResolveKeys answers the dock's key-cache RPC (§4.3): looks up public keys
// by their ShortHash id from the registry of keys this node has seen.
func (s *Server) ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error) {
	out := make(map[uint64]*address.PublicKey, len(ids))
	s.mu.Lock()
	for _, id := range ids {
		if k, ok := s.knownKeys[id]; ok {
			out[id] = k
		}
	}
	s.mu.Unlock()
	return out, nil
}

// rememberKey indexes a public key by its ShortHash so future resolve_keys
// calls can answer without re-transmitting the full DER encoding.
func (s *Server) rememberKey(pk *address.PublicKey) {
	if pk == nil {
		return
	}
	h, err := pk.ShortHash()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.knownKeys[h] = pk
	s.mu.Unlock()
}

var _ peer.Server = (*Server)(nil)

// defaultConfigIfZero returns config.DefaultConfig() when cfg is the zero
// value, matching the teacher's "constructors fill in sane defaults" idiom.
func defaultConfigIfZero(cfg config.Config) config.Config {
	if cfg.ReplicationFactor == 0 {
		return config.DefaultConfig()
	}
	return cfg
}
