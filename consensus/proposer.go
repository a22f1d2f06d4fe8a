package consensus

import (
	"context"
	"sync"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/peer"
)

func majority(n int) int { return n/2 + 1 }

// Client is the proposer-facing entry point a model façade drives
// (component C8): it embeds *Server for the shared overlay/cache/cfg state,
// but defines its own Fetch/Remove that shadow the embedded acceptor's
// identically-named peer.Server RPCs — the acceptor answers "what do you
// have locally", the client answers "what is the cluster's resolved value".
// Go forbids two methods of the same name on one type, so the acceptor and
// proposer roles live on Server and Client respectively rather than both on
// Server.
type Client struct {
	*Server
}

// NewClient wraps a consensus Server with the proposer operations a local
// caller drives (insert/update/fetch/remove at the model façade).
func NewClient(s *Server) *Client { return &Client{Server: s} }

// allocateQuorum asks the overlay for ℛ fresh owners of a brand-new address
// (§4.5.1: "Client selects a quorum from the overlay (≥ ℛ nodes for a new
// address...)").
func (s *Server) allocateQuorum(addr address.Address) []overlay.NodeID {
	var ids []overlay.NodeID
	for id, err := range s.overlay.Allocate(addr, s.cfg.ReplicationFactor) {
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// currentQuorum returns the persisted quorum for addr, falling back to a
// fresh overlay lookup if no record exists yet (§4.5.1: "...else the
// current quorum").
func (s *Server) currentQuorum(ctx context.Context, addr address.Address) ([]overlay.NodeID, error) {
	r, existed, err := s.loadRecord(ctx, addr)
	if err != nil {
		return nil, err
	}
	if existed && len(r.Quorum) > 0 {
		return r.Quorum, nil
	}
	var ids []overlay.NodeID
	for id, err := range s.overlay.Lookup(addr, s.cfg.ReplicationFactor, false) {
		if err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type promiseFrom struct {
	id    overlay.NodeID
	reply peer.PromiseReply
	err   error
}

func (s *Server) fanOutPropose(ctx context.Context, quorum []overlay.NodeID, addr address.Address, p peer.Proposal, insert bool) []promiseFrom {
	out := make([]promiseFrom, len(quorum))
	var wg sync.WaitGroup
	for i, id := range quorum {
		wg.Add(1)
		go func(i int, id overlay.NodeID) {
			defer wg.Done()
			pe, err := s.peerFor(id)
			if err != nil {
				out[i] = promiseFrom{id: id, err: err}
				return
			}
			reply, err := pe.Propose(ctx, addr, p, insert)
			out[i] = promiseFrom{id: id, reply: reply, err: err}
		}(i, id)
	}
	wg.Wait()
	return out
}

func (s *Server) fanOutAccept(ctx context.Context, quorum []overlay.NodeID, addr address.Address, p peer.Proposal, value block.Block) int {
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for _, id := range quorum {
		wg.Add(1)
		go func(id overlay.NodeID) {
			defer wg.Done()
			pe, err := s.peerFor(id)
			if err != nil {
				return
			}
			if err := pe.Accept(ctx, addr, p, value); err == nil {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return count
}

func (s *Server) fanOutConfirm(ctx context.Context, quorum []overlay.NodeID, addr address.Address, p peer.Proposal) {
	var wg sync.WaitGroup
	for _, id := range quorum {
		wg.Add(1)
		go func(id overlay.NodeID) {
			defer wg.Done()
			pe, err := s.peerFor(id)
			if err != nil {
				return
			}
			_ = pe.Confirm(ctx, addr, p)
		}(id)
	}
	wg.Wait()
}

// runRound drives one full propose/accept/confirm cycle (§4.5.1) for addr
// over quorum, proposing value. If any acceptor reports a previously
// accepted value, Paxos safety requires re-proposing that value (the one
// under the highest accepted proposal)
// instead (§4.5.2); runRound completes that round on the original
// proposer's behalf and returns the recovered value wrapped in a Conflict
// so the caller's own write can be retried against the new state.
func (s *Server) runRound(ctx context.Context, addr address.Address, value block.Block, insert bool, quorum []overlay.NodeID) (block.Block, error) {
	if len(quorum) == 0 {
		return nil, errs.New(errs.KindTooFewPeers, "consensus: no peers available for quorum")
	}
	need := majority(len(quorum))
	start := time.Now()

	p := s.nextProposal(addr)
	promises := s.fanOutPropose(ctx, quorum, addr, p, insert)

	promised := 0
	var adopted block.Block
	var highest peer.Proposal
	for _, pr := range promises {
		if pr.err != nil {
			continue
		}
		if pr.reply.Promised {
			promised++
		}
		// Acceptors report their highest accepted value on both a granted
		// promise and a rejection (§4.5.1), so a proposer that loses a
		// promise race can still learn of and complete prior progress.
		if pr.reply.Value != nil && (adopted == nil || highest.Less(pr.reply.Accepted)) {
			adopted = pr.reply.Value
			highest = pr.reply.Accepted
		}
	}
	if promised < need {
		s.metrics.PaxosRounds.WithLabelValues("propose", "too_few_peers").Inc()
		return nil, errs.New(errs.KindTooFewPeers, "consensus: quorum did not promise")
	}

	valueToAccept := value
	recovering := adopted != nil
	if recovering {
		valueToAccept = adopted
	}

	accepted := s.fanOutAccept(ctx, quorum, addr, p, valueToAccept)
	if accepted < need {
		s.metrics.PaxosRounds.WithLabelValues("accept", "too_few_peers").Inc()
		return nil, errs.New(errs.KindTooFewPeers, "consensus: quorum did not accept")
	}

	s.fanOutConfirm(ctx, quorum, addr, p)
	s.metrics.PaxosRoundLength.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if r, ok := s.cache.get(addr); ok {
		r.Quorum = quorum
		s.cache.set(addr, r)
	}
	s.mu.Unlock()

	if recovering {
		s.metrics.PaxosConflicts.Inc()
		s.metrics.PaxosRounds.WithLabelValues("confirm", "recovered").Inc()
		return nil, &errs.Conflict{Address: addr.String(), CurrentVersion: currentVersion(valueToAccept), CurrentValue: valueToAccept}
	}
	s.metrics.PaxosRounds.WithLabelValues("confirm", "ok").Inc()
	return value, nil
}

func currentVersion(b block.Block) uint64 {
	if v, ok := b.(interface{ GetVersion() uint64 }); ok {
		return v.GetVersion()
	}
	return 0
}

// Insert implements Protocol.Insert (§4.6's insert operation): immutable
// and named blocks short-circuit to direct writes against every allocated
// owner; mutable-base and ACL blocks drive a fresh Paxos round over a newly
// allocated quorum.
func (s *Client) Insert(ctx context.Context, b block.Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	addr := b.Address()
	if !addr.IsMutable() {
		return s.storeToQuorum(ctx, b, block.ModeInsert)
	}

	quorum := s.allocateQuorum(addr)
	_, err := s.runRound(ctx, addr, b, true, quorum)
	return err
}

// Update implements Protocol.Update: always mutable/ACL (immutable/named
// have no version to bump); drives a Paxos round over the existing quorum.
func (s *Client) Update(ctx context.Context, b block.Block) error {
	if err := b.Validate(); err != nil {
		return err
	}
	addr := b.Address()
	if !addr.IsMutable() {
		return s.storeToQuorum(ctx, b, block.ModeUpdate)
	}
	quorum, err := s.currentQuorum(ctx, addr)
	if err != nil {
		return err
	}
	_, err = s.runRound(ctx, addr, b, false, quorum)
	return err
}

// Fetch implements Protocol.Fetch (§4.5.3): query up to ℛ replicas in
// parallel, prefer the highest confirmed value, and complete (recovery-
// confirm) a value a strict majority accepted but nobody confirmed.
func (s *Client) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (block.Block, error) {
	var ids []overlay.NodeID
	for id, err := range s.overlay.Lookup(addr, s.cfg.ReplicationFactor, true) {
		if err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errs.New(errs.KindTooFewPeers, "consensus: no replicas found")
	}

	type reply struct {
		id  overlay.NodeID
		res peer.FetchResult
		err error
	}
	replies := make([]reply, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id overlay.NodeID) {
			defer wg.Done()
			pe, err := s.peerFor(id)
			if err != nil {
				replies[i] = reply{id: id, err: err}
				return
			}
			res, err := pe.Fetch(ctx, addr, localVersion)
			replies[i] = reply{id: id, res: res, err: err}
		}(i, id)
	}
	wg.Wait()

	var best *peer.FetchResult
	counts := map[peer.Proposal]int{}
	var bestUnconfirmed block.Block
	var bestUnconfirmedProposal peer.Proposal
	for _, r := range replies {
		if r.err != nil || r.res.NotModified {
			continue
		}
		if r.res.Confirmed {
			if best == nil || best.AcceptedProposal.Less(r.res.AcceptedProposal) {
				res := r.res
				best = &res
			}
		} else if r.res.Value != nil {
			counts[r.res.AcceptedProposal]++
			if bestUnconfirmedProposal.Less(r.res.AcceptedProposal) {
				bestUnconfirmed = r.res.Value
				bestUnconfirmedProposal = r.res.AcceptedProposal
			}
		}
	}
	if best != nil {
		return best.Value, nil
	}
	if bestUnconfirmed != nil && counts[bestUnconfirmedProposal] >= majority(len(ids)) {
		// Paxos recovery: complete the value on the original proposer's
		// behalf (§4.5.3).
		s.fanOutConfirm(ctx, ids, addr, bestUnconfirmedProposal)
		return bestUnconfirmed, nil
	}
	if s.cfg.LenientFetch && bestUnconfirmed != nil {
		return bestUnconfirmed, nil
	}
	return nil, errs.New(errs.KindMissingBlock, "consensus: no confirmed value found")
}

// Remove implements Protocol.Remove: applies a signature-verified deletion
// to the address's current quorum (or directly for immutable/named).
func (s *Client) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	if !addr.IsMutable() {
		return s.removeFromQuorum(ctx, addr, sig, s.allocateQuorum(addr))
	}
	quorum, err := s.currentQuorum(ctx, addr)
	if err != nil {
		return err
	}
	return s.removeFromQuorum(ctx, addr, sig, quorum)
}

func (s *Server) storeToQuorum(ctx context.Context, b block.Block, mode block.Mode) error {
	quorum := s.allocateQuorum(b.Address())
	if len(quorum) == 0 {
		return errs.New(errs.KindTooFewPeers, "consensus: no peers to store to")
	}
	succeeded := 0
	var lastErr error
	for _, id := range quorum {
		pe, err := s.peerFor(id)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pe.Store(ctx, b, mode); err != nil {
			lastErr = err
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		if lastErr != nil {
			return lastErr
		}
		return errs.New(errs.KindTooFewPeers, "consensus: store reached no peers")
	}
	return nil
}

func (s *Server) removeFromQuorum(ctx context.Context, addr address.Address, sig block.RemoveSignature, quorum []overlay.NodeID) error {
	succeeded := 0
	var lastErr error
	for _, id := range quorum {
		pe, err := s.peerFor(id)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pe.Remove(ctx, addr, sig); err != nil {
			lastErr = err
			continue
		}
		succeeded++
	}
	if succeeded == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}
