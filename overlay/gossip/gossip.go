// Package gossip implements a Kelips-style group-gossip overlay.Overlay
// (spec §4.2, grounded on original_source's
// src/memo/overlay/kelips/Kelips.hh): nodes split consistently into k
// affinity groups, and files (addresses) are indexed within the address's
// affinity group. Each node keeps every contact it discovers, in any group;
// the number of other-group contacts is not bounded (MaxOtherContacts is
// not read).
//
// Package gossip is transport-agnostic: it maintains membership state and
// decides what to gossip and to whom, but sending bytes over the network is
// the caller's job (normally dock), via the Sender interface passed to Run.
package gossip

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"iter"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/storelog"
)

// Sender delivers a gossip payload to a peer; the dock implements this over
// its RPC multiplex.
type Sender interface {
	SendGossip(ctx context.Context, to overlay.NodeID, payload []byte) error
}

type contact struct {
	loc      overlay.Location
	lastSeen time.Time
	group    int
}

// Gossip is a group-gossip overlay.Overlay.
type Gossip struct {
	cfg  config.GossipConfig
	self overlay.NodeID
	log  storelog.Logger

	mu              sync.RWMutex
	contacts        map[overlay.NodeID]*contact
	onDiscovery     []overlay.DiscoveryCallback
	onDisappearance []overlay.DisappearanceCallback

	closed chan struct{}
	once   sync.Once
}

// New creates a Gossip overlay for self, using cfg's k and gossip
// parameters (§4.2's enumerated GossipConfig).
func New(cfg config.GossipConfig, self overlay.NodeID, log storelog.Logger) *Gossip {
	if log == nil {
		log = storelog.NewNoOp()
	}
	g := &Gossip{
		cfg: cfg, self: self, log: log,
		contacts: map[overlay.NodeID]*contact{
			self: {loc: overlay.Location{ID: self}, lastSeen: time.Now(), group: groupOf(self, cfg.K)},
		},
		closed: make(chan struct{}),
	}
	return g
}

func (g *Gossip) Self() overlay.NodeID { return g.self }

func (g *Gossip) selfGroup() int { return groupOf(g.self, g.cfg.K) }

// groupOf assigns a node to one of k affinity groups by hashing its id,
// matching Kelips' "nodes split consistently into k groups".
func groupOf(id overlay.NodeID, k int) int {
	if k <= 0 {
		k = 1
	}
	h := sha256.Sum256(id[:])
	v := binary.BigEndian.Uint64(h[:8])
	return int(v % uint64(k))
}

// affinityGroup is the group a given address's replicas are indexed under —
// "files are indexed within the address's group" (§4.2).
func (g *Gossip) affinityGroup(addr address.Address) int {
	h := sha256.Sum256(addr.Bytes())
	v := binary.BigEndian.Uint64(h[:8])
	return int(v % uint64(g.cfg.K))
}

// Discover hints the overlay about peers and their endpoints (§4.2). It
// never itself triggers rebalancing.
func (g *Gossip) Discover(locations ...overlay.Location) {
	g.mu.Lock()
	var fresh []overlay.Location
	now := time.Now()
	for _, loc := range locations {
		if _, ok := g.contacts[loc.ID]; !ok {
			fresh = append(fresh, loc)
		}
		g.contacts[loc.ID] = &contact{loc: loc, lastSeen: now, group: groupOf(loc.ID, g.cfg.K)}
	}
	cbs := append([]overlay.DiscoveryCallback(nil), g.onDiscovery...)
	g.mu.Unlock()

	for _, loc := range fresh {
		observer := len(loc.Endpoints) == 0
		for _, cb := range cbs {
			cb(loc.ID, observer)
		}
	}
}

// Heartbeat refreshes a contact's last-seen time, as if a gossip message
// from it was just received.
func (g *Gossip) Heartbeat(id overlay.NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.contacts[id]; ok {
		c.lastSeen = time.Now()
	}
}

// CheckTimeouts evicts contacts unheard from for longer than OldThreshold
// and fires disappearance callbacks; the caller (or Run's ticker) invokes
// this every GossipInterval.
func (g *Gossip) CheckTimeouts() {
	now := time.Now()
	g.mu.Lock()
	var gone []overlay.NodeID
	for id, c := range g.contacts {
		if id == g.self {
			continue
		}
		if now.Sub(c.lastSeen) > g.cfg.OldThreshold {
			gone = append(gone, id)
			delete(g.contacts, id)
		}
	}
	cbs := append([]overlay.DisappearanceCallback(nil), g.onDisappearance...)
	g.mu.Unlock()

	for _, id := range gone {
		for _, cb := range cbs {
			cb(id, false)
		}
	}
}

func (g *Gossip) LookupNode(id overlay.NodeID) (overlay.Location, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.contacts[id]
	if !ok {
		return overlay.Location{}, false
	}
	return c.loc, true
}

// membersOfGroup returns every known member of the given affinity group,
// ordered by rendezvous score against addr for a stable preference list.
func (g *Gossip) membersOfGroup(group int, addr address.Address) []overlay.NodeID {
	g.mu.RLock()
	var ids []overlay.NodeID
	for id, c := range g.contacts {
		if c.group == group {
			ids = append(ids, id)
		}
	}
	g.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return rendezvousScore(addr, ids[i]) < rendezvousScore(addr, ids[j]) })
	return ids
}

func rendezvousScore(addr address.Address, id overlay.NodeID) uint64 {
	var h uint64 = 1469598103934665603
	for _, b := range addr.Bytes() {
		h ^= uint64(b)
		h *= 1099511628211
	}
	for _, b := range id {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

func (g *Gossip) Allocate(addr address.Address, n int) iter.Seq2[overlay.NodeID, error] {
	return g.lookup(addr, n)
}

func (g *Gossip) Lookup(addr address.Address, n int, fast bool) iter.Seq2[overlay.NodeID, error] {
	// fast=true is satisfied trivially here: membership is always held
	// in-memory, so there is no partial-result latency to short-circuit.
	_ = fast
	return g.lookup(addr, n)
}

func (g *Gossip) lookup(addr address.Address, n int) iter.Seq2[overlay.NodeID, error] {
	group := g.affinityGroup(addr)
	ids := g.membersOfGroup(group, addr)
	if n <= 0 || n > len(ids) {
		n = len(ids)
	}
	return func(yield func(overlay.NodeID, error) bool) {
		for _, id := range ids[:n] {
			if !yield(id, nil) {
				return
			}
		}
	}
}

func (g *Gossip) OnDiscovery(cb overlay.DiscoveryCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDiscovery = append(g.onDiscovery, cb)
}

func (g *Gossip) OnDisappearance(cb overlay.DisappearanceCallback) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onDisappearance = append(g.onDisappearance, cb)
}

// GossipTargets picks the fanout of contacts this node should gossip to on
// the next round: every member of its own group up to GossipFanoutGroup,
// plus GossipFanoutOther contacts sampled from other groups, per §4.2's
// gossip_fanout(files/contacts/group/other) knobs.
func (g *Gossip) GossipTargets() []overlay.NodeID {
	own := g.selfGroup()
	g.mu.RLock()
	var inGroup, other []overlay.NodeID
	for id, c := range g.contacts {
		if id == g.self {
			continue
		}
		if c.group == own {
			inGroup = append(inGroup, id)
		} else {
			other = append(other, id)
		}
	}
	g.mu.RUnlock()

	rand.Shuffle(len(inGroup), func(i, j int) { inGroup[i], inGroup[j] = inGroup[j], inGroup[i] })
	rand.Shuffle(len(other), func(i, j int) { other[i], other[j] = other[j], other[i] })

	targets := inGroup
	if len(targets) > g.cfg.GossipFanoutGroup {
		targets = targets[:g.cfg.GossipFanoutGroup]
	}
	if len(other) > g.cfg.GossipFanoutOther {
		other = other[:g.cfg.GossipFanoutOther]
	}
	return append(targets, other...)
}

// Run drives the periodic gossip loop: every GossipInterval it checks
// timeouts and asks sender to deliver a membership digest to this round's
// targets. It returns when ctx is cancelled or Close is called.
func (g *Gossip) Run(ctx context.Context, sender Sender) {
	ticker := time.NewTicker(g.cfg.GossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.closed:
			return
		case <-ticker.C:
			g.CheckTimeouts()
			payload := g.encodeDigest()
			for _, id := range g.GossipTargets() {
				if err := sender.SendGossip(ctx, id, payload); err != nil {
					g.log.Debug("gossip send failed", zap.Error(err))
				}
			}
		}
	}
}

func (g *Gossip) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}

// encodeDigest serializes up to GossipFanoutContacts known contacts, picked
// at random from every group including this node's own (all of them when
// GossipFanoutContacts is 0 or not exceeded), into the wire payload
// exchanged with GossipTargets.
func (g *Gossip) encodeDigest() []byte {
	g.mu.RLock()
	defer g.mu.RUnlock()

	locs := make([]overlay.Location, 0, len(g.contacts))
	for _, c := range g.contacts {
		locs = append(locs, c.loc)
	}
	if len(locs) > g.cfg.GossipFanoutContacts && g.cfg.GossipFanoutContacts > 0 {
		rand.Shuffle(len(locs), func(i, j int) { locs[i], locs[j] = locs[j], locs[i] })
		locs = locs[:g.cfg.GossipFanoutContacts]
	}

	var buf []byte
	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(locs)))
	buf = append(buf, n4[:]...)
	for _, loc := range locs {
		buf = append(buf, loc.ID[:]...)
		binary.BigEndian.PutUint16(n4[:2], uint16(len(loc.Endpoints)))
		buf = append(buf, n4[:2]...)
		for _, ep := range loc.Endpoints {
			host := []byte(ep.Host)
			binary.BigEndian.PutUint16(n4[:2], uint16(len(host)))
			buf = append(buf, n4[:2]...)
			buf = append(buf, host...)
			binary.BigEndian.PutUint16(n4[:2], uint16(ep.Port))
			buf = append(buf, n4[:2]...)
			if ep.UTP {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf
}

// ReceiveGossip merges a digest received from a peer (via Sender's
// transport) into local membership state, as Kelips nodes do on every
// incoming gossip round.
func (g *Gossip) ReceiveGossip(payload []byte) {
	locs, ok := decodeDigest(payload)
	if !ok {
		g.log.Warn("gossip: malformed digest dropped")
		return
	}
	g.Discover(locs...)
}

func decodeDigest(buf []byte) ([]overlay.Location, bool) {
	read16 := func() (uint16, bool) {
		if len(buf) < 2 {
			return 0, false
		}
		v := binary.BigEndian.Uint16(buf[:2])
		buf = buf[2:]
		return v, true
	}
	if len(buf) < 4 {
		return nil, false
	}
	count := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]

	locs := make([]overlay.Location, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(buf) < 20 {
			return nil, false
		}
		var id overlay.NodeID
		copy(id[:], buf[:20])
		buf = buf[20:]

		nEndpoints, ok := read16()
		if !ok {
			return nil, false
		}
		eps := make([]overlay.Endpoint, 0, nEndpoints)
		for j := uint16(0); j < nEndpoints; j++ {
			hostLen, ok := read16()
			if !ok || len(buf) < int(hostLen) {
				return nil, false
			}
			host := string(buf[:hostLen])
			buf = buf[hostLen:]
			port, ok := read16()
			if !ok || len(buf) < 1 {
				return nil, false
			}
			utp := buf[0] != 0
			buf = buf[1:]
			eps = append(eps, overlay.Endpoint{Host: host, Port: int(port), UTP: utp})
		}
		locs = append(locs, overlay.Location{ID: id, Endpoints: eps})
	}
	return locs, true
}

var _ overlay.Overlay = (*Gossip)(nil)
