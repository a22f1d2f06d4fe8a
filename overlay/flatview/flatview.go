// Package flatview implements overlay.Overlay as a trivial full-mesh
// topology: every node knows every other node. Chosen when cluster size is
// small (spec §4.2).
package flatview

import (
	"errors"
	"iter"
	"sort"
	"sync"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/overlay"
)

// FlatView is a full-membership overlay: Allocate/Lookup simply return all
// known members, deterministically ordered by a stable hash of (addr, id)
// so repeated calls for the same address return the same preference order.
type FlatView struct {
	self overlay.NodeID

	mu              sync.RWMutex
	members         map[overlay.NodeID]overlay.Location
	onDiscovery     []overlay.DiscoveryCallback
	onDisappearance []overlay.DisappearanceCallback
}

func New(self overlay.NodeID) *FlatView {
	return &FlatView{self: self, members: map[overlay.NodeID]overlay.Location{self: {ID: self}}}
}

func (f *FlatView) Self() overlay.NodeID { return f.self }

func (f *FlatView) Discover(locations ...overlay.Location) {
	f.mu.Lock()
	var added []overlay.Location
	for _, loc := range locations {
		if _, ok := f.members[loc.ID]; !ok {
			added = append(added, loc)
		}
		f.members[loc.ID] = loc
	}
	callbacks := append([]overlay.DiscoveryCallback(nil), f.onDiscovery...)
	f.mu.Unlock()

	for _, loc := range added {
		for _, cb := range callbacks {
			cb(loc.ID, len(loc.Endpoints) == 0)
		}
	}
}

// Forget removes a member and fires disappearance callbacks; flatview has
// no liveness detection of its own — callers (the dock, via ping timeouts)
// report departures.
func (f *FlatView) Forget(id overlay.NodeID, observer bool) {
	f.mu.Lock()
	_, existed := f.members[id]
	delete(f.members, id)
	callbacks := append([]overlay.DisappearanceCallback(nil), f.onDisappearance...)
	f.mu.Unlock()

	if existed {
		for _, cb := range callbacks {
			cb(id, observer)
		}
	}
}

func (f *FlatView) LookupNode(id overlay.NodeID) (overlay.Location, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	loc, ok := f.members[id]
	return loc, ok
}

func (f *FlatView) orderedMembers(addr address.Address) []overlay.NodeID {
	f.mu.RLock()
	ids := make([]overlay.NodeID, 0, len(f.members))
	for id := range f.members {
		ids = append(ids, id)
	}
	f.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		return rendezvousScore(addr, ids[i]) < rendezvousScore(addr, ids[j])
	})
	return ids
}

// rendezvousScore gives a stable per-address ordering over node ids
// (highest-random-weight hashing), so Allocate/Lookup return a consistent
// preference list without a central coordinator.
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

func (f *FlatView) Allocate(addr address.Address, n int) iter.Seq2[overlay.NodeID, error] {
	return f.lookup(addr, n)
}

func (f *FlatView) Lookup(addr address.Address, n int, _ bool) iter.Seq2[overlay.NodeID, error] {
	return f.lookup(addr, n)
}

func (f *FlatView) lookup(addr address.Address, n int) iter.Seq2[overlay.NodeID, error] {
	ids := f.orderedMembers(addr)
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

func (f *FlatView) OnDiscovery(cb overlay.DiscoveryCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDiscovery = append(f.onDiscovery, cb)
}

func (f *FlatView) OnDisappearance(cb overlay.DisappearanceCallback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisappearance = append(f.onDisappearance, cb)
}

func (f *FlatView) Close() error { return nil }

var _ overlay.Overlay = (*FlatView)(nil)

// ErrNoSuchMember is returned by lookups that require an existing member.
var ErrNoSuchMember = errors.New("flatview: no such member")
