// Package overlaymock provides a deterministic in-memory overlay.Overlay
// for tests, standing in for both flatview and gossip.
package overlaymock

import (
	"iter"
	"sort"
	"sync"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/overlay"
)

// Mock is a fixed-membership overlay: Allocate/Lookup return members in
// ascending NodeID order, up to n, regardless of addr — deterministic, the
// same on every node with the same membership, and simple to assert on in
// tests.
type Mock struct {
	self overlay.NodeID

	mu              sync.RWMutex
	order           []overlay.NodeID
	locations       map[overlay.NodeID]overlay.Location
	onDiscovery     []overlay.DiscoveryCallback
	onDisappearance []overlay.DisappearanceCallback
}

func New(self overlay.NodeID) *Mock {
	m := &Mock{self: self, locations: map[overlay.NodeID]overlay.Location{}}
	m.Discover(overlay.Location{ID: self})
	return m
}

func (m *Mock) Self() overlay.NodeID { return m.self }

func (m *Mock) Discover(locations ...overlay.Location) {
	m.mu.Lock()
	var added []overlay.Location
	for _, loc := range locations {
		if _, ok := m.locations[loc.ID]; !ok {
			m.order = append(m.order, loc.ID)
			added = append(added, loc)
		}
		m.locations[loc.ID] = loc
	}
	cbs := append([]overlay.DiscoveryCallback(nil), m.onDiscovery...)
	m.mu.Unlock()

	for _, loc := range added {
		for _, cb := range cbs {
			cb(loc.ID, len(loc.Endpoints) == 0)
		}
	}
}

// Forget removes a member, firing disappearance callbacks — lets tests
// simulate churn without waiting on real timeouts.
func (m *Mock) Forget(id overlay.NodeID) {
	m.mu.Lock()
	_, existed := m.locations[id]
	delete(m.locations, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	cbs := append([]overlay.DisappearanceCallback(nil), m.onDisappearance...)
	m.mu.Unlock()

	if existed {
		for _, cb := range cbs {
			cb(id, false)
		}
	}
}

func (m *Mock) LookupNode(id overlay.NodeID) (overlay.Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locations[id]
	return loc, ok
}

func (m *Mock) Allocate(addr address.Address, n int) iter.Seq2[overlay.NodeID, error] {
	return m.lookup(n)
}

func (m *Mock) Lookup(addr address.Address, n int, _ bool) iter.Seq2[overlay.NodeID, error] {
	return m.lookup(n)
}

func (m *Mock) lookup(n int) iter.Seq2[overlay.NodeID, error] {
	m.mu.RLock()
	ids := append([]overlay.NodeID(nil), m.order...)
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
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

func (m *Mock) OnDiscovery(cb overlay.DiscoveryCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDiscovery = append(m.onDiscovery, cb)
}

func (m *Mock) OnDisappearance(cb overlay.DisappearanceCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDisappearance = append(m.onDisappearance, cb)
}

func (m *Mock) Close() error { return nil }

var _ overlay.Overlay = (*Mock)(nil)
