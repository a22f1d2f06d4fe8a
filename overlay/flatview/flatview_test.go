package flatview

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/overlay"
)

func nodeID(b byte) overlay.NodeID {
	var id overlay.NodeID
	id[0] = b
	return id
}

func TestDiscoverIsIdempotent(t *testing.T) {
	f := New(nodeID(1))
	var fired int
	f.OnDiscovery(func(overlay.NodeID, bool) { fired++ })

	f.Discover(overlay.Location{ID: nodeID(2)})
	f.Discover(overlay.Location{ID: nodeID(2)})
	require.Equal(t, 1, fired)
}

func TestAllocateOrderIsDeterministicAcrossCalls(t *testing.T) {
	f := New(nodeID(1))
	for i := byte(2); i < 10; i++ {
		f.Discover(overlay.Location{ID: nodeID(i)})
	}

	var addr address.Address
	addr[31] = byte(address.FlagImmutable)

	first := collect(f, addr, 3)
	second := collect(f, addr, 3)
	require.Equal(t, first, second)
	require.Len(t, first, 3)
}

func TestForgetFiresDisappearance(t *testing.T) {
	f := New(nodeID(1))
	f.Discover(overlay.Location{ID: nodeID(2)})

	var gone []overlay.NodeID
	f.OnDisappearance(func(id overlay.NodeID, observer bool) { gone = append(gone, id) })
	f.Forget(nodeID(2), false)

	require.Equal(t, []overlay.NodeID{nodeID(2)}, gone)
	_, ok := f.LookupNode(nodeID(2))
	require.False(t, ok)
}

func TestLookupCapsAtMembershipSize(t *testing.T) {
	f := New(nodeID(1))
	var addr address.Address
	results := collect(f, addr, 100)
	require.Len(t, results, 1)
}

func collect(f *FlatView, addr address.Address, n int) []overlay.NodeID {
	var out []overlay.NodeID
	for id, err := range f.Allocate(addr, n) {
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
