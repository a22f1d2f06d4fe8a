package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/overlay"
)

func testCfg() config.GossipConfig {
	cfg := config.DefaultGossipConfig()
	cfg.K = 4
	cfg.OldThreshold = 50 * time.Millisecond
	return cfg
}

func nodeID(b byte) overlay.NodeID {
	var id overlay.NodeID
	id[0] = b
	return id
}

func TestGroupAssignmentIsStable(t *testing.T) {
	id := nodeID(7)
	g1 := groupOf(id, 8)
	g2 := groupOf(id, 8)
	require.Equal(t, g1, g2)
}

func TestDiscoverFiresCallbackOnce(t *testing.T) {
	g := New(testCfg(), nodeID(1), nil)
	var seen []overlay.NodeID
	g.OnDiscovery(func(id overlay.NodeID, observer bool) { seen = append(seen, id) })

	loc := overlay.Location{ID: nodeID(2)}
	g.Discover(loc)
	g.Discover(loc)
	require.Len(t, seen, 1)
}

func TestLookupReturnsOwnAffinityGroupMembers(t *testing.T) {
	g := New(testCfg(), nodeID(1), nil)
	for i := byte(2); i < 20; i++ {
		g.Discover(overlay.Location{ID: nodeID(i)})
	}

	var addr address.Address
	addr[31] = byte(address.FlagImmutable)

	var results []overlay.NodeID
	for id, err := range g.Lookup(addr, 3, false) {
		require.NoError(t, err)
		results = append(results, id)
	}
	require.LessOrEqual(t, len(results), 3)

	group := g.affinityGroup(addr)
	for _, id := range results {
		require.Equal(t, group, groupOf(id, g.cfg.K))
	}
}

func TestCheckTimeoutsEvictsStaleContacts(t *testing.T) {
	g := New(testCfg(), nodeID(1), nil)
	var gone []overlay.NodeID
	g.OnDisappearance(func(id overlay.NodeID, observer bool) { gone = append(gone, id) })

	g.Discover(overlay.Location{ID: nodeID(9)})
	time.Sleep(60 * time.Millisecond)
	g.CheckTimeouts()

	require.Equal(t, []overlay.NodeID{nodeID(9)}, gone)
	_, ok := g.LookupNode(nodeID(9))
	require.False(t, ok)
}

func TestSelfNeverEvicted(t *testing.T) {
	g := New(testCfg(), nodeID(1), nil)
	time.Sleep(60 * time.Millisecond)
	g.CheckTimeouts()
	_, ok := g.LookupNode(nodeID(1))
	require.True(t, ok)
}

func TestDigestRoundTrip(t *testing.T) {
	g := New(testCfg(), nodeID(1), nil)
	g.Discover(overlay.Location{ID: nodeID(2), Endpoints: []overlay.Endpoint{{Host: "10.0.0.2", Port: 9999, UTP: true}}})

	payload := g.encodeDigest()
	locs, ok := decodeDigest(payload)
	require.True(t, ok)
	require.NotEmpty(t, locs)

	var found bool
	for _, loc := range locs {
		if loc.ID == nodeID(2) {
			found = true
			require.Equal(t, "10.0.0.2", loc.Endpoints[0].Host)
			require.Equal(t, 9999, loc.Endpoints[0].Port)
			require.True(t, loc.Endpoints[0].UTP)
		}
	}
	require.True(t, found)
}

func TestReceiveGossipMergesMembership(t *testing.T) {
	a := New(testCfg(), nodeID(1), nil)
	b := New(testCfg(), nodeID(2), nil)
	b.Discover(overlay.Location{ID: nodeID(3)})

	a.ReceiveGossip(b.encodeDigest())

	_, ok := a.LookupNode(nodeID(2))
	require.True(t, ok)
	_, ok = a.LookupNode(nodeID(3))
	require.True(t, ok)
}
