package consensus_test

import (
	"context"
	"testing"

	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/consensus"
	"github.com/meshvault/core/metrics"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/overlay/overlaymock"
	"github.com/meshvault/core/peer"
	"github.com/meshvault/core/silo/silomock"
)

// TestRebalancePropagatesConfirmedValueToNewQuorum exercises the direct
// idempotent-propagation design (see DESIGN.md's first open question): a
// node that already holds a confirmed value pushes it to a fresh quorum
// member outside any Paxos round.
func TestRebalancePropagatesConfirmedValueToNewQuorum(t *testing.T) {
	c := newTestCluster(t, 3)
	priv := mustKeyCluster(t)

	b, err := block.NewMutableBlock(priv.Public(), []byte("confirmed"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	if err := b.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}
	ctx := context.Background()
	if err := c.clients[0].Insert(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Introduce a brand-new node that has never seen the address.
	joinerID := nodeID(99)
	ov := overlaymock.New(joinerID)
	for _, id := range c.ids {
		ov.Discover(overlay.Location{ID: id})
	}
	joinerSrv, err := consensus.NewServer(joinerID, silomock.New(1<<20), ov, func(id overlay.NodeID) (peer.Peer, error) {
		return peer.NewLocal(id, c.servers[0]), nil
	}, config.DefaultConfig(), nil, metrics.Noop())
	if err != nil {
		t.Fatalf("new joiner server: %v", err)
	}
	c.addPeer(joinerID, peer.NewLocal(joinerID, joinerSrv))

	if err := c.servers[0].RebalanceWithQuorum(ctx, b.Address(), []overlay.NodeID{joinerID}); err != nil {
		t.Fatalf("rebalance to joiner: %v", err)
	}

	res, err := joinerSrv.Fetch(ctx, b.Address(), 0)
	if err != nil {
		t.Fatalf("joiner fetch: %v", err)
	}
	if res.Value == nil || string(res.Value.Data()) != "confirmed" {
		t.Fatalf("expected the joiner to have received the confirmed value, got %+v", res)
	}
}

// TestRebalanceSkipsAddressWithNoLocalValue confirms RebalanceWithQuorum is
// a no-op (not an error) for an address this node has never confirmed.
func TestRebalanceSkipsAddressWithNoLocalValue(t *testing.T) {
	c := newTestCluster(t, 2)
	priv := mustKeyCluster(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("never inserted"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}

	if err := c.servers[0].RebalanceWithQuorum(context.Background(), b.Address(), c.ids); err != nil {
		t.Fatalf("expected no-op for an address with no local value, got %v", err)
	}
}

func TestResignPropagatesEveryOwnedAddressAwayFromSelf(t *testing.T) {
	c := newTestCluster(t, 3)
	priv := mustKeyCluster(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("resign me"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	if err := b.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}
	ctx := context.Background()
	if err := c.clients[0].Insert(ctx, b); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := c.servers[0].Resign(ctx); err != nil {
		t.Fatalf("resign: %v", err)
	}

	for i, srv := range c.servers {
		if i == 0 {
			continue
		}
		res, err := srv.Fetch(ctx, b.Address(), 0)
		if err != nil {
			t.Fatalf("node %d fetch after resign: %v", i, err)
		}
		if res.Value == nil || string(res.Value.Data()) != "resign me" {
			t.Fatalf("node %d: expected resigned value to have propagated, got %+v", i, res)
		}
	}
}
