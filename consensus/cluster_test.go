package consensus_test

import (
	"context"
	"testing"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/consensus"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/metrics"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/overlay/overlaymock"
	"github.com/meshvault/core/peer"
	"github.com/meshvault/core/silo/silomock"
)

// testCluster wires N consensus.Server/Client pairs against one another
// in-process via peer.Local, each fronted by its own overlaymock so
// Allocate/Lookup ordering agrees across nodes (a real deployment gets this
// agreement from gossip/flatview instead).
type testCluster struct {
	clients []*consensus.Client
	servers []*consensus.Server
	ids     []overlay.NodeID
	peers   map[overlay.NodeID]peer.Peer
}

// addPeer registers an extra node (e.g. a rebalance target that joined
// after the cluster was built) so existing nodes' PeerResolver can reach it.
func (c *testCluster) addPeer(id overlay.NodeID, p peer.Peer) {
	c.peers[id] = p
}

func nodeID(b byte) overlay.NodeID {
	var id overlay.NodeID
	id[0] = b
	return id
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	ids := make([]overlay.NodeID, n)
	for i := range ids {
		ids[i] = nodeID(byte(i + 1))
	}

	peers := map[overlay.NodeID]peer.Peer{}
	resolver := func(id overlay.NodeID) (peer.Peer, error) {
		p, ok := peers[id]
		if !ok {
			return nil, errs.New(errs.KindTooFewPeers, "consensus_test: unknown peer")
		}
		return p, nil
	}

	c := &testCluster{ids: ids, peers: peers}
	for i, id := range ids {
		ov := overlaymock.New(id)
		for _, other := range ids {
			if other != id {
				ov.Discover(overlay.Location{ID: other})
			}
		}
		srv, err := consensus.NewServer(id, silomock.New(1<<20), ov, resolver, config.DefaultConfig(), nil, metrics.Noop())
		if err != nil {
			t.Fatalf("node %d: new server: %v", i, err)
		}
		peers[id] = peer.NewLocal(id, srv)
		c.servers = append(c.servers, srv)
		c.clients = append(c.clients, consensus.NewClient(srv))
	}
	return c
}

func mustKeyCluster(t *testing.T) *address.PrivateKey {
	t.Helper()
	priv, err := address.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestClusterInsertFetchRoundTrip(t *testing.T) {
	c := newTestCluster(t, 3)
	priv := mustKeyCluster(t)

	b, err := block.NewMutableBlock(priv.Public(), []byte("v1"))
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

	for i, cl := range c.clients {
		got, err := cl.Fetch(ctx, b.Address(), 0)
		if err != nil {
			t.Fatalf("fetch from node %d: %v", i, err)
		}
		if string(got.Data()) != "v1" {
			t.Fatalf("node %d: expected v1, got %q", i, got.Data())
		}
	}
}

// TestClusterUpdateRecoversStaleAccept exercises §4.5.2's recovery path: an
// out-of-band Accept leaves every acceptor holding an accepted-but-
// unconfirmed value under an old proposal. A subsequent real Update still
// wins its own promise phase (its proposal outranks the stale one), but
// must adopt and confirm the stranded value instead of overwriting it, and
// surface that as a Conflict so the caller can retry against the new state.
func TestClusterUpdateRecoversStaleAccept(t *testing.T) {
	c := newTestCluster(t, 3)
	priv := mustKeyCluster(t)

	base, err := block.NewMutableBlock(priv.Public(), []byte("v1"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	if err := base.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}
	ctx := context.Background()
	if err := c.clients[0].Insert(ctx, base); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stranded, err := block.NewMutableBlock(priv.Public(), []byte("stranded"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	stranded.Addr = base.Address()
	stranded.Version = base.Version
	if err := stranded.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}

	// The Insert above left every acceptor promised to {1, ids[0]}. Reusing
	// that proposal passes the promise check (equal, not lower), and
	// clients[1]'s first proposal {1, ids[1]} still outranks it on the
	// proposer-id tie-break, so the later real Update below wins the promise
	// phase while learning of this value.
	stale := peer.Proposal{Round: 1, Proposer: c.ids[0]}
	for _, srv := range c.servers {
		p := peer.NewLocal(overlay.NodeID{}, srv)
		if _, err := p.Propose(ctx, base.Address(), stale, false); err != nil {
			t.Fatalf("out-of-band propose: %v", err)
		}
		if err := p.Accept(ctx, base.Address(), stale, stranded); err != nil {
			t.Fatalf("out-of-band accept: %v", err)
		}
		// Deliberately no Confirm: the value is accepted but unconfirmed,
		// exactly the state a crashed proposer leaves behind.
	}

	next, err := block.NewMutableBlock(priv.Public(), []byte("v2"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	next.Addr = base.Address()
	next.Version = base.Version
	if err := next.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}

	err = c.clients[1].Update(ctx, next)
	if err == nil {
		t.Fatal("expected a conflict surfacing the recovered stranded value")
	}
	conflict, ok := err.(*errs.Conflict)
	if !ok {
		t.Fatalf("expected *errs.Conflict, got %T: %v", err, err)
	}
	got, ok := conflict.CurrentValue.(block.Block)
	if !ok {
		t.Fatalf("conflict.CurrentValue is not a block.Block: %T", conflict.CurrentValue)
	}
	if string(got.Data()) != "stranded" {
		t.Fatalf("expected the recovered conflict value to be the stranded accept, got %q", got.Data())
	}

	// The recovery round itself confirmed the stranded value cluster-wide;
	// fetching now should see it without any further recovery needed.
	settled, err := c.clients[0].Fetch(ctx, base.Address(), 0)
	if err != nil {
		t.Fatalf("fetch after recovery: %v", err)
	}
	if string(settled.Data()) != "stranded" {
		t.Fatalf("expected stranded value to have won the round, got %q", settled.Data())
	}
}
