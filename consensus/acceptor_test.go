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

func newSingleServer(t *testing.T) *consensus.Server {
	t.Helper()
	id := nodeID(1)
	ov := overlaymock.New(id)
	srv, err := consensus.NewServer(id, silomock.New(1<<20), ov, func(overlay.NodeID) (peer.Peer, error) {
		return nil, nil
	}, config.DefaultConfig(), nil, metrics.Noop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func TestAcceptorPromisesThenRejectsLowerProposal(t *testing.T) {
	srv := newSingleServer(t)
	priv := mustKeyCluster(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("v1"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	ctx := context.Background()
	addr := b.Address()

	high := peer.Proposal{Round: 5, Proposer: nodeID(1)}
	reply, err := srv.Propose(ctx, addr, high, true)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if !reply.Promised {
		t.Fatal("expected the first proposal to be promised")
	}

	low := peer.Proposal{Round: 3, Proposer: nodeID(2)}
	reply, err = srv.Propose(ctx, addr, low, true)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if reply.Promised {
		t.Fatal("expected a lower round to be rejected")
	}
}

func TestAcceptorRejectionCarriesAcceptedValue(t *testing.T) {
	srv := newSingleServer(t)
	priv := mustKeyCluster(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("accepted"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	if err := b.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}
	ctx := context.Background()
	addr := b.Address()

	winner := peer.Proposal{Round: 10, Proposer: nodeID(1)}
	if _, err := srv.Propose(ctx, addr, winner, true); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if err := srv.Accept(ctx, addr, winner, b); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// No Confirm: the value is accepted but unconfirmed.

	loser := peer.Proposal{Round: 4, Proposer: nodeID(2)}
	reply, err := srv.Propose(ctx, addr, loser, true)
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if reply.Promised {
		t.Fatal("expected the lower round to be rejected")
	}
	if reply.Value == nil {
		t.Fatal("expected the rejection to still report the previously accepted value")
	}
	if string(reply.Value.Data()) != "accepted" {
		t.Fatalf("expected the accepted payload, got %q", reply.Value.Data())
	}
}

func TestAcceptorConfirmIsNoOpForSupersededProposal(t *testing.T) {
	srv := newSingleServer(t)
	priv := mustKeyCluster(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("v1"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	ctx := context.Background()
	addr := b.Address()

	p1 := peer.Proposal{Round: 1, Proposer: nodeID(1)}
	if _, err := srv.Propose(ctx, addr, p1, true); err != nil {
		t.Fatalf("propose p1: %v", err)
	}
	if err := srv.Accept(ctx, addr, p1, b); err != nil {
		t.Fatalf("accept p1: %v", err)
	}

	p2 := peer.Proposal{Round: 2, Proposer: nodeID(2)}
	if _, err := srv.Propose(ctx, addr, p2, true); err != nil {
		t.Fatalf("propose p2: %v", err)
	}
	if err := srv.Accept(ctx, addr, p2, b); err != nil {
		t.Fatalf("accept p2: %v", err)
	}

	// Confirming the now-superseded p1 round must be a harmless no-op.
	if err := srv.Confirm(ctx, addr, p1); err != nil {
		t.Fatalf("confirm stale proposal: %v", err)
	}
	res, err := srv.Fetch(ctx, addr, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Confirmed {
		t.Fatal("p1's confirm must not have marked the record confirmed")
	}

	if err := srv.Confirm(ctx, addr, p2); err != nil {
		t.Fatalf("confirm p2: %v", err)
	}
	res, err = srv.Fetch(ctx, addr, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.Confirmed {
		t.Fatal("expected p2's confirm to mark the record confirmed")
	}
}
