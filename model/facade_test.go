package model_test

import (
	"context"
	"testing"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/model"
	"github.com/meshvault/core/resolver"
)

// fakeProtocol is a minimal in-memory consensus.Protocol double: Update
// returns one Conflict against conflictValue before accepting, so tests can
// exercise the façade's retry loop without a real Paxos quorum.
type fakeProtocol struct {
	store         map[address.Address]block.Block
	conflictValue block.Block
	conflictsLeft int
}

func newFakeProtocol() *fakeProtocol {
	return &fakeProtocol{store: map[address.Address]block.Block{}}
}

func (f *fakeProtocol) Insert(ctx context.Context, b block.Block) error {
	if _, ok := f.store[b.Address()]; ok {
		return errs.New(errs.KindCollision, "fake: already exists")
	}
	f.store[b.Address()] = b
	return nil
}

func (f *fakeProtocol) Update(ctx context.Context, b block.Block) error {
	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		return &errs.Conflict{Address: b.Address().String(), CurrentValue: f.conflictValue}
	}
	f.store[b.Address()] = b
	return nil
}

func (f *fakeProtocol) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (block.Block, error) {
	b, ok := f.store[addr]
	if !ok {
		return nil, errs.New(errs.KindMissingBlock, "fake: no value")
	}
	return b, nil
}

func (f *fakeProtocol) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	delete(f.store, addr)
	return nil
}

func mustKey(t *testing.T) *address.PrivateKey {
	t.Helper()
	priv, err := address.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestInsertFetchRoundTrip(t *testing.T) {
	priv := mustKey(t)
	proto := newFakeProtocol()
	f := model.New(proto, config.DefaultConfig())

	b, err := f.MakeImmutableBlock(priv.Public(), []byte("hello"), []byte("salt1234salt5678"))
	if err != nil {
		t.Fatalf("make block: %v", err)
	}
	if err := f.Insert(context.Background(), priv, b, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, data, err := f.Fetch(context.Background(), b.Address(), 0, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
	if got.Address() != b.Address() {
		t.Fatalf("address mismatch")
	}
}

func TestUpdateRetriesThroughResolverOnConflict(t *testing.T) {
	priv := mustKey(t)
	proto := newFakeProtocol()
	f := model.New(proto, config.DefaultConfig())

	b, err := f.MakeMutableBlock(priv.Public(), []byte("mine"))
	if err != nil {
		t.Fatalf("make block: %v", err)
	}
	if err := f.Insert(context.Background(), priv, b, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}

	current, err := f.MakeMutableBlock(priv.Public(), []byte("theirs"))
	if err != nil {
		t.Fatalf("make block: %v", err)
	}
	current.Addr = b.Address()
	for i := 0; i < 4; i++ {
		if err := current.Seal(priv); err != nil {
			t.Fatalf("seal: %v", err)
		}
	}
	proto.conflictValue = current
	proto.conflictsLeft = 1

	next, err := f.MakeMutableBlock(priv.Public(), []byte("mine v2"))
	if err != nil {
		t.Fatalf("make block: %v", err)
	}
	next.Addr = b.Address()
	next.Version = b.Version

	if err := f.Update(context.Background(), priv, next, resolver.Dummy{}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, data, err := f.Fetch(context.Background(), b.Address(), 0, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "mine v2" {
		t.Fatalf("expected the resolved write to land, got %q", data)
	}
	if got.(block.Versioned).GetVersion() <= current.GetVersion() {
		t.Fatalf("resolved version should be rebased past the conflicting one")
	}
}

func TestRemoveDerivesSignatureFromOwnerKey(t *testing.T) {
	priv := mustKey(t)
	proto := newFakeProtocol()
	f := model.New(proto, config.DefaultConfig())

	b, err := f.MakeImmutableBlock(priv.Public(), []byte("gone soon"), []byte("salt1234salt5678"))
	if err != nil {
		t.Fatalf("make block: %v", err)
	}
	if err := f.Insert(context.Background(), priv, b, nil); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := f.Remove(context.Background(), priv, b.Address(), nil); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, _, err := f.Fetch(context.Background(), b.Address(), 0, nil); err == nil {
		t.Fatal("expected fetch to fail after remove")
	}
}
