package resolver_test

import (
	"testing"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/resolver"
)

func mustKey(t *testing.T) *address.PrivateKey {
	t.Helper()
	priv, err := address.GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestDummyResolveRebasesVersion(t *testing.T) {
	priv := mustKey(t)
	proposed, err := block.NewMutableBlock(priv.Public(), []byte("mine"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	if err := proposed.Seal(priv); err != nil {
		t.Fatalf("seal: %v", err)
	}

	current, err := block.NewMutableBlock(priv.Public(), []byte("theirs"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	current.Addr = proposed.Addr
	for i := 0; i < 3; i++ {
		if err := current.Seal(priv); err != nil {
			t.Fatalf("seal: %v", err)
		}
	}

	merged, err := resolver.Dummy{}.Resolve(proposed, current)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	mv := merged.(block.Versioned)
	if mv.GetVersion() != current.GetVersion() {
		t.Fatalf("expected rebased version %d, got %d", current.GetVersion(), mv.GetVersion())
	}
	if merged.Data() == nil || string(merged.Data()) != "mine" {
		t.Fatalf("dummy should keep proposed payload, got %q", merged.Data())
	}
}

func TestDummySquashesAlways(t *testing.T) {
	if (resolver.Dummy{}).Squashable(nil) != resolver.Squash {
		t.Fatal("dummy must always squash")
	}
}

type recordingResolver struct {
	tag string
}

func (r recordingResolver) Resolve(proposed, current block.Block) (block.Block, error) {
	return proposed, nil
}
func (r recordingResolver) Squashable([]resolver.Resolver) resolver.Decision { return resolver.Stop }
func (r recordingResolver) Description() string                             { return r.tag }

func TestMergeAppliesSubResolversInOrder(t *testing.T) {
	priv := mustKey(t)
	b, err := block.NewMutableBlock(priv.Public(), []byte("x"))
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	m := resolver.New(recordingResolver{tag: "a"}, recordingResolver{tag: "b"})
	merged, err := m.Resolve(b, b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if merged != block.Block(b) {
		t.Fatalf("expected pass-through result, got different block")
	}
	if m.Description() != "merge(a, b)" {
		t.Fatalf("unexpected description: %s", m.Description())
	}
}

func TestMergeSquashesOwnKind(t *testing.T) {
	m := resolver.New()
	if m.Squashable(nil) != resolver.Stop {
		t.Fatal("empty stack must not squash")
	}
	if m.Squashable([]resolver.Resolver{m}) != resolver.Squash {
		t.Fatal("a repeated Merge must squash its own kind")
	}
	if m.Squashable([]resolver.Resolver{resolver.Dummy{}}) != resolver.Stop {
		t.Fatal("a different resolver kind on top of the stack must not squash")
	}
}
