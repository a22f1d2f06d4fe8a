// Package model is the typed façade the rest of the system consumes (spec
// §4.6, component C8): block constructors plus insert/update/fetch/remove,
// each sealing or validating as needed and driving consensus.Protocol,
// retrying a bounded number of times against a caller-supplied resolver
// when a write loses a Paxos race.
package model

import (
	"context"
	"errors"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/config"
	"github.com/meshvault/core/consensus"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/resolver"
)

// Facade is the entry point a caller (CLI, embedding application) holds.
type Facade struct {
	protocol consensus.Protocol
	cfg      config.Config
}

// New builds a Facade over an already-constructed consensus Client (or any
// other Protocol implementation, e.g. a test double).
func New(protocol consensus.Protocol, cfg config.Config) *Facade {
	if cfg.MaxConflictRetries <= 0 {
		cfg = config.DefaultConfig()
	}
	return &Facade{protocol: protocol, cfg: cfg}
}

// MakeImmutableBlock constructs a content-addressed block (CHB) ready for
// Insert (§4.6).
func (f *Facade) MakeImmutableBlock(owner *address.PublicKey, payload, salt []byte) (*block.Immutable, error) {
	return block.NewImmutableBlock(owner, payload, salt)
}

// MakeMutableBlock constructs an owner-keyed block (OKB) ready for Insert.
func (f *Facade) MakeMutableBlock(owner *address.PublicKey, payload []byte) (*block.Mutable, error) {
	return block.NewMutableBlock(owner, payload)
}

// MakeACLBlock constructs an ACL block (ACB), owner recorded as the first
// full-permission entry.
func (f *Facade) MakeACLBlock(owner *address.PublicKey, payload []byte, worldRead, worldWrite bool) (*block.ACL, error) {
	return block.NewACLBlock(owner, payload, worldRead, worldWrite)
}

// MakeNamedBlock constructs a named block (NB) under owner+name.
func (f *Facade) MakeNamedBlock(owner *address.PublicKey, name string, payload []byte) (*block.Named, error) {
	return block.NewNamedBlock(owner, name, payload)
}

// Insert seals b (immutable Seal is a no-op, a named block signs once, and
// mutable/ACL blocks bump version and re-sign on every call, so a caller
// passes an already-built but unsealed block) and
// drives a Paxos insert, retrying through resolver on Conflict up to
// cfg.MaxConflictRetries times (§4.6).
func (f *Facade) Insert(ctx context.Context, priv *address.PrivateKey, b block.Block, res resolver.Resolver) error {
	if err := b.Seal(priv); err != nil {
		return err
	}
	return f.retry(ctx, priv, b, res, f.protocol.Insert)
}

// Update seals b with version+1 and drives a Paxos update, invoking
// resolver on Conflict with (proposed, current) and retrying with the
// resolver's merged block.
func (f *Facade) Update(ctx context.Context, priv *address.PrivateKey, b block.Block, res resolver.Resolver) error {
	if err := b.Seal(priv); err != nil {
		return err
	}
	return f.retry(ctx, priv, b, res, f.protocol.Update)
}

// Fetch returns addr's current value, validated, optionally decrypted via
// decryptKey for an ACL block that isn't world-readable.
func (f *Facade) Fetch(ctx context.Context, addr address.Address, localVersion uint64, decryptKey *address.PrivateKey) (block.Block, []byte, error) {
	b, err := f.protocol.Fetch(ctx, addr, localVersion)
	if err != nil {
		return nil, nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, nil, err
	}
	if acl, ok := b.(*block.ACL); ok && decryptKey != nil {
		data, err := acl.Decrypt(decryptKey)
		if err != nil {
			return b, nil, err
		}
		return b, data, nil
	}
	return b, b.Data(), nil
}

// Remove deletes addr. If sig is the zero value, Remove fetches the current
// block first and derives a remove-signature from priv. An anonymous named
// block (nil owner) may only be removed when cfg.AllowAnonymousNamedRemove
// is set, enforced here regardless of whether sig was supplied, since
// Named.CheckRemove itself imposes no owner check for that case.
func (f *Facade) Remove(ctx context.Context, priv *address.PrivateKey, addr address.Address, sig *block.RemoveSignature) error {
	b, _, err := f.Fetch(ctx, addr, 0, nil)
	if err != nil {
		return err
	}
	if nb, ok := b.(*block.Named); ok && nb.Owner() == nil && !f.cfg.AllowAnonymousNamedRemove {
		return errs.New(errs.KindPermissionDenied, "model: anonymous named block removal is disabled")
	}
	if sig == nil {
		derived, err := b.SignRemove(priv)
		if err != nil {
			return err
		}
		sig = &derived
	}
	return f.protocol.Remove(ctx, addr, *sig)
}

func asConflict(err error) (*errs.Conflict, bool) {
	var c *errs.Conflict
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}
