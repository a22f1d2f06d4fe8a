// Package block implements the four block variants of spec §3.2: immutable
// content-addressed blocks (CHB), mutable owner-keyed blocks (OKB), ACL
// blocks (ACB) and named blocks (NB). They share one interface and are
// dispatched as a tagged-variant sum type (Design Notes §9: "one layer of
// variant is sufficient" — no deep class hierarchy).
package block

import (
	"github.com/meshvault/core/address"
)

// Tag identifies a block variant on the wire (§6.1).
type Tag byte

const (
	TagImmutable Tag = 1
	TagMutable   Tag = 2
	TagACL       Tag = 3
	TagNamed     Tag = 4
)

// Mode selects insert-only or update-only semantics for a write (§4.1's
// silo.set insert_flag/update_flag, surfaced again at the block/model layer).
type Mode int

const (
	ModeInsert Mode = iota
	ModeUpdate
	// ModeUpsert requires neither absence nor presence — used when
	// propagating a value to a replica that may or may not have seen the
	// address yet (rebalancing, Resign).
	ModeUpsert
)

// RemoveSignature authorizes removing a block (§3.3). Signer is nil when the
// variant permits anyone to remove (null-owner immutable/named blocks).
type RemoveSignature struct {
	Signer    *address.PublicKey
	Signature []byte
}

// Block is the operation set every variant implements: validate(), seal(),
// clone(), sign_remove() from spec §3.2, plus the address/data/tag accessors
// needed by the silo and consensus layers.
type Block interface {
	Address() address.Address
	Data() []byte
	Tag() Tag

	// Validate recomputes/verifies the address-content or owner-signature
	// binding (§3.3's first invariant).
	Validate() error

	// Seal finalizes a block before submission: immutable blocks are not
	// signed (their Seal is a no-op), named blocks sign once, mutable/ACL
	// blocks increment version and re-sign.
	Seal(priv *address.PrivateKey) error

	// Clone deep-copies the block so callers may mutate a proposal without
	// aliasing the original (used heavily by consensus retries).
	Clone() Block

	// SignRemove derives the signature required to remove this block.
	SignRemove(priv *address.PrivateKey) (RemoveSignature, error)

	// CheckRemove verifies a RemoveSignature against this block's removal
	// policy (§3.3's fourth invariant).
	CheckRemove(rs RemoveSignature) error
}

// Versioned is implemented by the mutable variants (OKB, ACB) so consensus
// can compare/advance versions without a type switch on every call site.
type Versioned interface {
	Block
	GetVersion() uint64
	SetVersion(uint64)
	Owner() *address.PublicKey
}
