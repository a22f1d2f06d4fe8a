package block

import (
	"crypto/rand"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
)

// Immutable is the content-hash block (CHB): address = H(owner ∥ payload ∥
// salt). A nil Owner means anyone may remove it (§3.2).
type Immutable struct {
	Addr    address.Address
	Owner   *address.PublicKey
	Payload []byte
	Salt    []byte
}

// NewImmutableBlock derives the address from owner+payload+salt. salt is
// generated if nil.
func NewImmutableBlock(owner *address.PublicKey, payload []byte, salt []byte) (*Immutable, error) {
	if salt == nil {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
	}
	ownerBytes, err := owner.Bytes()
	if err != nil {
		return nil, err
	}
	addr := address.NewImmutable(ownerBytes, payload, salt)
	return &Immutable{Addr: addr, Owner: owner, Payload: payload, Salt: salt}, nil
}

func (b *Immutable) Address() address.Address { return b.Addr }
func (b *Immutable) Data() []byte             { return b.Payload }
func (b *Immutable) Tag() Tag                 { return TagImmutable }

func (b *Immutable) Validate() error {
	ownerBytes, err := b.Owner.Bytes()
	if err != nil {
		return errs.Wrap(errs.KindValidationFailed, "immutable: owner key", err)
	}
	want := address.NewImmutable(ownerBytes, b.Payload, b.Salt)
	if !want.Equal(b.Addr) {
		return errs.New(errs.KindValidationFailed, "immutable: address does not match content hash")
	}
	return nil
}

// Seal is a no-op for immutable blocks: they are self-certifying by address,
// nothing is signed.
func (b *Immutable) Seal(_ *address.PrivateKey) error { return nil }

func (b *Immutable) Clone() Block {
	cp := *b
	cp.Payload = append([]byte(nil), b.Payload...)
	cp.Salt = append([]byte(nil), b.Salt...)
	return &cp
}

// SignRemove signs the address with the owner's key; a null owner requires
// no signature (anyone may remove, per §3.2).
func (b *Immutable) SignRemove(priv *address.PrivateKey) (RemoveSignature, error) {
	if b.Owner == nil {
		return RemoveSignature{}, nil
	}
	sig, err := priv.Sign(b.Addr[:])
	if err != nil {
		return RemoveSignature{}, err
	}
	return RemoveSignature{Signer: priv.Public(), Signature: sig}, nil
}

func (b *Immutable) CheckRemove(rs RemoveSignature) error {
	if b.Owner == nil {
		return nil
	}
	if rs.Signer == nil || !rs.Signer.Equal(b.Owner) {
		return errs.New(errs.KindPermissionDenied, "immutable: remove requires owner signature")
	}
	if !b.Owner.Verify(b.Addr[:], rs.Signature) {
		return errs.New(errs.KindValidationFailed, "immutable: bad remove signature")
	}
	return nil
}
