package block

import "github.com/meshvault/core/address"
import "github.com/meshvault/core/errs"

// Named is the named block (NB): address = H(owner ∥ name), an immutable
// payload bound to an owner and published under a well-known name (§3.2).
type Named struct {
	Addr      address.Address
	OwnerKey  *address.PublicKey
	Name      string
	Payload   []byte
	Signature []byte
}

// NewNamedBlock derives the address from owner+name. A nil owner publishes
// an anonymous name; whether it may later be removed is governed by
// config.Config.AllowAnonymousNamedRemove.
func NewNamedBlock(owner *address.PublicKey, name string, payload []byte) (*Named, error) {
	ownerBytes, err := owner.Bytes()
	if err != nil {
		return nil, err
	}
	addr := address.NewNamed(ownerBytes, name)
	return &Named{Addr: addr, OwnerKey: owner, Name: name, Payload: payload}, nil
}

func (b *Named) Address() address.Address  { return b.Addr }
func (b *Named) Data() []byte              { return b.Payload }
func (b *Named) Tag() Tag                  { return TagNamed }
func (b *Named) GetVersion() uint64        { return 0 }
func (b *Named) SetVersion(uint64)         {}
func (b *Named) Owner() *address.PublicKey { return b.OwnerKey }

func (b *Named) signedPayload() []byte { return append([]byte(b.Name), b.Payload...) }

func (b *Named) Seal(priv *address.PrivateKey) error {
	sig, err := priv.Sign(b.signedPayload())
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

func (b *Named) Validate() error {
	var ownerBytes []byte
	var err error
	if b.OwnerKey != nil {
		if ownerBytes, err = b.OwnerKey.Bytes(); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "named: owner key", err)
		}
	}
	want := address.NewNamed(ownerBytes, b.Name)
	if !want.Equal(b.Addr) {
		return errs.New(errs.KindValidationFailed, "named: address does not match owner+name")
	}
	if b.OwnerKey != nil && !b.OwnerKey.Verify(b.signedPayload(), b.Signature) {
		return errs.New(errs.KindValidationFailed, "named: bad signature")
	}
	return nil
}

func (b *Named) Clone() Block {
	cp := *b
	cp.Payload = append([]byte(nil), b.Payload...)
	cp.Signature = append([]byte(nil), b.Signature...)
	return &cp
}

func (b *Named) SignRemove(priv *address.PrivateKey) (RemoveSignature, error) {
	if b.OwnerKey == nil {
		// Anonymous named block: signature, if any, is advisory only — the
		// consuming model layer enforces AllowAnonymousNamedRemove.
		return RemoveSignature{}, nil
	}
	sig, err := priv.Sign(b.Addr[:])
	if err != nil {
		return RemoveSignature{}, err
	}
	return RemoveSignature{Signer: priv.Public(), Signature: sig}, nil
}

func (b *Named) CheckRemove(rs RemoveSignature) error {
	if b.OwnerKey == nil {
		// Policy enforced by the model façade (config.AllowAnonymousNamedRemove);
		// the block layer itself imposes no owner check for anonymous names.
		return nil
	}
	if rs.Signer == nil || !rs.Signer.Equal(b.OwnerKey) {
		return errs.New(errs.KindPermissionDenied, "named: remove requires owner signature")
	}
	if !b.OwnerKey.Verify(b.Addr[:], rs.Signature) {
		return errs.New(errs.KindValidationFailed, "named: bad remove signature")
	}
	return nil
}
