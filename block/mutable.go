package block

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
)

// Mutable is the owner-key block (OKB): a random address stable across
// updates, carrying a monotonically increasing version sealed by the
// owner's signature over (data, version) (§3.2).
type Mutable struct {
	Addr      address.Address
	OwnerKey  *address.PublicKey
	Salt      []byte
	Version   uint64
	Payload   []byte
	Signature []byte
}

// NewMutableBlock allocates a fresh mutable address for owner.
func NewMutableBlock(owner *address.PublicKey, payload []byte) (*Mutable, error) {
	addr, err := address.NewMutable(address.FlagMutable)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return &Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Payload: payload}, nil
}

func (b *Mutable) Address() address.Address       { return b.Addr }
func (b *Mutable) Data() []byte                   { return b.Payload }
func (b *Mutable) Tag() Tag                       { return TagMutable }
func (b *Mutable) GetVersion() uint64             { return b.Version }
func (b *Mutable) SetVersion(v uint64)            { b.Version = v }
func (b *Mutable) Owner() *address.PublicKey      { return b.OwnerKey }

// signedPayload is the byte string (data, version) that Seal signs, per §3.2.
func (b *Mutable) signedPayload() []byte {
	buf := make([]byte, 8, 8+len(b.Payload))
	binary.BigEndian.PutUint64(buf, b.Version)
	return append(buf, b.Payload...)
}

// Seal increments the version and signs (data, version) with the owner's
// private key.
func (b *Mutable) Seal(priv *address.PrivateKey) error {
	b.Version++
	sig, err := priv.Sign(b.signedPayload())
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

func (b *Mutable) Validate() error {
	if b.OwnerKey == nil {
		return errs.New(errs.KindValidationFailed, "mutable: missing owner key")
	}
	if !b.OwnerKey.Verify(b.signedPayload(), b.Signature) {
		return errs.New(errs.KindValidationFailed, "mutable: bad signature")
	}
	return nil
}

func (b *Mutable) Clone() Block {
	cp := *b
	cp.Salt = append([]byte(nil), b.Salt...)
	cp.Payload = append([]byte(nil), b.Payload...)
	cp.Signature = append([]byte(nil), b.Signature...)
	return &cp
}

// SignRemove requires a signature by the private key matching the embedded
// owner key (§3.3).
func (b *Mutable) SignRemove(priv *address.PrivateKey) (RemoveSignature, error) {
	pub := priv.Public()
	if b.OwnerKey == nil || !pub.Equal(b.OwnerKey) {
		return RemoveSignature{}, errs.New(errs.KindPermissionDenied, "mutable: remove requires owner key")
	}
	sig, err := priv.Sign(b.Addr[:])
	if err != nil {
		return RemoveSignature{}, err
	}
	return RemoveSignature{Signer: pub, Signature: sig}, nil
}

func (b *Mutable) CheckRemove(rs RemoveSignature) error {
	if rs.Signer == nil || !rs.Signer.Equal(b.OwnerKey) {
		return errs.New(errs.KindPermissionDenied, "mutable: remove requires owner signature")
	}
	if !b.OwnerKey.Verify(b.Addr[:], rs.Signature) {
		return errs.New(errs.KindValidationFailed, "mutable: bad remove signature")
	}
	return nil
}
