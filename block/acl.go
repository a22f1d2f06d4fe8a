package block

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
)

// ACLEntry is one reader/writer permission record (§3.2). Key is the entry's
// public key; KeyID is the dock key-cache id it resolves to on the wire
// (§4.3), populated once the key has been cached.
type ACLEntry struct {
	KeyID         uint64
	Key           *address.PublicKey
	Read          bool
	Write         bool
	IsAdmin       bool
	IsOwner       bool
	SealedDataKey []byte
}

// ACL is the ACL block (ACB): a Mutable base plus world permissions, a
// reader/writer list, and a per-version data encryption key sealed once per
// authorized reader (§3.2).
type ACL struct {
	Mutable
	WorldRead     bool
	WorldWrite    bool
	Entries       []ACLEntry
	EncryptedData []byte // nonce ‖ ciphertext, when WorldRead is false
}

// NewACLBlock allocates a fresh ACL address for owner, who is recorded as
// entries[0] with full permissions.
func NewACLBlock(owner *address.PublicKey, payload []byte, worldRead, worldWrite bool) (*ACL, error) {
	addr, err := address.NewMutable(address.FlagACL)
	if err != nil {
		return nil, err
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return &ACL{
		Mutable: Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Payload: payload},
		WorldRead: worldRead, WorldWrite: worldWrite,
		Entries: []ACLEntry{{Key: owner, Read: true, Write: true, IsAdmin: true, IsOwner: true}},
	}, nil
}

func (b *ACL) Tag() Tag { return TagACL }

func (b *ACL) Data() []byte {
	if b.WorldRead {
		return b.Payload
	}
	return b.EncryptedData
}

// signedDigest is (version, encrypted_data, quorum_of_readers) — the value
// Seal signs, per §3.2.
func (b *ACL) signedDigest() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, b.Version)
	buf = append(buf, boolByte(b.WorldRead), boolByte(b.WorldWrite))
	if b.WorldRead {
		buf = append(buf, b.Payload...)
	} else {
		buf = append(buf, b.EncryptedData...)
	}
	for _, e := range b.Entries {
		idBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(idBuf, e.KeyID)
		buf = append(buf, idBuf...)
		buf = append(buf, boolByte(e.Read), boolByte(e.Write))
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Seal increments version, re-derives a symmetric data key (unless
// WorldRead), re-seals it for each authorized reader, and signs
// (version, encrypted_data, quorum_of_readers) (§3.2).
func (b *ACL) Seal(priv *address.PrivateKey) error {
	b.Version++
	if !b.WorldRead {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		ciphertext, nonce, err := encryptAESGCM(key, b.Payload)
		if err != nil {
			return err
		}
		b.EncryptedData = append(append([]byte(nil), nonce...), ciphertext...)
		for i := range b.Entries {
			e := &b.Entries[i]
			if e.Read && e.Key != nil {
				sealed, err := e.Key.Seal(key)
				if err != nil {
					return err
				}
				e.SealedDataKey = sealed
			}
		}
	}
	sig, err := priv.Sign(b.signedDigest())
	if err != nil {
		return err
	}
	b.Signature = sig
	return nil
}

func (b *ACL) Validate() error {
	if b.OwnerKey == nil {
		return errs.New(errs.KindValidationFailed, "acl: missing owner key")
	}
	if !b.OwnerKey.Verify(b.signedDigest(), b.Signature) {
		return errs.New(errs.KindValidationFailed, "acl: bad signature")
	}
	return nil
}

func (b *ACL) Clone() Block {
	cp := *b
	cp.Mutable = *(b.Mutable.Clone().(*Mutable))
	cp.Entries = append([]ACLEntry(nil), b.Entries...)
	cp.EncryptedData = append([]byte(nil), b.EncryptedData...)
	return &cp
}

// Decrypt returns the plaintext payload for priv, enforcing §3.3's third
// invariant: readable iff the reader's key has read=true, or world_read.
func (b *ACL) Decrypt(priv *address.PrivateKey) ([]byte, error) {
	if b.WorldRead {
		return b.Payload, nil
	}
	pub := priv.Public()
	for _, e := range b.Entries {
		if e.Read && e.Key != nil && e.Key.Equal(pub) {
			key, err := priv.Unseal(e.SealedDataKey)
			if err != nil {
				return nil, errs.Wrap(errs.KindPermissionDenied, "acl: unseal data key", err)
			}
			if len(b.EncryptedData) < 12 {
				return nil, errs.New(errs.KindValidationFailed, "acl: truncated ciphertext")
			}
			return decryptAESGCM(key, b.EncryptedData[:12], b.EncryptedData[12:])
		}
	}
	return nil, errs.New(errs.KindPermissionDenied, "acl: key not authorized to read")
}

// SignRemove for ACL blocks requires a writer's signature (§3.3: "by a
// writer (ACL)").
func (b *ACL) SignRemove(priv *address.PrivateKey) (RemoveSignature, error) {
	pub := priv.Public()
	authorized := false
	for _, e := range b.Entries {
		if e.Write && e.Key != nil && e.Key.Equal(pub) {
			authorized = true
			break
		}
	}
	if !authorized && !b.WorldWrite {
		return RemoveSignature{}, errs.New(errs.KindPermissionDenied, "acl: remove requires a writer")
	}
	sig, err := priv.Sign(b.Addr[:])
	if err != nil {
		return RemoveSignature{}, err
	}
	return RemoveSignature{Signer: pub, Signature: sig}, nil
}

func (b *ACL) CheckRemove(rs RemoveSignature) error {
	if b.WorldWrite {
		if rs.Signer != nil && !rs.Signer.Verify(b.Addr[:], rs.Signature) {
			return errs.New(errs.KindValidationFailed, "acl: bad remove signature")
		}
		return nil
	}
	for _, e := range b.Entries {
		if e.Write && e.Key != nil && rs.Signer != nil && e.Key.Equal(rs.Signer) {
			if !e.Key.Verify(b.Addr[:], rs.Signature) {
				return errs.New(errs.KindValidationFailed, "acl: bad remove signature")
			}
			return nil
		}
	}
	return errs.New(errs.KindPermissionDenied, "acl: remove signer is not a writer")
}

func encryptAESGCM(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func decryptAESGCM(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
