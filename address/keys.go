package address

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
)

// PrivateKey wraps an RSA private key with the Sign/Unseal operations blocks
// use to authenticate mutations and decrypt ACL data keys.
type PrivateKey struct {
	*rsa.PrivateKey
}

// PublicKey wraps an RSA public key with the Verify/Seal operations.
type PublicKey struct {
	*rsa.PublicKey
}

// GenerateKeyPair creates a new owner key pair. bits defaults to 2048 when 0.
func GenerateKeyPair(bits int) (*PrivateKey, error) {
	if bits == 0 {
		bits = 2048
	}
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{k}, nil
}

// Public returns the corresponding public half.
func (k *PrivateKey) Public() *PublicKey { return &PublicKey{&k.PrivateKey.PublicKey} }

// Sign signs data with RSA-PSS over SHA-256.
func (k *PrivateKey) Sign(data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPSS(rand.Reader, k.PrivateKey, crypto.SHA256, digest[:], nil)
}

// Verify checks an RSA-PSS signature produced by Sign.
func (pk *PublicKey) Verify(data, sig []byte) bool {
	if pk == nil || pk.PublicKey == nil {
		return false
	}
	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(pk.PublicKey, crypto.SHA256, digest[:], sig, nil) == nil
}

// Seal encrypts plaintext (e.g. an ACL data key) to
// this public key using RSA-OAEP.
func (pk *PublicKey) Seal(plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), rand.Reader, pk.PublicKey, plaintext, nil)
}

// Unseal decrypts ciphertext produced by (*PublicKey).Seal.
func (k *PrivateKey) Unseal(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha256.New(), rand.Reader, k.PrivateKey, ciphertext, nil)
}

// Bytes returns the DER encoding (SubjectPublicKeyInfo) of the public key,
// the form blocks embed on the wire (§6.1's owner_public_key field).
func (pk *PublicKey) Bytes() ([]byte, error) {
	if pk == nil || pk.PublicKey == nil {
		return nil, nil
	}
	return x509.MarshalPKIXPublicKey(pk.PublicKey)
}

// ParsePublicKey parses the DER encoding produced by Bytes.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	if len(b) == 0 {
		return nil, nil
	}
	p, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, err
	}
	rp, ok := p.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("address: not an RSA public key")
	}
	return &PublicKey{rp}, nil
}

// Equal reports whether two public keys (including nil) are the same.
func (pk *PublicKey) Equal(other *PublicKey) bool {
	if pk == nil || other == nil {
		return pk == other
	}
	if pk.PublicKey == nil || other.PublicKey == nil {
		return pk.PublicKey == other.PublicKey
	}
	return pk.PublicKey.Equal(other.PublicKey)
}

// ShortHash derives the small integer id the dock's key cache indexes
// repeated reader/writer references by (spec §4.3).
func (pk *PublicKey) ShortHash() (uint64, error) {
	b, err := pk.Bytes()
	if err != nil {
		return 0, err
	}
	h := sha256.Sum256(b)
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(h[i])
	}
	return v, nil
}
