package overlay

import (
	"time"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
)

// PQNetworkKey is a post-quantum (Dilithium mode3) alternative to an RSA
// network-owner key for issuing passports, for deployments that want a
// quantum-resistant trust root rather than the default RSA one; the
// single-key signing model stays the same, only the algorithm swaps.
type PQNetworkKey struct {
	Public  *mode3.PublicKey
	Private *mode3.PrivateKey
}

// GeneratePQNetworkKey creates a fresh Dilithium mode3 key pair.
func GeneratePQNetworkKey() (*PQNetworkKey, error) {
	pub, priv, err := mode3.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &PQNetworkKey{Public: pub, Private: priv}, nil
}

// IssuePQPassport signs a Passport with a Dilithium network key instead of
// the RSA owner key IssuePassport uses.
func IssuePQPassport(networkKey *PQNetworkKey, networkID [16]byte, holder *address.PublicKey, caps Capability, ttl time.Duration) (*Passport, error) {
	now := time.Now()
	p := &Passport{NetworkID: networkID, Holder: holder, Capabilities: caps, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(networkKey.Private, p.signedPayload(), sig)
	p.Signature = sig
	return p, nil
}

// VerifyPQ checks a Passport issued by IssuePQPassport against the
// network's Dilithium public key.
func VerifyPQ(p *Passport, networkPublic *mode3.PublicKey) error {
	if time.Now().After(p.ExpiresAt) {
		return errs.New(errs.KindValidationFailed, "passport: expired")
	}
	if !mode3.Verify(networkPublic, p.signedPayload(), p.Signature) {
		return errs.New(errs.KindValidationFailed, "passport: bad pq signature")
	}
	return nil
}
