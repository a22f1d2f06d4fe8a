package overlay

import (
	"encoding/binary"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
)

// Capability is one grant a Passport may carry.
type Capability byte

const (
	CapRead Capability = 1 << iota
	CapWrite
	CapStorage
	CapSignFurtherPassports
)

func (c Capability) Has(cap Capability) bool { return c&cap != 0 }

// Passport is a signed claim that a public key may participate in a given
// network with enumerated capabilities (Glossary). It authenticates a
// remote during the dock handshake (§4.3).
type Passport struct {
	NetworkID   [16]byte
	Holder      *address.PublicKey
	Capabilities Capability
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Signature   []byte
}

func (p *Passport) signedPayload() []byte {
	holderBytes, _ := p.Holder.Bytes()
	buf := append([]byte(nil), p.NetworkID[:]...)
	buf = append(buf, holderBytes...)
	buf = append(buf, byte(p.Capabilities))
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], uint64(p.IssuedAt.Unix()))
	buf = append(buf, t[:]...)
	binary.BigEndian.PutUint64(t[:], uint64(p.ExpiresAt.Unix()))
	buf = append(buf, t[:]...)
	return buf
}

// IssuePassport signs a Passport for holder with the network owner's key
// (the holder of CapSignFurtherPassports for this network).
func IssuePassport(networkOwner *address.PrivateKey, networkID [16]byte, holder *address.PublicKey, caps Capability, ttl time.Duration) (*Passport, error) {
	now := time.Now()
	p := &Passport{NetworkID: networkID, Holder: holder, Capabilities: caps, IssuedAt: now, ExpiresAt: now.Add(ttl)}
	sig, err := networkOwner.Sign(p.signedPayload())
	if err != nil {
		return nil, err
	}
	p.Signature = sig
	return p, nil
}

// Verify checks the passport's signature against the claimed network owner
// key, and that it has not expired (§4.2: "authenticates a remote by
// verifying a passport signature").
func (p *Passport) Verify(networkOwner *address.PublicKey) error {
	if time.Now().After(p.ExpiresAt) {
		return errs.New(errs.KindValidationFailed, "passport: expired")
	}
	if !networkOwner.Verify(p.signedPayload(), p.Signature) {
		return errs.New(errs.KindValidationFailed, "passport: bad signature")
	}
	return nil
}

// Encode serializes a Passport for the dock handshake (§4.3's auth_syn/
// auth_ack carry one each).
func (p *Passport) Encode() ([]byte, error) {
	holderBytes, err := p.Holder.Bytes()
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = append(buf, p.NetworkID[:]...)
	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(holderBytes)))
	buf = append(buf, n4[:]...)
	buf = append(buf, holderBytes...)
	buf = append(buf, byte(p.Capabilities))
	var t [8]byte
	binary.BigEndian.PutUint64(t[:], uint64(p.IssuedAt.Unix()))
	buf = append(buf, t[:]...)
	binary.BigEndian.PutUint64(t[:], uint64(p.ExpiresAt.Unix()))
	buf = append(buf, t[:]...)
	binary.BigEndian.PutUint32(n4[:], uint32(len(p.Signature)))
	buf = append(buf, n4[:]...)
	buf = append(buf, p.Signature...)
	return buf, nil
}

// DecodePassport parses the wire form produced by Encode.
func DecodePassport(buf []byte) (*Passport, error) {
	p := &Passport{}
	if len(buf) < 16+4 {
		return nil, errs.New(errs.KindValidationFailed, "passport: short buffer")
	}
	copy(p.NetworkID[:], buf[:16])
	buf = buf[16:]

	holderLen := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < holderLen {
		return nil, errs.New(errs.KindValidationFailed, "passport: truncated holder key")
	}
	holder, err := address.ParsePublicKey(buf[:holderLen])
	if err != nil {
		return nil, err
	}
	p.Holder = holder
	buf = buf[holderLen:]

	if len(buf) < 1+8+8+4 {
		return nil, errs.New(errs.KindValidationFailed, "passport: truncated")
	}
	p.Capabilities = Capability(buf[0])
	buf = buf[1:]
	p.IssuedAt = time.Unix(int64(binary.BigEndian.Uint64(buf[:8])), 0)
	buf = buf[8:]
	p.ExpiresAt = time.Unix(int64(binary.BigEndian.Uint64(buf[:8])), 0)
	buf = buf[8:]

	sigLen := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < sigLen {
		return nil, errs.New(errs.KindValidationFailed, "passport: truncated signature")
	}
	p.Signature = append([]byte(nil), buf[:sigLen]...)
	return p, nil
}
