package dock

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/overlay"
)

// AuthSyn is the first handshake message: the dialer's passport and a
// random nonce the remote must sign back, proving possession of the
// passport's holder key (§4.3).
type AuthSyn struct {
	Passport *overlay.Passport
	Nonce    [32]byte
}

// AuthAck answers AuthSyn: the acceptor's own passport plus a signature
// over the dialer's nonce.
type AuthAck struct {
	Passport  *overlay.Passport
	NonceSig  []byte
	SelfNonce [32]byte
}

// AuthFin completes the mutual handshake: the dialer signs the acceptor's
// SelfNonce.
type AuthFin struct {
	NonceSig []byte
}

// Handshake performs the three-message mutual authentication described in
// §4.3, verifying both passports against the shared network owner key.
func Handshake(ctx context.Context, self *address.PrivateKey, selfPassport *overlay.Passport, networkOwner *address.PublicKey, send func(Op, []byte) error, recv func() (Op, []byte, error)) (*overlay.Passport, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: nonce generation failed", err)
	}

	synBody, err := encodeAuthSyn(AuthSyn{Passport: selfPassport, Nonce: nonce})
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: encode auth_syn", err)
	}
	if err := send(OpAuthSyn, synBody); err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: send auth_syn", err)
	}

	op, body, err := recv()
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: recv auth_ack", err)
	}
	if op != OpAuthAck {
		return nil, errs.New(errs.KindHandshakeFailed, "dock: expected auth_ack")
	}
	ack, err := decodeAuthAck(body)
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: decode auth_ack", err)
	}
	if err := ack.Passport.Verify(networkOwner); err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: remote passport invalid", err)
	}
	if !ack.Passport.Holder.Verify(nonce[:], ack.NonceSig) {
		return nil, errs.New(errs.KindHandshakeFailed, "dock: remote failed to prove passport key")
	}

	finSig, err := self.Sign(ack.SelfNonce[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: sign fin nonce", err)
	}
	finBody, err := encodeAuthFin(AuthFin{NonceSig: finSig})
	if err != nil {
		return nil, err
	}
	// auth_fin travels as a second auth_syn-tagged frame in the same
	// direction as the opening message; the acceptor distinguishes it by
	// connection state (Handshake, expecting exactly one more message).
	if err := send(OpAuthSyn, finBody); err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: send auth_fin", err)
	}

	return ack.Passport, nil
}

// RespondHandshake is the acceptor's side: read auth_syn, verify it, answer
// with auth_ack, then read and verify auth_fin.
func RespondHandshake(ctx context.Context, self *address.PrivateKey, selfPassport *overlay.Passport, networkOwner *address.PublicKey, send func(Op, []byte) error, recv func() (Op, []byte, error)) (*overlay.Passport, error) {
	op, body, err := recv()
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: recv auth_syn", err)
	}
	if op != OpAuthSyn {
		return nil, errs.New(errs.KindHandshakeFailed, "dock: expected auth_syn")
	}
	syn, err := decodeAuthSyn(body)
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: decode auth_syn", err)
	}
	if err := syn.Passport.Verify(networkOwner); err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: remote passport invalid", err)
	}

	var selfNonce [32]byte
	if _, err := rand.Read(selfNonce[:]); err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: nonce generation failed", err)
	}
	sig, err := self.Sign(syn.Nonce[:])
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: sign syn nonce", err)
	}
	ackBody, err := encodeAuthAck(AuthAck{Passport: selfPassport, NonceSig: sig, SelfNonce: selfNonce})
	if err != nil {
		return nil, err
	}
	if err := send(OpAuthAck, ackBody); err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: send auth_ack", err)
	}

	_, finBody, err := recv()
	if err != nil {
		return nil, errs.Wrap(errs.KindConnectionClosed, "dock: recv auth_fin", err)
	}
	fin, err := decodeAuthFin(finBody)
	if err != nil {
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: decode auth_fin", err)
	}
	if !syn.Passport.Holder.Verify(selfNonce[:], fin.NonceSig) {
		return nil, errs.New(errs.KindHandshakeFailed, "dock: dialer failed to prove passport key")
	}
	return syn.Passport, nil
}

// DefaultHandshakeTimeout bounds the full three-message exchange (§4.3).
const DefaultHandshakeTimeout = 10 * time.Second
