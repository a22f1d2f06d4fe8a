package dock

import (
	"encoding/binary"

	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/overlay"
)

func encodeAuthSyn(syn AuthSyn) ([]byte, error) {
	passport, err := syn.Passport.Encode()
	if err != nil {
		return nil, err
	}
	return append(lengthPrefixed(passport), syn.Nonce[:]...), nil
}

func decodeAuthSyn(buf []byte) (AuthSyn, error) {
	passportBytes, rest, err := readLengthPrefixed(buf)
	if err != nil {
		return AuthSyn{}, err
	}
	passport, err := overlay.DecodePassport(passportBytes)
	if err != nil {
		return AuthSyn{}, err
	}
	if len(rest) != 32 {
		return AuthSyn{}, errs.New(errs.KindHandshakeFailed, "dock: malformed auth_syn nonce")
	}
	var nonce [32]byte
	copy(nonce[:], rest)
	return AuthSyn{Passport: passport, Nonce: nonce}, nil
}

func encodeAuthAck(ack AuthAck) ([]byte, error) {
	passport, err := ack.Passport.Encode()
	if err != nil {
		return nil, err
	}
	buf := lengthPrefixed(passport)
	buf = append(buf, lengthPrefixed(ack.NonceSig)...)
	buf = append(buf, ack.SelfNonce[:]...)
	return buf, nil
}

func decodeAuthAck(buf []byte) (AuthAck, error) {
	passportBytes, rest, err := readLengthPrefixed(buf)
	if err != nil {
		return AuthAck{}, err
	}
	passport, err := overlay.DecodePassport(passportBytes)
	if err != nil {
		return AuthAck{}, err
	}
	sig, rest, err := readLengthPrefixed(rest)
	if err != nil {
		return AuthAck{}, err
	}
	if len(rest) != 32 {
		return AuthAck{}, errs.New(errs.KindHandshakeFailed, "dock: malformed auth_ack nonce")
	}
	var selfNonce [32]byte
	copy(selfNonce[:], rest)
	return AuthAck{Passport: passport, NonceSig: sig, SelfNonce: selfNonce}, nil
}

func encodeAuthFin(fin AuthFin) ([]byte, error) {
	return lengthPrefixed(fin.NonceSig), nil
}

func decodeAuthFin(buf []byte) (AuthFin, error) {
	sig, _, err := readLengthPrefixed(buf)
	if err != nil {
		return AuthFin{}, err
	}
	return AuthFin{NonceSig: sig}, nil
}

func lengthPrefixed(b []byte) []byte {
	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(b)))
	return append(n4[:], b...)
}

func readLengthPrefixed(buf []byte) (data, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, errs.New(errs.KindHandshakeFailed, "dock: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < n {
		return nil, nil, errs.New(errs.KindHandshakeFailed, "dock: truncated field")
	}
	return buf[:n], buf[n:], nil
}
