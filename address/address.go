// Package address implements the storage core's 32-byte content-addressed
// identifiers (spec §3.1) and the RSA key-pair primitives blocks are signed
// and sealed with (spec C1).
package address

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Size is the fixed byte length of an Address, including the trailing
// type-flag byte.
const Size = 32

// Flag distinguishes the address derivation scheme, stored in the address's
// last byte (spec §3.1).
type Flag byte

const (
	FlagImmutable Flag = 0
	FlagMutable   Flag = 1
	FlagNamed     Flag = 2
	FlagACL       Flag = 3
)

func (f Flag) IsMutable() bool { return f == FlagMutable || f == FlagACL }

// Address is a 32-byte content- or owner-derived identifier.
type Address [Size]byte

// Flag returns the type-flag byte.
func (a Address) Flag() Flag { return Flag(a[Size-1]) }

// IsMutable reports whether this address names a mutable-base or ACL block.
func (a Address) IsMutable() bool { return a.Flag().IsMutable() }

func (a Address) String() string { return hex.EncodeToString(a[:]) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != Size {
		return errors.New("address: wrong length")
	}
	copy(a[:], b)
	return nil
}

func (a Address) Equal(b Address) bool { return bytes.Equal(a[:], b[:]) }

func (a Address) Bytes() []byte { return a[:] }

// FromBytes parses a raw 32-byte slice into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, errors.New("address: wrong length")
	}
	copy(a[:], b)
	return a, nil
}

// NewImmutable derives address = H(ownerKey ∥ content ∥ salt) with the
// immutable type flag (spec §3.2, scenario S1).
func NewImmutable(ownerKey, content, salt []byte) Address {
	h := sha256.New()
	h.Write(ownerKey)
	h.Write(content)
	h.Write(salt)
	return withFlag(h.Sum(nil), FlagImmutable)
}

// NewNamed derives address = H(ownerKey ∥ name) with the named type flag;
// deterministic and independent of payload (spec §3.2, scenario S5).
func NewNamed(ownerKey []byte, name string) Address {
	h := sha256.New()
	h.Write(ownerKey)
	h.Write([]byte(name))
	return withFlag(h.Sum(nil), FlagNamed)
}

// NewMutable allocates a random address for a mutable-base or ACL block.
// Mutable addresses are random at allocation and stable across updates
// (spec §3.1).
func NewMutable(flag Flag) (Address, error) {
	var a Address
	if _, err := rand.Read(a[:Size-1]); err != nil {
		return a, err
	}
	a[Size-1] = byte(flag)
	return a, nil
}

func withFlag(digest []byte, flag Flag) Address {
	var a Address
	copy(a[:Size-1], digest[:Size-1])
	a[Size-1] = byte(flag)
	return a
}
