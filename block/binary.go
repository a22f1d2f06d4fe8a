package block

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/meshvault/core/address"
)

// WireVersion is the semantic version triple prefixing every serialized
// block (§6.1).
type WireVersion struct {
	Major, Minor, Patch uint16
}

// CurrentWireVersion is the format this build writes by default.
var CurrentWireVersion = WireVersion{Major: 1, Minor: 0, Patch: 0}

// MinSupportedWireVersion is the oldest format this build can still decode,
// satisfying the backward-compatibility gate (§6.1): "must be able to
// deserialize blocks produced by all versions down to the lowest supported."
var MinSupportedWireVersion = WireVersion{Major: 1, Minor: 0, Patch: 0}

// EncodeBinary writes the on-wire/on-silo binary form: version triple, tag
// byte, then variant-specific fields in the fixed order given by §6.1.
// Unknown trailing fields are tolerated on decode for forward compatibility;
// compat selects which wire version to emit (zero value = CurrentWireVersion).
func EncodeBinary(b Block, compat WireVersion) ([]byte, error) {
	if compat == (WireVersion{}) {
		compat = CurrentWireVersion
	}
	var buf bytes.Buffer
	writeVersion(&buf, compat)
	buf.WriteByte(byte(b.Tag()))

	switch v := b.(type) {
	case *Immutable:
		writeOptionalKey(&buf, v.Owner)
		writeBytes(&buf, v.Payload)
		writeBytes(&buf, v.Salt)
	case *Mutable:
		if err := writeKey(&buf, v.OwnerKey); err != nil {
			return nil, err
		}
		writeBytes(&buf, v.Salt)
		writeUint64(&buf, v.Version)
		writeBytes(&buf, v.Payload)
		writeBytes(&buf, v.Signature)
	case *ACL:
		if err := writeKey(&buf, v.OwnerKey); err != nil {
			return nil, err
		}
		writeBytes(&buf, v.Salt)
		writeUint64(&buf, v.Version)
		buf.WriteByte(boolByte(v.WorldRead))
		buf.WriteByte(boolByte(v.WorldWrite))
		writeUint32(&buf, uint32(len(v.Entries)))
		for _, e := range v.Entries {
			writeUint64(&buf, e.KeyID)
			if err := writeOptionalKey(&buf, e.Key); err != nil {
				return nil, err
			}
			buf.WriteByte(boolByte(e.Read))
			buf.WriteByte(boolByte(e.Write))
			writeBytes(&buf, e.SealedDataKey)
		}
		if v.WorldRead {
			writeBytes(&buf, v.Payload)
		} else {
			writeBytes(&buf, v.EncryptedData)
		}
		writeBytes(&buf, v.Signature)
	case *Named:
		if err := writeKey(&buf, v.OwnerKey); err != nil {
			return nil, err
		}
		writeString(&buf, v.Name)
		writeBytes(&buf, v.Payload)
		writeBytes(&buf, v.Signature)
	default:
		return nil, errors.New("block: unknown variant")
	}
	return buf.Bytes(), nil
}

// DecodeBinary parses the form EncodeBinary produces, at any wire version
// from MinSupportedWireVersion through CurrentWireVersion.
//
// addr is the address this record is stored/requested under, and it becomes
// the decoded block's Addr for every variant. Immutable and named blocks
// derive their address from their own fields, so their Validate cross-checks
// addr against that derivation (DecodeBinary itself does not); mutable-base
// and ACL blocks have a random address
// that is never itself a wire field (§6.1 lists no address field for them),
// so addr supplies it — exactly as a silo's get(address) or a fetch RPC's
// correlation id does for its caller.
func DecodeBinary(data []byte, addr address.Address) (Block, error) {
	r := bytes.NewReader(data)
	ver, err := readVersion(r)
	if err != nil {
		return nil, err
	}
	if ver.Major < MinSupportedWireVersion.Major || ver.Major > CurrentWireVersion.Major {
		return nil, errors.New("block: unsupported wire version")
	}
	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch Tag(tagByte) {
	case TagImmutable:
		owner, err := readOptionalKey(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		salt, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return &Immutable{Addr: addr, Owner: owner, Payload: payload, Salt: salt}, nil
	case TagMutable:
		return decodeMutableFields(r, addr)
	case TagACL:
		return decodeACLFields(r, addr)
	case TagNamed:
		owner, err := readOptionalKey(r)
		if err != nil {
			return nil, err
		}
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		sig, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		return &Named{Addr: addr, OwnerKey: owner, Name: name, Payload: payload, Signature: sig}, nil
	default:
		return nil, errors.New("block: unknown tag")
	}
}

func decodeMutableFields(r *bytes.Reader, addr address.Address) (*Mutable, error) {
	owner, err := readOptionalKey(r)
	if err != nil {
		return nil, err
	}
	salt, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	version, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	payload, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	return &Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Version: version, Payload: payload, Signature: sig}, nil
}

func decodeACLFields(r *bytes.Reader, addr address.Address) (*ACL, error) {
	owner, err := readOptionalKey(r)
	if err != nil {
		return nil, err
	}
	salt, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	version, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	worldReadB, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	worldWriteB, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]ACLEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		keyID, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		key, err := readOptionalKey(r)
		if err != nil {
			return nil, err
		}
		readB, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		writeB, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sealed, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, ACLEntry{KeyID: keyID, Key: key, Read: readB == 1, Write: writeB == 1, SealedDataKey: sealed})
	}
	data, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	sig, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	acl := &ACL{
		Mutable:    Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Version: version, Signature: sig},
		WorldRead:  worldReadB == 1,
		WorldWrite: worldWriteB == 1,
		Entries:    entries,
	}
	if acl.WorldRead {
		acl.Payload = data
	} else {
		acl.EncryptedData = data
	}
	return acl, nil
}

func writeVersion(buf *bytes.Buffer, v WireVersion) {
	writeUint16(buf, v.Major)
	writeUint16(buf, v.Minor)
	writeUint16(buf, v.Patch)
}

func readVersion(r io.Reader) (WireVersion, error) {
	var v WireVersion
	var err error
	if v.Major, err = readUint16(r); err != nil {
		return v, err
	}
	if v.Minor, err = readUint16(r); err != nil {
		return v, err
	}
	if v.Patch, err = readUint16(r); err != nil {
		return v, err
	}
	return v, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUint32(buf, uint32(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeKey writes a required owner key (DER bytes, length-prefixed).
func writeKey(buf *bytes.Buffer, k *address.PublicKey) error {
	b, err := k.Bytes()
	if err != nil {
		return err
	}
	writeBytes(buf, b)
	return nil
}

// writeOptionalKey writes a possibly-nil owner key; length 0 means nil.
func writeOptionalKey(buf *bytes.Buffer, k *address.PublicKey) error {
	if k == nil {
		writeBytes(buf, nil)
		return nil
	}
	return writeKey(buf, k)
}

func readOptionalKey(r *bytes.Reader) (*address.PublicKey, error) {
	b, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return address.ParsePublicKey(b)
}
