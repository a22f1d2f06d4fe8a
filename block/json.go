package block

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/meshvault/core/address"
)

// jsonEnvelope is the self-describing JSON export form (§6.1): a version
// triple, a tag, and a map whose keys match §3's entity field names.
type jsonEnvelope struct {
	Version WireVersion     `json:"version"`
	Tag     Tag             `json:"tag"`
	Fields  json.RawMessage `json:"fields"`
}

type jsonImmutable struct {
	Address string `json:"address"`
	Owner   string `json:"owner_public_key,omitempty"`
	Payload string `json:"payload"`
	Salt    string `json:"salt"`
}

type jsonMutable struct {
	Owner     string `json:"owner_public_key"`
	Salt      string `json:"salt"`
	Version   uint64 `json:"version"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type jsonACLEntry struct {
	Key           string `json:"key,omitempty"`
	Read          bool   `json:"read"`
	Write         bool   `json:"write"`
	SealedDataKey string `json:"sealed_data_key,omitempty"`
}

type jsonACL struct {
	jsonMutable
	WorldRead  bool           `json:"world_read"`
	WorldWrite bool           `json:"world_write"`
	Entries    []jsonACLEntry `json:"entries"`
	Data       string         `json:"data"`
}

type jsonNamed struct {
	Owner     string `json:"owner_public_key,omitempty"`
	Name      string `json:"name"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func keyB64(k *address.PublicKey) (string, error) {
	if k == nil {
		return "", nil
	}
	b, err := k.Bytes()
	if err != nil {
		return "", err
	}
	return b64(b), nil
}

// EncodeJSON renders b in the self-describing debug/admin export form.
func EncodeJSON(b Block) ([]byte, error) {
	var fields interface{}
	switch v := b.(type) {
	case *Immutable:
		owner, err := keyB64(v.Owner)
		if err != nil {
			return nil, err
		}
		fields = jsonImmutable{Address: v.Addr.String(), Owner: owner, Payload: b64(v.Payload), Salt: b64(v.Salt)}
	case *Mutable:
		owner, err := keyB64(v.OwnerKey)
		if err != nil {
			return nil, err
		}
		fields = jsonMutable{Owner: owner, Salt: b64(v.Salt), Version: v.Version, Payload: b64(v.Payload), Signature: b64(v.Signature)}
	case *ACL:
		owner, err := keyB64(v.OwnerKey)
		if err != nil {
			return nil, err
		}
		entries := make([]jsonACLEntry, 0, len(v.Entries))
		for _, e := range v.Entries {
			k, err := keyB64(e.Key)
			if err != nil {
				return nil, err
			}
			entries = append(entries, jsonACLEntry{Key: k, Read: e.Read, Write: e.Write, SealedDataKey: b64(e.SealedDataKey)})
		}
		data := v.Payload
		if !v.WorldRead {
			data = v.EncryptedData
		}
		fields = jsonACL{
			jsonMutable: jsonMutable{Owner: owner, Salt: b64(v.Salt), Version: v.Version, Signature: b64(v.Signature)},
			WorldRead:   v.WorldRead, WorldWrite: v.WorldWrite, Entries: entries, Data: b64(data),
		}
	case *Named:
		owner, err := keyB64(v.OwnerKey)
		if err != nil {
			return nil, err
		}
		fields = jsonNamed{Owner: owner, Name: v.Name, Payload: b64(v.Payload), Signature: b64(v.Signature)}
	default:
		return nil, fmt.Errorf("block: unknown variant %T", b)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{Version: CurrentWireVersion, Tag: b.Tag(), Fields: raw})
}

// DecodeJSON parses the form EncodeJSON produces. Like DecodeBinary, mutable
// and ACL variants need their address supplied out-of-band.
func DecodeJSON(data []byte, addr address.Address) (Block, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Tag {
	case TagImmutable:
		var f jsonImmutable
		if err := json.Unmarshal(env.Fields, &f); err != nil {
			return nil, err
		}
		owner, err := parseKeyB64(f.Owner)
		if err != nil {
			return nil, err
		}
		payload, err := unb64(f.Payload)
		if err != nil {
			return nil, err
		}
		salt, err := unb64(f.Salt)
		if err != nil {
			return nil, err
		}
		return &Immutable{Addr: addr, Owner: owner, Payload: payload, Salt: salt}, nil
	case TagMutable:
		var f jsonMutable
		if err := json.Unmarshal(env.Fields, &f); err != nil {
			return nil, err
		}
		owner, salt, payload, sig, err := decodeMutableJSON(f)
		if err != nil {
			return nil, err
		}
		return &Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Version: f.Version, Payload: payload, Signature: sig}, nil
	case TagACL:
		var f jsonACL
		if err := json.Unmarshal(env.Fields, &f); err != nil {
			return nil, err
		}
		owner, salt, _, sig, err := decodeMutableJSON(f.jsonMutable)
		if err != nil {
			return nil, err
		}
		entries := make([]ACLEntry, 0, len(f.Entries))
		for _, e := range f.Entries {
			k, err := parseKeyB64(e.Key)
			if err != nil {
				return nil, err
			}
			sealed, err := unb64(e.SealedDataKey)
			if err != nil {
				return nil, err
			}
			entries = append(entries, ACLEntry{Key: k, Read: e.Read, Write: e.Write, SealedDataKey: sealed})
		}
		data, err := unb64(f.Data)
		if err != nil {
			return nil, err
		}
		acl := &ACL{
			Mutable:    Mutable{Addr: addr, OwnerKey: owner, Salt: salt, Version: f.Version, Signature: sig},
			WorldRead:  f.WorldRead, WorldWrite: f.WorldWrite, Entries: entries,
		}
		if acl.WorldRead {
			acl.Payload = data
		} else {
			acl.EncryptedData = data
		}
		return acl, nil
	case TagNamed:
		var f jsonNamed
		if err := json.Unmarshal(env.Fields, &f); err != nil {
			return nil, err
		}
		owner, err := parseKeyB64(f.Owner)
		if err != nil {
			return nil, err
		}
		payload, err := unb64(f.Payload)
		if err != nil {
			return nil, err
		}
		sig, err := unb64(f.Signature)
		if err != nil {
			return nil, err
		}
		return &Named{Addr: addr, OwnerKey: owner, Name: f.Name, Payload: payload, Signature: sig}, nil
	default:
		return nil, fmt.Errorf("block: unknown tag %d", env.Tag)
	}
}

func parseKeyB64(s string) (*address.PublicKey, error) {
	b, err := unb64(s)
	if err != nil || len(b) == 0 {
		return nil, err
	}
	return address.ParsePublicKey(b)
}

func decodeMutableJSON(f jsonMutable) (owner *address.PublicKey, salt, payload, sig []byte, err error) {
	if owner, err = parseKeyB64(f.Owner); err != nil {
		return
	}
	if salt, err = unb64(f.Salt); err != nil {
		return
	}
	if payload, err = unb64(f.Payload); err != nil {
		return
	}
	if sig, err = unb64(f.Signature); err != nil {
		return
	}
	return
}
