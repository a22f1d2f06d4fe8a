package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
)

func genKey(t *testing.T) *address.PrivateKey {
	t.Helper()
	k, err := address.GenerateKeyPair(2048)
	require.NoError(t, err)
	return k
}

func TestImmutableRoundTrip(t *testing.T) {
	owner := genKey(t)
	b, err := NewImmutableBlock(owner.Public(), []byte("CHB contents"), []byte("HARDCODED_SALT"))
	require.NoError(t, err)
	require.NoError(t, b.Validate())

	ownerBytes, _ := owner.Public().Bytes()
	want := address.NewImmutable(ownerBytes, []byte("CHB contents"), []byte("HARDCODED_SALT"))
	require.True(t, want.Equal(b.Address()))
	require.Equal(t, []byte("CHB contents"), b.Data())
}

func TestImmutableTamperedFailsValidate(t *testing.T) {
	owner := genKey(t)
	b, err := NewImmutableBlock(owner.Public(), []byte("contents"), []byte("salt"))
	require.NoError(t, err)
	b.Payload = []byte("tampered")
	require.Error(t, b.Validate())
}

func TestMutableSealAndValidate(t *testing.T) {
	owner := genKey(t)
	b, err := NewMutableBlock(owner.Public(), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, b.Seal(owner))
	require.Equal(t, uint64(1), b.Version)
	require.NoError(t, b.Validate())

	b.Payload = []byte("v2")
	require.NoError(t, b.Seal(owner))
	require.Equal(t, uint64(2), b.Version)
	require.NoError(t, b.Validate())
}

func TestMutableRemoveRequiresOwnerKey(t *testing.T) {
	owner := genKey(t)
	other := genKey(t)
	b, err := NewMutableBlock(owner.Public(), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, b.Seal(owner))

	_, err = b.SignRemove(other)
	require.Error(t, err)

	rs, err := b.SignRemove(owner)
	require.NoError(t, err)
	require.NoError(t, b.CheckRemove(rs))
}

func TestACLPermissions(t *testing.T) {
	owner := genKey(t)
	reader := genKey(t)
	stranger := genKey(t)

	b, err := NewACLBlock(owner.Public(), []byte("secret"), false, false)
	require.NoError(t, err)
	b.Entries = append(b.Entries, ACLEntry{Key: reader.Public(), Read: true})

	require.NoError(t, b.Seal(owner))
	require.NoError(t, b.Validate())

	plain, err := b.Decrypt(reader)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plain)

	_, err = b.Decrypt(stranger)
	require.Error(t, err)
}

func TestACLWorldRead(t *testing.T) {
	owner := genKey(t)
	b, err := NewACLBlock(owner.Public(), []byte("public"), true, false)
	require.NoError(t, err)
	require.NoError(t, b.Seal(owner))

	anyone := genKey(t)
	plain, err := b.Decrypt(anyone)
	require.NoError(t, err)
	require.Equal(t, []byte("public"), plain)
}

func TestNamedAddressDeterministicIndependentOfPayload(t *testing.T) {
	owner := genKey(t)
	b1, err := NewNamedBlock(owner.Public(), "root", []byte("p1"))
	require.NoError(t, err)
	b2, err := NewNamedBlock(owner.Public(), "root", []byte("p2"))
	require.NoError(t, err)
	require.True(t, b1.Address().Equal(b2.Address()))
}

func TestBinaryRoundTrip(t *testing.T) {
	owner := genKey(t)

	imm, err := NewImmutableBlock(owner.Public(), []byte("hello"), []byte("salt"))
	require.NoError(t, err)

	mut, err := NewMutableBlock(owner.Public(), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, mut.Seal(owner))

	acl, err := NewACLBlock(owner.Public(), []byte("secret"), false, false)
	require.NoError(t, err)
	require.NoError(t, acl.Seal(owner))

	named, err := NewNamedBlock(owner.Public(), "root", []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, named.Seal(owner))

	for _, b := range []Block{imm, mut, acl, named} {
		encoded, err := EncodeBinary(b, WireVersion{})
		require.NoError(t, err)
		decoded, err := DecodeBinary(encoded, b.Address())
		require.NoError(t, err)
		require.NoError(t, decoded.Validate())
		reencoded, err := EncodeBinary(decoded, WireVersion{})
		require.NoError(t, err)
		require.Equal(t, encoded, reencoded)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	owner := genKey(t)
	mut, err := NewMutableBlock(owner.Public(), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, mut.Seal(owner))

	encoded, err := EncodeJSON(mut)
	require.NoError(t, err)
	decoded, err := DecodeJSON(encoded, mut.Address())
	require.NoError(t, err)
	require.NoError(t, decoded.Validate())
}
