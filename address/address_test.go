package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImmutableAddressDeterministic(t *testing.T) {
	owner := []byte("owner-key-bytes")
	content := []byte("CHB contents")
	salt := []byte("HARDCODED_SALT")

	a1 := NewImmutable(owner, content, salt)
	a2 := NewImmutable(owner, content, salt)
	require.True(t, a1.Equal(a2))
	require.Equal(t, FlagImmutable, a1.Flag())
}

func TestNamedAddressIndependentOfPayload(t *testing.T) {
	owner := []byte("owner-key-bytes")
	a1 := NewNamed(owner, "root")
	a2 := NewNamed(owner, "root")
	require.True(t, a1.Equal(a2))
	require.Equal(t, FlagNamed, a1.Flag())
}

func TestMutableAddressRandomAndStable(t *testing.T) {
	a1, err := NewMutable(FlagMutable)
	require.NoError(t, err)
	a2, err := NewMutable(FlagMutable)
	require.NoError(t, err)
	require.False(t, a1.Equal(a2))
	require.True(t, a1.IsMutable())
}

func TestRoundTripText(t *testing.T) {
	a, err := NewMutable(FlagACL)
	require.NoError(t, err)
	text, err := a.MarshalText()
	require.NoError(t, err)
	var b Address
	require.NoError(t, b.UnmarshalText(text))
	require.True(t, a.Equal(b))
}

func TestKeyPairSignVerify(t *testing.T) {
	priv, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	pub := priv.Public()

	msg := []byte("hello")
	sig, err := priv.Sign(msg)
	require.NoError(t, err)
	require.True(t, pub.Verify(msg, sig))
	require.False(t, pub.Verify([]byte("tampered"), sig))
}

func TestKeyPairSealUnseal(t *testing.T) {
	priv, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	pub := priv.Public()

	secret := []byte("a symmetric data key")
	sealed, err := pub.Seal(secret)
	require.NoError(t, err)
	opened, err := priv.Unseal(sealed)
	require.NoError(t, err)
	require.Equal(t, secret, opened)
}

func TestPublicKeyBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	pub := priv.Public()
	b, err := pub.Bytes()
	require.NoError(t, err)
	parsed, err := ParsePublicKey(b)
	require.NoError(t, err)
	require.True(t, pub.Equal(parsed))
}
