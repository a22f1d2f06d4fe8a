package fssilo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

func TestSetInsertUpdateSemantics(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	addr, err := address.NewMutable(address.FlagMutable)
	require.NoError(t, err)

	_, err = s.Set(ctx, addr, []byte("v1"), false, true)
	require.ErrorIs(t, err, silo.ErrMissing)

	_, err = s.Set(ctx, addr, []byte("v1"), true, false)
	require.NoError(t, err)

	_, err = s.Set(ctx, addr, []byte("v2"), true, false)
	require.ErrorIs(t, err, silo.ErrCollision)

	_, err = s.Set(ctx, addr, []byte("v2"), false, true)
	require.NoError(t, err)

	got, err := s.Get(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestEraseAndList(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	addr, err := address.NewMutable(address.FlagMutable)
	require.NoError(t, err)
	_, err = s.Set(ctx, addr, []byte("data"), true, false)
	require.NoError(t, err)

	var seen []address.Address
	for a, err := range s.List(ctx) {
		require.NoError(t, err)
		seen = append(seen, a)
	}
	require.Len(t, seen, 1)
	require.True(t, seen[0].Equal(addr))

	require.NoError(t, s.Erase(ctx, addr))
	_, err = s.Get(ctx, addr)
	require.ErrorIs(t, err, silo.ErrMissing)
}

func TestNotifierFiresOnMutation(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	var fired int
	s.OnChange(func(address.Address, bool) { fired++ })

	addr, err := address.NewMutable(address.FlagMutable)
	require.NoError(t, err)
	_, err = s.Set(ctx, addr, []byte("x"), true, false)
	require.NoError(t, err)
	require.Equal(t, 1, fired)
}
