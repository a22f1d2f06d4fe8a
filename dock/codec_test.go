package dock

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
)

func TestRequestRoundTrip(t *testing.T) {
	var addr address.Address
	addr[31] = byte(address.FlagImmutable)
	req := Request{Op: OpFetch, Address: addr, Body: []byte("hello")}

	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, req.Op, got.Op)
	require.True(t, req.Address.Equal(got.Address))
	require.Equal(t, req.Body, got.Body)
}

func TestResponseRoundTripLargeBodyCompressed(t *testing.T) {
	body := bytes.Repeat([]byte("x"), compressThreshold*4)
	resp := Response{ID: 42, OK: true, Body: body}

	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, resp))
	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	require.Equal(t, resp.ID, got.ID)
	require.Equal(t, resp.OK, got.OK)
	require.Equal(t, resp.Body, got.Body)
}

func TestReadMessageDistinguishesKinds(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, Request{Op: OpStore, Body: []byte("a")}))
	isResponse, req, _, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.False(t, isResponse)
	require.Equal(t, OpStore, req.Op)

	buf.Reset()
	require.NoError(t, WriteResponse(&buf, Response{ID: 7, OK: true}))
	isResponse, _, resp, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.True(t, isResponse)
	require.Equal(t, uint64(7), resp.ID)
}

func TestReadRequestRejectsResponseFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResponse(&buf, Response{ID: 1}))
	_, err := ReadRequest(&buf)
	require.ErrorIs(t, err, errBadKind)
}
