package peer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/dock"
	"github.com/meshvault/core/overlay"
)

// fakeConn answers Call by dispatching to a server-side Local peer directly,
// exercising Remote's wire encoding without a real socket.
type fakeConn struct {
	server Peer
}

func (f *fakeConn) State() dock.State { return dock.StateAuthenticated }

func (f *fakeConn) Call(ctx context.Context, req dock.Request) (dock.Response, error) {
	switch req.Op {
	case dock.OpStore:
		mode := block.Mode(req.Body[0])
		b, err := block.DecodeBinary(req.Body[1:], req.Address)
		if err != nil {
			return dock.Response{OK: false, Err: err.Error()}, nil
		}
		if err := f.server.Store(ctx, b, mode); err != nil {
			return dock.Response{OK: false, Err: err.Error()}, nil
		}
		return dock.Response{OK: true}, nil
	case dock.OpFetch:
		res, err := f.server.Fetch(ctx, req.Address, 0)
		if err != nil {
			return dock.Response{OK: false, Err: err.Error()}, nil
		}
		body := []byte{0}
		body = append(body, encodeProposal(res.AcceptedProposal)...)
		if res.Confirmed {
			body = append(body, 1)
		} else {
			body = append(body, 0)
		}
		if res.Value != nil {
			encoded, err := block.EncodeBinary(res.Value, block.WireVersion{})
			if err != nil {
				return dock.Response{OK: false, Err: err.Error()}, nil
			}
			body = append(body, encoded...)
		}
		return dock.Response{OK: true, Body: body}, nil
	}
	return dock.Response{OK: false, Err: "unsupported op in test"}, nil
}

type memoryServer struct {
	stored map[address.Address]block.Block
}

func newMemoryServer() *memoryServer { return &memoryServer{stored: map[address.Address]block.Block{}} }

func (m *memoryServer) Store(ctx context.Context, b block.Block, mode block.Mode) error {
	m.stored[b.Address()] = b
	return nil
}
func (m *memoryServer) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (FetchResult, error) {
	b, ok := m.stored[addr]
	if !ok {
		return FetchResult{}, nil
	}
	return FetchResult{Value: b, Confirmed: true}, nil
}
func (m *memoryServer) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	delete(m.stored, addr)
	return nil
}
func (m *memoryServer) ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error) {
	return nil, nil
}
func (m *memoryServer) Propose(ctx context.Context, addr address.Address, p Proposal, insert bool) (PromiseReply, error) {
	return PromiseReply{Promised: true}, nil
}
func (m *memoryServer) Accept(ctx context.Context, addr address.Address, p Proposal, value block.Block) error {
	return nil
}
func (m *memoryServer) Confirm(ctx context.Context, addr address.Address, p Proposal) error {
	return nil
}

func TestRemoteStoreAndFetchRoundTrip(t *testing.T) {
	srv := newMemoryServer()
	local := NewLocal(overlay.NodeID{}, srv)
	remote := NewRemote(overlay.NodeID{9}, &fakeConn{server: local})

	owner, err := address.GenerateKeyPair(2048)
	require.NoError(t, err)
	b, err := block.NewImmutableBlock(owner.Public(), []byte("payload"), nil)
	require.NoError(t, err)

	require.NoError(t, remote.Store(context.Background(), b, block.ModeInsert))

	res, err := remote.Fetch(context.Background(), b.Address(), 0)
	require.NoError(t, err)
	require.True(t, res.Confirmed)
	require.Equal(t, []byte("payload"), res.Value.Data())
}
