package peer

import (
	"context"
	"encoding/binary"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/dock"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/overlay"
)

// Conn is the subset of *dock.Conn a Remote peer needs; satisfied by
// *dock.Conn, narrowed here so tests can fake it.
type Conn interface {
	Call(ctx context.Context, req dock.Request) (dock.Response, error)
	State() dock.State
}

// Remote is a peer reached over the dock's RPC multiplex (§4.4: "remote
// peers obtain a stable id from handshake").
type Remote struct {
	id   overlay.NodeID
	conn Conn
}

func NewRemote(id overlay.NodeID, conn Conn) *Remote {
	return &Remote{id: id, conn: conn}
}

func (r *Remote) ID() overlay.NodeID { return r.id }

func (r *Remote) Connected() bool { return r.conn.State() == dock.StateAuthenticated }

func (r *Remote) call(ctx context.Context, op dock.Op, addr address.Address, body []byte) (dock.Response, error) {
	resp, err := r.conn.Call(ctx, dock.Request{Op: op, Address: addr, Body: body})
	if err != nil {
		return dock.Response{}, err
	}
	if !resp.OK {
		return resp, &errs.Error{Kind: errs.Kind(resp.ErrKind), Message: resp.Err}
	}
	return resp, nil
}

func (r *Remote) Store(ctx context.Context, b block.Block, mode block.Mode) error {
	encoded, err := block.EncodeBinary(b, block.WireVersion{})
	if err != nil {
		return err
	}
	body := append([]byte{byte(mode)}, encoded...)
	_, err = r.call(ctx, dock.OpStore, b.Address(), body)
	return err
}

func (r *Remote) Fetch(ctx context.Context, addr address.Address, localVersion uint64) (FetchResult, error) {
	var body [8]byte
	binary.BigEndian.PutUint64(body[:], localVersion)
	resp, err := r.call(ctx, dock.OpFetch, addr, body[:])
	if err != nil {
		return FetchResult{}, err
	}
	return decodeFetchResult(addr, resp.Body)
}

func (r *Remote) Remove(ctx context.Context, addr address.Address, sig block.RemoveSignature) error {
	body, err := encodeRemoveSignature(sig)
	if err != nil {
		return err
	}
	_, err = r.call(ctx, dock.OpRemove, addr, body)
	return err
}

func (r *Remote) ResolveKeys(ctx context.Context, ids []uint64) (map[uint64]*address.PublicKey, error) {
	body := make([]byte, 4+8*len(ids))
	binary.BigEndian.PutUint32(body[:4], uint32(len(ids)))
	for i, id := range ids {
		binary.BigEndian.PutUint64(body[4+8*i:], id)
	}
	resp, err := r.call(ctx, dock.OpResolveKeys, address.Address{}, body)
	if err != nil {
		return nil, err
	}
	return decodeKeyMap(resp.Body)
}

func (r *Remote) Propose(ctx context.Context, addr address.Address, p Proposal, insert bool) (PromiseReply, error) {
	body := encodeProposal(p)
	if insert {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	resp, err := r.call(ctx, dock.OpPropose, addr, body)
	if err != nil {
		return PromiseReply{}, err
	}
	return decodePromiseReply(addr, resp.Body)
}

func (r *Remote) Accept(ctx context.Context, addr address.Address, p Proposal, value block.Block) error {
	encoded, err := block.EncodeBinary(value, block.WireVersion{})
	if err != nil {
		return err
	}
	body := append(encodeProposal(p), encoded...)
	_, err = r.call(ctx, dock.OpAccept, addr, body)
	return err
}

func (r *Remote) Confirm(ctx context.Context, addr address.Address, p Proposal) error {
	_, err := r.call(ctx, dock.OpConfirm, addr, encodeProposal(p))
	return err
}

var _ Peer = (*Remote)(nil)

func encodeProposal(p Proposal) []byte {
	buf := make([]byte, 8+20)
	binary.BigEndian.PutUint64(buf[:8], p.Round)
	copy(buf[8:], p.Proposer[:])
	return buf
}

func decodeProposal(buf []byte) (Proposal, []byte, error) {
	if len(buf) < 28 {
		return Proposal{}, nil, errs.New(errs.KindValidationFailed, "peer: truncated proposal")
	}
	var p Proposal
	p.Round = binary.BigEndian.Uint64(buf[:8])
	copy(p.Proposer[:], buf[8:28])
	return p, buf[28:], nil
}

func encodeRemoveSignature(sig block.RemoveSignature) ([]byte, error) {
	signerBytes, err := sig.Signer.Bytes()
	if err != nil {
		return nil, err
	}
	var buf []byte
	var n4 [4]byte
	binary.BigEndian.PutUint32(n4[:], uint32(len(signerBytes)))
	buf = append(buf, n4[:]...)
	buf = append(buf, signerBytes...)
	binary.BigEndian.PutUint32(n4[:], uint32(len(sig.Signature)))
	buf = append(buf, n4[:]...)
	buf = append(buf, sig.Signature...)
	return buf, nil
}

func decodeFetchResult(addr address.Address, body []byte) (FetchResult, error) {
	if len(body) < 1 {
		return FetchResult{}, errs.New(errs.KindValidationFailed, "peer: empty fetch reply")
	}
	if body[0] == 1 {
		return FetchResult{NotModified: true}, nil
	}
	p, rest, err := decodeProposal(body[1:])
	if err != nil {
		return FetchResult{}, err
	}
	if len(rest) < 1 {
		return FetchResult{}, errs.New(errs.KindValidationFailed, "peer: truncated fetch reply")
	}
	confirmed := rest[0] == 1
	rest = rest[1:]
	if len(rest) == 0 {
		return FetchResult{AcceptedProposal: p, Confirmed: confirmed}, nil
	}
	b, err := block.DecodeBinary(rest, addr)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{AcceptedProposal: p, Value: b, Confirmed: confirmed}, nil
}

func decodePromiseReply(addr address.Address, body []byte) (PromiseReply, error) {
	if len(body) < 1 {
		return PromiseReply{}, errs.New(errs.KindValidationFailed, "peer: empty promise reply")
	}
	promised := body[0] == 1
	p, rest, err := decodeProposal(body[1:])
	if err != nil {
		return PromiseReply{}, err
	}
	if len(rest) == 0 {
		return PromiseReply{Promised: promised, Accepted: p}, nil
	}
	b, err := block.DecodeBinary(rest, addr)
	if err != nil {
		return PromiseReply{}, err
	}
	return PromiseReply{Promised: promised, Accepted: p, Value: b}, nil
}

func decodeKeyMap(body []byte) (map[uint64]*address.PublicKey, error) {
	if len(body) < 4 {
		return nil, errs.New(errs.KindValidationFailed, "peer: truncated key map")
	}
	count := binary.BigEndian.Uint32(body[:4])
	body = body[4:]
	out := make(map[uint64]*address.PublicKey, count)
	for i := uint32(0); i < count; i++ {
		if len(body) < 12 {
			return nil, errs.New(errs.KindValidationFailed, "peer: truncated key map entry")
		}
		id := binary.BigEndian.Uint64(body[:8])
		n := binary.BigEndian.Uint32(body[8:12])
		body = body[12:]
		if uint32(len(body)) < n {
			return nil, errs.New(errs.KindValidationFailed, "peer: truncated key bytes")
		}
		pk, err := address.ParsePublicKey(body[:n])
		if err != nil {
			return nil, err
		}
		out[id] = pk
		body = body[n:]
	}
	return out, nil
}
