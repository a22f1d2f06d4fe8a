// Package dock implements the transport and connection-pooling layer (spec
// §4.3, component C5): dialing peers, running the handshake state machine,
// and multiplexing the named RPCs every other component issues over a
// connection. Wire framing lives in codec.go; the handshake in handshake.go;
// the pool in pool.go; protocol-specific dialers in dock/tcp and dock/utp.
package dock

import (
	"context"
	"time"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/overlay"
)

// State is a connection's position in the handshake state machine (§4.3):
//
//	Dial -> Handshake -> Authenticated -> Draining -> Closed
type State int

const (
	StateDial State = iota
	StateHandshake
	StateAuthenticated
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDial:
		return "dial"
	case StateHandshake:
		return "handshake"
	case StateAuthenticated:
		return "authenticated"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Op names the RPCs exchanged once a connection is Authenticated (§4.3,
// §6.3), including the Paxos RPCs consensus issues over the same pool.
type Op string

const (
	OpAuthSyn        Op = "auth_syn"
	OpAuthAck        Op = "auth_ack"
	OpStore          Op = "store"
	OpFetch          Op = "fetch"
	OpFetchMulti     Op = "fetch_multi"
	OpRemove         Op = "remove"
	OpResolveKeys    Op = "resolve_keys"
	OpResolveAllKeys Op = "resolve_all_keys"
	OpPropose        Op = "propose"
	OpAccept         Op = "accept"
	OpConfirm        Op = "confirm"
	OpGet            Op = "get"
	OpReconcile      Op = "reconcile"
	OpPropagate      Op = "propagate"
)

// Dialer opens a raw byte-stream connection to an endpoint; tcp.Dialer and
// utp.Dialer implement it for their respective transports (§6.5).
type Dialer interface {
	Dial(ctx context.Context, ep overlay.Endpoint) (Stream, error)
}

// Stream is the minimal full-duplex byte stream a Dialer hands back —
// satisfied by *net.TCPConn and any UTP socket implementation.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
}

// Request is one RPC call framed over a Conn.
type Request struct {
	ID      uint64
	Op      Op
	Address address.Address
	Body    []byte
}

// Response answers a Request.
type Response struct {
	ID      uint64
	OK      bool
	Err     string
	ErrKind int32
	Body    []byte
}

// Handler processes an inbound Request once a connection is authenticated,
// dispatching each Op to the component that owns it (silo for store/fetch,
// consensus for propose/accept/confirm/get, peer for resolve_keys).
type Handler interface {
	Handle(ctx context.Context, from overlay.NodeID, req Request) Response
}
