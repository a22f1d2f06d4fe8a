package dock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/metrics"
	"github.com/meshvault/core/overlay"
	"github.com/meshvault/core/storelog"
)

// Conn is one authenticated connection to a remote peer, with its own RPC
// multiplexer: concurrent calls share the stream, matched by request id.
type Conn struct {
	id       overlay.NodeID
	stream   Stream
	passport *overlay.Passport

	state atomic.Int32

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan Response

	writeMu sync.Mutex
}

func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) { c.state.Store(int32(s)) }

// Call sends req and blocks for the matching Response, or until ctx is done.
func (c *Conn) Call(ctx context.Context, req Request) (Response, error) {
	if c.State() != StateAuthenticated {
		return Response{}, errs.New(errs.KindConnectionClosed, "dock: connection not authenticated")
	}

	c.mu.Lock()
	c.nextID++
	req.ID = c.nextID
	ch := make(chan Response, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := WriteRequest(c.stream, req)
	c.writeMu.Unlock()
	if err != nil {
		return Response{}, errs.Wrap(errs.KindConnectionClosed, "dock: write request", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, errs.Wrap(errs.KindTimeOut, "dock: rpc timed out", ctx.Err())
	}
}

// serve reads frames off the stream until it closes, dispatching responses
// to waiting Call()s and inbound requests to handler.
func (c *Conn) serve(handler Handler) {
	for {
		isResponse, req, resp, err := ReadMessage(c.stream)
		if err != nil {
			c.setState(StateClosed)
			c.mu.Lock()
			for _, ch := range c.pending {
				close(ch)
			}
			c.mu.Unlock()
			return
		}

		if isResponse {
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		out := handler.Handle(context.Background(), c.id, req)
		out.ID = req.ID
		c.writeMu.Lock()
		_ = WriteResponse(c.stream, out)
		c.writeMu.Unlock()
	}
}

// Pool manages one Conn per known peer, dialing lazily and reconnecting
// with exponential backoff (§4.3, §7's backoff schedule).
type Pool struct {
	self       *address.PrivateKey
	selfPass   *overlay.Passport
	networkOwn *address.PublicKey
	dialer     Dialer
	handler    Handler
	log        storelog.Logger
	metrics    *metrics.Metrics

	backoffInitial time.Duration
	backoffMax     time.Duration
	backoffSteps   int

	mu    sync.Mutex
	conns map[overlay.NodeID]*Conn
}

// NewPool builds a Pool. handler processes inbound RPCs once a connection
// authenticates.
func NewPool(self *address.PrivateKey, selfPassport *overlay.Passport, networkOwner *address.PublicKey, dialer Dialer, handler Handler, log storelog.Logger, m *metrics.Metrics) *Pool {
	if log == nil {
		log = storelog.NewNoOp()
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Pool{
		self: self, selfPass: selfPassport, networkOwn: networkOwner,
		dialer: dialer, handler: handler, log: log, metrics: m,
		backoffInitial: 100 * time.Millisecond,
		backoffMax:     25 * time.Second,
		backoffSteps:   8,
		conns:          map[overlay.NodeID]*Conn{},
	}
}

// Get returns an authenticated Conn to loc, dialing and handshaking if
// necessary.
func (p *Pool) Get(ctx context.Context, loc overlay.Location) (*Conn, error) {
	p.mu.Lock()
	if c, ok := p.conns[loc.ID]; ok && c.State() == StateAuthenticated {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := p.dial(ctx, loc)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.conns[loc.ID] = c
	p.metrics.DockConnections.Set(float64(len(p.conns)))
	p.mu.Unlock()
	return c, nil
}

func (p *Pool) dial(ctx context.Context, loc overlay.Location) (*Conn, error) {
	if len(loc.Endpoints) == 0 {
		return nil, errs.New(errs.KindConnectionClosed, "dock: no endpoints for peer")
	}
	var lastErr error
	b := p.backoffPolicy()
	var c *Conn
	err := backoff.Retry(func() error {
		stream, err := p.dialer.Dial(ctx, loc.Endpoints[0])
		if err != nil {
			lastErr = err
			return err
		}
		c = &Conn{id: loc.ID, stream: stream, pending: map[uint64]chan Response{}}
		c.setState(StateHandshake)

		hctx, cancel := context.WithTimeout(ctx, DefaultHandshakeTimeout)
		defer cancel()

		passport, err := Handshake(hctx, p.self, p.selfPass, p.networkOwn,
			func(op Op, body []byte) error { return WriteRequest(stream, Request{Op: op, Body: body}) },
			func() (Op, []byte, error) {
				req, err := ReadRequest(stream)
				return req.Op, req.Body, err
			})
		if err != nil {
			stream.Close()
			lastErr = err
			return err
		}
		c.passport = passport
		c.setState(StateAuthenticated)
		go c.serve(p.handler)
		return nil
	}, b)
	if err != nil {
		p.metrics.DockReconnects.Inc()
		return nil, errs.Wrap(errs.KindHandshakeFailed, "dock: dial failed", lastErr)
	}
	return c, nil
}

func (p *Pool) backoffPolicy() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.backoffInitial
	eb.MaxInterval = p.backoffMax
	eb.Multiplier = 2
	return backoff.WithMaxRetries(eb, uint64(p.backoffSteps))
}

// Close drains every connection (transitions to Draining, then closes the
// stream) — the opposite of dial, per §4.3's state machine.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.conns {
		c.setState(StateDraining)
		c.stream.Close()
		c.setState(StateClosed)
	}
	p.conns = map[overlay.NodeID]*Conn{}
	return nil
}

// Drop removes a connection from the pool, e.g. after a ping timeout
// reported by the overlay's disappearance callback.
func (p *Pool) Drop(id overlay.NodeID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[id]; ok {
		c.stream.Close()
		delete(p.conns, id)
		p.metrics.DockConnections.Set(float64(len(p.conns)))
	}
}
