// Package tcp implements dock.Dialer over plain TCP (spec §6.5).
package tcp

import (
	"context"
	"fmt"
	"net"

	"github.com/meshvault/core/dock"
	"github.com/meshvault/core/overlay"
)

// Dialer dials TCP endpoints with the given per-dial timeout honored via
// ctx.
type Dialer struct {
	d net.Dialer
}

func New() *Dialer { return &Dialer{} }

func (t *Dialer) Dial(ctx context.Context, ep overlay.Endpoint) (dock.Stream, error) {
	conn, err := t.d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Listener accepts inbound dock connections and hands each to accept.
type Listener struct {
	ln net.Listener
}

func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Accept blocks for the next inbound stream.
func (l *Listener) Accept() (dock.Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (l *Listener) Close() error { return l.ln.Close() }
