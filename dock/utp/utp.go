// Package utp provides the UTP-transport half of dock.Dialer (§6.5:
// overlay.Endpoint.UTP selects it). No UTP implementation appears among the
// example repos' dependencies, so rather than invent one this package
// defines the seam: embedders that link a real UTP socket library provide a
// RawDialer, and Dialer adapts it to dock.Dialer the same way tcp.Dialer
// adapts net.Dialer.
package utp

import (
	"context"

	"github.com/meshvault/core/dock"
	"github.com/meshvault/core/overlay"
)

// RawDialer opens a UTP socket to host:port; an embedder's chosen UTP
// library implements this.
type RawDialer interface {
	DialUTP(ctx context.Context, host string, port int) (dock.Stream, error)
}

// Dialer adapts a RawDialer to dock.Dialer.
type Dialer struct {
	Raw RawDialer
}

func New(raw RawDialer) *Dialer { return &Dialer{Raw: raw} }

func (d *Dialer) Dial(ctx context.Context, ep overlay.Endpoint) (dock.Stream, error) {
	return d.Raw.DialUTP(ctx, ep.Host, ep.Port)
}
