// Package compositesilo combines several silo.Silo back-ends into one,
// striping, mirroring or chaining them (spec §4.1/§6.4).
package compositesilo

import (
	"context"
	"errors"
	"iter"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

// Mode selects how the underlying silos are combined.
type Mode int

const (
	// ModeMirror writes every silo and reads from the first that answers;
	// used to mirror a block across independent local disks.
	ModeMirror Mode = iota
	// ModeStripe routes each address to exactly one silo by a stable hash,
	// spreading the keyspace across back-ends.
	ModeStripe
	// ModeChain reads/writes the first silo, falling through to the next
	// only on ErrMissing — a primary/fallback pair.
	ModeChain
)

// Composite is a Mode-combined silo.Silo over Silos.
type Composite struct {
	mode     Mode
	silos    []silo.Silo
	notifier silo.Notifier
}

func New(mode Mode, silos ...silo.Silo) (*Composite, error) {
	if len(silos) == 0 {
		return nil, errors.New("compositesilo: at least one silo required")
	}
	return &Composite{mode: mode, silos: silos}, nil
}

func (c *Composite) route(addr address.Address) silo.Silo {
	if c.mode != ModeStripe {
		return c.silos[0]
	}
	sum := 0
	for _, b := range addr.Bytes() {
		sum += int(b)
	}
	return c.silos[sum%len(c.silos)]
}

func (c *Composite) Get(ctx context.Context, addr address.Address) ([]byte, error) {
	switch c.mode {
	case ModeStripe:
		return c.route(addr).Get(ctx, addr)
	case ModeChain:
		var lastErr error
		for _, s := range c.silos {
			data, err := s.Get(ctx, addr)
			if err == nil {
				return data, nil
			}
			lastErr = err
			if !errors.Is(err, silo.ErrMissing) {
				return nil, err
			}
		}
		return nil, lastErr
	default: // ModeMirror
		var lastErr error
		for _, s := range c.silos {
			data, err := s.Get(ctx, addr)
			if err == nil {
				return data, nil
			}
			lastErr = err
		}
		return nil, lastErr
	}
}

func (c *Composite) Set(ctx context.Context, addr address.Address, data []byte, insert, update bool) (int64, error) {
	switch c.mode {
	case ModeStripe:
		d, err := c.route(addr).Set(ctx, addr, data, insert, update)
		if err == nil {
			c.notify(addr)
		}
		return d, err
	case ModeChain:
		d, err := c.silos[0].Set(ctx, addr, data, insert, update)
		if err == nil {
			c.notify(addr)
		}
		return d, err
	default: // ModeMirror: every silo must accept the write
		var delta int64
		for i, s := range c.silos {
			d, err := s.Set(ctx, addr, data, insert, update)
			if err != nil {
				return delta, err
			}
			if i == 0 {
				delta = d
			}
		}
		c.notify(addr)
		return delta, nil
	}
}

func (c *Composite) Erase(ctx context.Context, addr address.Address) error {
	switch c.mode {
	case ModeStripe:
		err := c.route(addr).Erase(ctx, addr)
		if err == nil {
			c.notify(addr)
		}
		return err
	default:
		var lastErr error
		erased := false
		for _, s := range c.silos {
			if err := s.Erase(ctx, addr); err != nil {
				if !errors.Is(err, silo.ErrMissing) {
					lastErr = err
				}
				continue
			}
			erased = true
			if c.mode == ModeChain {
				break
			}
		}
		if erased {
			c.notify(addr)
			return nil
		}
		if lastErr != nil {
			return lastErr
		}
		return silo.ErrMissing
	}
}

func (c *Composite) List(ctx context.Context) iter.Seq2[address.Address, error] {
	return func(yield func(address.Address, error) bool) {
		seen := map[address.Address]bool{}
		for _, s := range c.silos {
			for a, err := range s.List(ctx) {
				if err != nil {
					if !yield(a, err) {
						return
					}
					continue
				}
				if seen[a] {
					continue
				}
				seen[a] = true
				if !yield(a, nil) {
					return
				}
			}
			if c.mode == ModeStripe {
				continue
			}
		}
	}
}

func (c *Composite) Status(ctx context.Context, addr address.Address) (silo.Status, error) {
	target := c.silos
	if c.mode == ModeStripe {
		target = []silo.Silo{c.route(addr)}
	}
	for _, s := range target {
		st, err := s.Status(ctx, addr)
		if err != nil {
			return silo.StatusUnknown, err
		}
		if st == silo.StatusPresent {
			return silo.StatusPresent, nil
		}
		if c.mode == ModeChain && st == silo.StatusMissing {
			continue
		}
	}
	return silo.StatusMissing, nil
}

func (c *Composite) Usage(ctx context.Context) (int64, error) {
	var total int64
	for _, s := range c.silos {
		u, err := s.Usage(ctx)
		if err != nil {
			return 0, err
		}
		total += u
	}
	return total, nil
}

func (c *Composite) Capacity(ctx context.Context) (int64, error) {
	var total int64
	for _, s := range c.silos {
		cap, err := s.Capacity(ctx)
		if err != nil {
			return 0, err
		}
		total += cap
	}
	return total, nil
}

func (c *Composite) OnChange(n silo.Notifier) { c.notifier = n }

func (c *Composite) notify(addr address.Address) {
	if c.notifier != nil {
		c.notifier(addr, true)
	}
}
