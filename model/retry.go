package model

import (
	"context"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/block"
	"github.com/meshvault/core/errs"
	"github.com/meshvault/core/resolver"
)

// opFunc is Protocol.Insert or Protocol.Update, both `(ctx, block.Block) error`.
type opFunc func(ctx context.Context, b block.Block) error

// retry drives op against b, and on a Conflict asks res to merge the
// caller's proposed block against the cluster's current one, re-sealing and
// retrying up to cfg.MaxConflictRetries times (§4.6). res defaults to
// resolver.Dummy (last-writer-wins) when the caller passes nil.
func (f *Facade) retry(ctx context.Context, priv *address.PrivateKey, b block.Block, res resolver.Resolver, op opFunc) error {
	if res == nil {
		res = resolver.Dummy{}
	}
	var stack []resolver.Resolver
	for attempt := 0; attempt <= f.cfg.MaxConflictRetries; attempt++ {
		err := op(ctx, b)
		if err == nil {
			return nil
		}
		conflict, ok := asConflict(err)
		if !ok {
			return err
		}
		current, ok := conflict.CurrentValue.(block.Block)
		if !ok {
			return err
		}
		merged, err := res.Resolve(b, current)
		if err != nil {
			return err
		}
		if err := merged.Seal(priv); err != nil {
			return err
		}
		b = merged
		// Fold the resolver chain per §4.6: a resolver that reports Squash
		// against the stack so far collapses into the entry already on top
		// (repeated same-kind resolution, e.g. Dummy) instead of growing the
		// stack with a redundant entry.
		if len(stack) > 0 && res.Squashable(stack) == resolver.Squash {
			stack[len(stack)-1] = res
		} else {
			stack = append(stack, res)
		}
	}
	return errs.New(errs.KindConflict, "model: exceeded max conflict retries")
}
