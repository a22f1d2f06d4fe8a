// Package resolver implements the conflict resolvers the model façade
// invokes when a Paxos write loses a race (spec §4.7, component C9): a
// typed callable that merges the caller's proposed block with the cluster's
// currently chosen one, plus a squashing decision used when chaining
// resolvers into Merge.
package resolver

import "github.com/meshvault/core/block"

// Decision is a resolver's answer to "should the next conflict in this
// retry loop be folded into me instead of re-invoking the caller's full
// stack" (§4.6: "squash_stack returns one of {stop, squash}").
type Decision int

const (
	// Stop means subsequent conflicts should go back through the full
	// resolver stack from the top.
	Stop Decision = iota
	// Squash means this resolver alone should handle the next conflict
	// without re-walking the stack.
	Squash
)

// Resolver merges a proposed block against the block the cluster actually
// confirmed, for a caller to retry.
type Resolver interface {
	// Resolve computes the merged block to retry with.
	Resolve(proposed, current block.Block) (block.Block, error)

	// Squashable decides, given the resolvers already tried in the current
	// retry loop, whether the next conflict should squash into this one.
	Squashable(previousStack []Resolver) Decision

	// Description is a human-readable summary, surfaced in logs/metrics.
	Description() string
}
