package resolver

import "github.com/meshvault/core/block"

// Dummy discards the concurrent change and keeps the caller's proposed
// content, rebasing only the version so the retried write lands after the
// cluster's confirmed one — last-writer-wins, for callers where that's an
// acceptable conflict policy (§4.7).
type Dummy struct{}

func (Dummy) Resolve(proposed, current block.Block) (block.Block, error) {
	merged := proposed.Clone()
	if pv, ok := merged.(block.Versioned); ok {
		if cv, ok := current.(block.Versioned); ok {
			pv.SetVersion(cv.GetVersion())
		}
	}
	return merged, nil
}

// Squashable always squashes: once a caller has opted into last-writer-wins,
// every subsequent conflict in the same retry loop should too.
func (Dummy) Squashable([]Resolver) Decision { return Squash }

func (Dummy) Description() string { return "dummy: last-writer-wins" }

var _ Resolver = Dummy{}
