package resolver

import "github.com/meshvault/core/block"

// Merge holds an ordered list of domain sub-resolvers (filesystem directory
// edits, group membership edits, ...) and applies each in turn, letting a
// caller compose several independent conflict policies into one resolver
// (§4.7: "holds an ordered list of sub-resolvers; applies each in turn;
// squashes its own kind").
type Merge struct {
	sub []Resolver
}

// New builds a Merge applying each of sub in order.
func New(sub ...Resolver) *Merge {
	return &Merge{sub: sub}
}

func (m *Merge) Resolve(proposed, current block.Block) (block.Block, error) {
	merged := proposed
	for _, r := range m.sub {
		var err error
		merged, err = r.Resolve(merged, current)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// Squashable squashes when the resolver on top of previousStack is also a
// *Merge, so the retry loop doesn't re-walk every sub-resolver's own
// squashable() on every single conflict.
func (m *Merge) Squashable(previousStack []Resolver) Decision {
	if len(previousStack) == 0 {
		return Stop
	}
	if _, ok := previousStack[len(previousStack)-1].(*Merge); ok {
		return Squash
	}
	return Stop
}

func (m *Merge) Description() string {
	desc := "merge("
	for i, r := range m.sub {
		if i > 0 {
			desc += ", "
		}
		desc += r.Description()
	}
	return desc + ")"
}

var _ Resolver = (*Merge)(nil)
