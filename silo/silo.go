// Package silo defines the narrow local blob-store contract every storage
// back-end implements (spec §4.1). Consensus and the model façade never talk
// to a filesystem, bucket or KV engine directly — only to this interface.
package silo

import (
	"context"
	"errors"
	"iter"

	"github.com/meshvault/core/address"
)

// ErrMissing is returned by Get/Erase/Status for an address with no stored
// value.
var ErrMissing = errors.New("silo: address not present")

// ErrCollision is returned by Set when Insert is true and the address
// already exists.
var ErrCollision = errors.New("silo: address already exists")

// Status is the tri-state result of Status: a silo may not be able to
// cheaply distinguish "missing" from "don't know" (e.g. a partially
// replicated composite silo).
type Status int

const (
	StatusUnknown Status = iota
	StatusPresent
	StatusMissing
)

// Notifier is called after every successful mutation so the consensus layer
// can refresh usage statistics (§4.1).
type Notifier func(addr address.Address, mutated bool)

// Silo is the local blob-store contract (§4.1's operation table).
type Silo interface {
	Get(ctx context.Context, addr address.Address) ([]byte, error)

	// Set stores data at addr. insert requires the address not already
	// exist (ErrCollision otherwise); update requires it already exist
	// (ErrMissing otherwise). Both false means upsert. Returns the signed
	// byte delta in stored size.
	Set(ctx context.Context, addr address.Address, data []byte, insert, update bool) (delta int64, err error)

	Erase(ctx context.Context, addr address.Address) error

	// List returns a lazy sequence of every stored address.
	List(ctx context.Context) iter.Seq2[address.Address, error]

	Status(ctx context.Context, addr address.Address) (Status, error)

	Usage(ctx context.Context) (int64, error)
	Capacity(ctx context.Context) (int64, error)

	// OnChange registers a Notifier; silos may support only one, matching
	// the teacher convention of a single owning consensus server per silo.
	OnChange(Notifier)
}
