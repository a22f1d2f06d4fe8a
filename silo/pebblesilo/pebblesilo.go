// Package pebblesilo implements silo.Silo over an embedded
// github.com/cockroachdb/pebble LSM store — a fourth back-end alongside
// the filesystem, S3 and composite silos (DOMAIN STACK).
package pebblesilo

import (
	"context"
	"iter"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

// PebbleSilo is a pebble-backed silo.
type PebbleSilo struct {
	db       *pebble.DB
	capacity int64

	mu       sync.Mutex
	notifier silo.Notifier
}

// Open opens (creating if absent) a pebble database at dir.
func Open(dir string, capacity int64) (*PebbleSilo, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleSilo{db: db, capacity: capacity}, nil
}

func (s *PebbleSilo) Close() error { return s.db.Close() }

func (s *PebbleSilo) Get(_ context.Context, addr address.Address) ([]byte, error) {
	v, closer, err := s.db.Get(addr.Bytes())
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, silo.ErrMissing
		}
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *PebbleSilo) Set(_ context.Context, addr address.Address, data []byte, insert, update bool) (int64, error) {
	key := addr.Bytes()
	existing, closer, err := s.db.Get(key)
	exists := err == nil
	var existingLen int
	if exists {
		existingLen = len(existing)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return 0, err
	}

	if insert && exists {
		return 0, silo.ErrCollision
	}
	if update && !exists {
		return 0, silo.ErrMissing
	}

	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return 0, err
	}
	s.notify(addr)
	return int64(len(data) - existingLen), nil
}

func (s *PebbleSilo) Erase(_ context.Context, addr address.Address) error {
	key := addr.Bytes()
	if _, closer, err := s.db.Get(key); err != nil {
		if err == pebble.ErrNotFound {
			return silo.ErrMissing
		}
		return err
	} else {
		closer.Close()
	}
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return err
	}
	s.notify(addr)
	return nil
}

func (s *PebbleSilo) List(context.Context) iter.Seq2[address.Address, error] {
	return func(yield func(address.Address, error) bool) {
		it, err := s.db.NewIter(nil)
		if err != nil {
			yield(address.Address{}, err)
			return
		}
		defer it.Close()
		for it.First(); it.Valid(); it.Next() {
			a, aerr := address.FromBytes(it.Key())
			if !yield(a, aerr) {
				return
			}
		}
	}
}

func (s *PebbleSilo) Status(ctx context.Context, addr address.Address) (silo.Status, error) {
	if _, closer, err := s.db.Get(addr.Bytes()); err != nil {
		if err == pebble.ErrNotFound {
			return silo.StatusMissing, nil
		}
		return silo.StatusUnknown, err
	} else {
		closer.Close()
	}
	return silo.StatusPresent, nil
}

func (s *PebbleSilo) Usage(ctx context.Context) (int64, error) {
	metrics := s.db.Metrics()
	return int64(metrics.DiskSpaceUsage()), nil
}

func (s *PebbleSilo) Capacity(context.Context) (int64, error) { return s.capacity, nil }

func (s *PebbleSilo) OnChange(n silo.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *PebbleSilo) notify(addr address.Address) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n(addr, true)
	}
}
