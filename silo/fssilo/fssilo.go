// Package fssilo implements silo.Silo over a local directory: one file per
// address, written via a temp-file-plus-atomic-rename so a crash never
// leaves a torn write (spec §4.1/§6.4).
package fssilo

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

// FSSilo is a directory-backed silo.
type FSSilo struct {
	root     string
	capacity int64

	mu       sync.Mutex
	notifier silo.Notifier
}

// New opens (creating if absent) a filesystem silo rooted at dir. capacity
// of 0 means unbounded.
func New(dir string, capacity int64) (*FSSilo, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FSSilo{root: dir, capacity: capacity}, nil
}

func (s *FSSilo) path(addr address.Address) string {
	name := addr.String()
	// Two-level fan-out keeps any one directory from holding every block.
	return filepath.Join(s.root, name[:2], name)
}

func (s *FSSilo) Get(_ context.Context, addr address.Address) ([]byte, error) {
	b, err := os.ReadFile(s.path(addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, silo.ErrMissing
		}
		return nil, err
	}
	return b, nil
}

func (s *FSSilo) Set(_ context.Context, addr address.Address, data []byte, insert, update bool) (int64, error) {
	p := s.path(addr)
	existing, statErr := os.Stat(p)
	exists := statErr == nil

	if insert && exists {
		return 0, silo.ErrCollision
	}
	if update && !exists {
		return 0, silo.ErrMissing
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return 0, err
	}

	var delta int64 = int64(len(data))
	if exists {
		delta -= existing.Size()
	}
	s.notify(addr, true)
	return delta, nil
}

func (s *FSSilo) Erase(_ context.Context, addr address.Address) error {
	if err := os.Remove(s.path(addr)); err != nil {
		if os.IsNotExist(err) {
			return silo.ErrMissing
		}
		return err
	}
	s.notify(addr, true)
	return nil
}

func (s *FSSilo) List(_ context.Context) iter.Seq2[address.Address, error] {
	return func(yield func(address.Address, error) bool) {
		_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(address.Address{}, err) {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if len(base) > 0 && base[0] == '.' {
				return nil
			}
			var a address.Address
			if uerr := a.UnmarshalText([]byte(base)); uerr != nil {
				return nil
			}
			if !yield(a, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (s *FSSilo) Status(_ context.Context, addr address.Address) (silo.Status, error) {
	if _, err := os.Stat(s.path(addr)); err != nil {
		if os.IsNotExist(err) {
			return silo.StatusMissing, nil
		}
		return silo.StatusUnknown, err
	}
	return silo.StatusPresent, nil
}

func (s *FSSilo) Usage(ctx context.Context) (int64, error) {
	var total int64
	for _, err := range s.List(ctx) {
		if err != nil {
			return 0, err
		}
	}
	_ = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total, nil
}

func (s *FSSilo) Capacity(context.Context) (int64, error) { return s.capacity, nil }

func (s *FSSilo) OnChange(n silo.Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *FSSilo) notify(addr address.Address, mutated bool) {
	s.mu.Lock()
	n := s.notifier
	s.mu.Unlock()
	if n != nil {
		n(addr, mutated)
	}
}
