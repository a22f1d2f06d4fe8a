// Package silomock provides an in-memory silo.Silo fake for tests, matching
// the teacher's sibling-package mock convention (validators/validatorsmock,
// networking/sender/sendermock) without pulling a real storage back-end into
// test binaries.
package silomock

import (
	"context"
	"iter"
	"sync"

	"github.com/meshvault/core/address"
	"github.com/meshvault/core/silo"
)

// Mock is a thread-safe in-memory silo.
type Mock struct {
	mu       sync.Mutex
	data     map[address.Address][]byte
	notifier silo.Notifier
	capacity int64
}

func New(capacity int64) *Mock {
	return &Mock{data: make(map[address.Address][]byte), capacity: capacity}
}

func (m *Mock) Get(_ context.Context, addr address.Address) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[addr]
	if !ok {
		return nil, silo.ErrMissing
	}
	return append([]byte(nil), v...), nil
}

func (m *Mock) Set(_ context.Context, addr address.Address, data []byte, insert, update bool) (int64, error) {
	m.mu.Lock()
	existing, exists := m.data[addr]
	if insert && exists {
		m.mu.Unlock()
		return 0, silo.ErrCollision
	}
	if update && !exists {
		m.mu.Unlock()
		return 0, silo.ErrMissing
	}
	m.data[addr] = append([]byte(nil), data...)
	delta := int64(len(data) - len(existing))
	n := m.notifier
	m.mu.Unlock()
	if n != nil {
		n(addr, true)
	}
	return delta, nil
}

func (m *Mock) Erase(_ context.Context, addr address.Address) error {
	m.mu.Lock()
	_, exists := m.data[addr]
	if !exists {
		m.mu.Unlock()
		return silo.ErrMissing
	}
	delete(m.data, addr)
	n := m.notifier
	m.mu.Unlock()
	if n != nil {
		n(addr, true)
	}
	return nil
}

func (m *Mock) List(context.Context) iter.Seq2[address.Address, error] {
	m.mu.Lock()
	addrs := make([]address.Address, 0, len(m.data))
	for a := range m.data {
		addrs = append(addrs, a)
	}
	m.mu.Unlock()
	return func(yield func(address.Address, error) bool) {
		for _, a := range addrs {
			if !yield(a, nil) {
				return
			}
		}
	}
}

func (m *Mock) Status(_ context.Context, addr address.Address) (silo.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[addr]; ok {
		return silo.StatusPresent, nil
	}
	return silo.StatusMissing, nil
}

func (m *Mock) Usage(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, v := range m.data {
		total += int64(len(v))
	}
	return total, nil
}

func (m *Mock) Capacity(context.Context) (int64, error) { return m.capacity, nil }

func (m *Mock) OnChange(n silo.Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}
