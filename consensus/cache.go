package consensus

import (
	"github.com/dgraph-io/ristretto/v2"

	"github.com/meshvault/core/address"
)

// decisionCache is the bounded cache of recently touched per-address Paxos
// decisions (§4.5.6), so hot addresses avoid a silo round trip on every
// propose/accept/confirm. It is backed by ristretto, whose admission and
// eviction policy is frequency-based (TinyLFU), not least-recently-used.
// The silo stays the source of truth:
// a cache miss or eviction always falls back to silo.Get.
type decisionCache struct {
	c *ristretto.Cache[address.Address, Record]
}

func newDecisionCache(maxEntries int64) (*decisionCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[address.Address, Record]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{c: c}, nil
}

func (d *decisionCache) get(addr address.Address) (Record, bool) {
	return d.c.Get(addr)
}

func (d *decisionCache) set(addr address.Address, r Record) {
	d.c.Set(addr, r, 1)
}

func (d *decisionCache) remove(addr address.Address) {
	d.c.Del(addr)
}
