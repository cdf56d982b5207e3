package stakingd

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"nftstake/native/staking"
)

// estimateCache memoises reward projections. Entries expire after ttl and the
// whole cache is purged whenever a mutating request completes.
type estimateCache struct {
	lru *expirable.LRU[string, *staking.Estimate]
}

func newEstimateCache(size int, ttl time.Duration) *estimateCache {
	return &estimateCache{lru: expirable.NewLRU[string, *staking.Estimate](size, nil, ttl)}
}

func estimateKey(item [20]byte, elapsed int64) string {
	return fmt.Sprintf("%x:%d", item[:], elapsed)
}

func (c *estimateCache) Get(item [20]byte, elapsed int64) (*staking.Estimate, bool) {
	return c.lru.Get(estimateKey(item, elapsed))
}

func (c *estimateCache) Set(item [20]byte, elapsed int64, est *staking.Estimate) {
	c.lru.Add(estimateKey(item, elapsed), est)
}

// Clear removes all entries.
func (c *estimateCache) Clear() {
	c.lru.Purge()
}
