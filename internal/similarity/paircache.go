package similarity

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

// pairCache memoizes pair similarities. Keys include each document's
// version, so re-indexing a document makes its old pairs unreachable and
// they age out through the TTL and the size bound.
type pairCache struct {
	lru     *expirable.LRU[uint64, float64]
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

func newPairCache(size int, ttl time.Duration, m *metrics.Metrics) *pairCache {
	if size <= 0 {
		size = 50_000
	}
	return &pairCache{
		lru:     expirable.NewLRU[uint64, float64](size, nil, ttl),
		metrics: m,
	}
}

// pairKey is independent of argument order.
func pairKey(a string, va uint64, b string, vb uint64) uint64 {
	if b < a {
		a, b = b, a
		va, vb = vb, va
	}
	buf := make([]byte, 0, len(a)+len(b)+44)
	buf = append(buf, a...)
	buf = append(buf, 0)
	buf = strconv.AppendUint(buf, va, 10)
	buf = append(buf, 0)
	buf = append(buf, b...)
	buf = append(buf, 0)
	buf = strconv.AppendUint(buf, vb, 10)
	return xxhash.Sum64(buf)
}

func (c *pairCache) get(key uint64) (float64, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.PairCacheHitsTotal.Inc()
		}
	} else {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.PairCacheMissesTotal.Inc()
		}
	}
	return v, ok
}

func (c *pairCache) put(key uint64, v float64) {
	c.lru.Add(key, v)
}

func (c *pairCache) purge() {
	c.lru.Purge()
}

func (c *pairCache) len() int {
	return c.lru.Len()
}
