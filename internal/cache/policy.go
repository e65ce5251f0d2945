package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// victim is an entry pushed out of the policy. A nil value means a negative
// placeholder was evicted; otherwise the policy's strong hold on the handle
// is gone and the handle lives only as long as outside holders keep it.
type victim[K comparable, E any] struct {
	key   K
	value *E
}

// policy is the capacity-bounded LRU ordering over the identity cache's
// strong holds. It has a single owner: batches are applied under one mutex,
// held only for the batch. Ties are broken by strict recency.
type policy[K comparable, E any] struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[K, *E]
	victims []victim[K, E]
}

func newPolicy[K comparable, E any](capacity int) *policy[K, E] {
	if capacity < 1 {
		capacity = 1
	}
	p := &policy[K, E]{}
	// NewLRU only fails for a non-positive size, which is guarded above.
	p.lru, _ = simplelru.NewLRU(capacity, func(key K, value *E) {
		p.victims = append(p.victims, victim[K, E]{key: key, value: value})
	})
	return p
}

// apply replays a batch of events and returns the entries evicted while
// doing so. Access promotes to most-recently-used; negative results and
// inserts push and may evict the least-recently-used entry.
func (p *policy[K, E]) apply(batch []event[K, E]) []victim[K, E] {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ev := range batch {
		switch ev.kind {
		case evAccess:
			p.lru.Get(ev.key)
		case evNegative:
			p.lru.Add(ev.key, nil)
		case evInsert:
			p.lru.Add(ev.key, ev.value)
		}
	}

	victims := p.victims
	p.victims = nil
	return victims
}

// len reports how many entries the policy currently pins.
func (p *policy[K, E]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lru.Len()
}
