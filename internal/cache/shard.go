package cache

import (
	"hash/maphash"
	"sync"
	"weak"
)

// shardCount is the number of locks the identity map is striped across so
// that lookups for unrelated ids never contend.
const shardCount = 32

// entry is one identity-map slot. A negative entry remembers that the store
// confirmed the id absent; otherwise the entry holds a weak handle that stops
// resolving once no strong holder remains.
type entry[E any] struct {
	handle   weak.Pointer[E]
	negative bool
}

type shard[K comparable, E any] struct {
	mu    sync.RWMutex
	slots map[K]entry[E]
}

type shardedMap[K comparable, E any] struct {
	seed   maphash.Seed
	shards [shardCount]shard[K, E]
}

func newShardedMap[K comparable, E any]() *shardedMap[K, E] {
	m := &shardedMap[K, E]{seed: maphash.MakeSeed()}
	for i := range m.shards {
		m.shards[i].slots = make(map[K]entry[E])
	}
	return m
}

func (m *shardedMap[K, E]) shard(id K) *shard[K, E] {
	return &m.shards[maphash.Comparable(m.seed, id)%shardCount]
}

// load reports the slot for id, if any.
func (m *shardedMap[K, E]) load(id K) (entry[E], bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	e, ok := sh.slots[id]
	sh.mu.RUnlock()
	return e, ok
}

// storeNegative remembers a confirmed-absent id.
func (m *shardedMap[K, E]) storeNegative(id K) {
	sh := m.shard(id)
	sh.mu.Lock()
	sh.slots[id] = entry[E]{negative: true}
	sh.mu.Unlock()
}

// dropNegative removes the slot for id only while it is still a negative
// entry; a live handle inserted in the meantime is left alone.
func (m *shardedMap[K, E]) dropNegative(id K) {
	sh := m.shard(id)
	sh.mu.Lock()
	if e, ok := sh.slots[id]; ok && e.negative {
		delete(sh.slots, id)
	}
	sh.mu.Unlock()
}

// delete removes the slot for id unconditionally.
func (m *shardedMap[K, E]) delete(id K) {
	sh := m.shard(id)
	sh.mu.Lock()
	delete(sh.slots, id)
	sh.mu.Unlock()
}

// size counts resident slots, negatives included.
func (m *shardedMap[K, E]) size() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.RLock()
		n += len(sh.slots)
		sh.mu.RUnlock()
	}
	return n
}

// pruner removes a dead handle's map slot once the handle is collected. The
// slot is only removed while it still points at that exact handle: a newer
// handle inserted for the same id must not be disturbed.
type pruner[K comparable, E any] struct {
	shard  *shard[K, E]
	id     K
	handle weak.Pointer[E]
}

func (p pruner[K, E]) prune() {
	p.shard.mu.Lock()
	if e, ok := p.shard.slots[p.id]; ok && !e.negative && e.handle == p.handle {
		delete(p.shard.slots, p.id)
	}
	p.shard.mu.Unlock()
}
