package cache

import (
	"context"
	"runtime"
	"weak"

	"go.uber.org/zap"
)

// Identity is a generic, concurrency-safe identity cache: a map from stable
// id to a deduplicated, lifetime-managed instance of a domain value.
//
// The map holds weak handles, so a value stays resident only while something
// keeps it alive: either an outside holder or the LRU policy's strong hold.
// When the last holder drops a handle, the collector runs a cleanup that
// prunes the map slot, checking slot identity so a newer handle for the same
// id is never disturbed.
//
// Misses are not single-flight: concurrent misses for one id may each call
// onMiss, and the check-then-insert step in Insert picks exactly one winner.
// The contract is at most one visible value per id, not at most one fetch.
type Identity[K comparable, E any] struct {
	name    string
	log     *zap.Logger
	key     func(*E) K
	slots   *shardedMap[K, E]
	policy  *policy[K, E]
	events  *buffer[K, E]
	metrics *cacheMetrics
}

// Option configures an Identity cache.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	metrics   *Metrics
	batchSize int
}

// WithLogger sets the logger used for eviction and pruning diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.logger = log }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithBatchSize overrides the event-buffer batch size. Smaller batches make
// the policy observe events sooner at the cost of more lock acquisitions.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// NewIdentity creates an identity cache holding at most capacity values
// alive on the caller's behalf. key extracts the stable identifier of a
// value.
func NewIdentity[K comparable, E any](name string, capacity int, key func(*E) K, opts ...Option) *Identity[K, E] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Identity[K, E]{
		name:    name,
		log:     o.logger,
		key:     key,
		slots:   newShardedMap[K, E](),
		policy:  newPolicy[K, E](capacity),
		metrics: o.metrics.forCache(name),
	}
	c.events = newBuffer(o.batchSize, c.commit)
	return c
}

type lookupState uint8

const (
	lookupMiss lookupState = iota
	lookupHit
	lookupNegative
)

func (c *Identity[K, E]) lookup(id K) (*E, lookupState) {
	e, ok := c.slots.load(id)
	switch {
	case !ok:
		return nil, lookupMiss
	case e.negative:
		return nil, lookupNegative
	}
	if v := e.handle.Value(); v != nil {
		return v, lookupHit
	}
	// The handle died but its cleanup has not pruned the slot yet.
	return nil, lookupMiss
}

// Lookup peeks at the cache without recording an access and without
// consulting the store.
func (c *Identity[K, E]) Lookup(id K) (*E, bool) {
	v, state := c.lookup(id)
	return v, state == lookupHit
}

// Get returns the cached value for id, calling onMiss to fetch it when the
// id is unknown. A nil result from onMiss is remembered as a negative entry
// so the next lookup answers without a store round-trip; Get then returns
// (nil, nil). Errors from onMiss are passed through unchanged and nothing is
// remembered.
func (c *Identity[K, E]) Get(ctx context.Context, id K, onMiss func(context.Context) (*E, error)) (*E, error) {
	switch v, state := c.lookup(id); state {
	case lookupHit:
		c.metrics.hit()
		c.events.emit(event[K, E]{kind: evAccess, key: id})
		return v, nil
	case lookupNegative:
		c.metrics.negativeHit()
		c.events.emit(event[K, E]{kind: evAccess, key: id})
		return nil, nil
	}

	c.metrics.miss()
	v, err := onMiss(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		c.rememberNegative(id)
		return nil, nil
	}
	return c.Insert(v), nil
}

// GetMultiple resolves hits immediately and fetches the remaining ids in one
// batched onMiss call. Results come back in the original query order; an id
// the batch fetch does not return is negative-cached and silently dropped
// from the result. onMiss must return values in the relative order of the
// ids it was given.
func (c *Identity[K, E]) GetMultiple(ctx context.Context, ids []K, onMiss func(context.Context, []K) ([]*E, error)) ([]*E, error) {
	const (
		stateMiss = iota
		stateHit
		stateSkip
	)

	hits := make([]*E, len(ids))
	states := make([]uint8, len(ids))
	var misses []K

	for i, id := range ids {
		switch v, state := c.lookup(id); state {
		case lookupHit:
			hits[i] = v
			states[i] = stateHit
			c.metrics.hit()
			c.events.emit(event[K, E]{kind: evAccess, key: id})
		case lookupNegative:
			states[i] = stateSkip
			c.metrics.negativeHit()
		default:
			misses = append(misses, id)
			c.metrics.miss()
		}
	}

	var fetched []*E
	if len(misses) > 0 {
		var err error
		if fetched, err = onMiss(ctx, misses); err != nil {
			return nil, err
		}
	}

	out := make([]*E, 0, len(ids))
	j := 0
	for i, id := range ids {
		switch states[i] {
		case stateHit:
			out = append(out, hits[i])
		case stateSkip:
		default:
			if j < len(fetched) && c.key(fetched[j]) == id {
				out = append(out, c.Insert(fetched[j]))
				j++
			} else {
				c.rememberNegative(id)
			}
		}
	}
	return out, nil
}

// Insert makes value resident and returns its canonical handle. Insertion is
// idempotent by identity: if a live handle already exists for the id, that
// handle is returned and value is discarded.
func (c *Identity[K, E]) Insert(value *E) *E {
	id := c.key(value)
	sh := c.slots.shard(id)

	sh.mu.Lock()
	if e, ok := sh.slots[id]; ok && !e.negative {
		if cur := e.handle.Value(); cur != nil {
			sh.mu.Unlock()
			return cur
		}
	}
	h := weak.Make(value)
	sh.slots[id] = entry[E]{handle: h}
	sh.mu.Unlock()

	runtime.AddCleanup(value, pruner[K, E].prune, pruner[K, E]{shard: sh, id: id, handle: h})

	c.events.emit(event[K, E]{kind: evInsert, key: id, value: value})
	return value
}

// Remove clears the identity-map slot for id without touching any strong
// hold the policy may have. The next access misses and repopulates from the
// store; used after confirmed deletes or mutations the in-memory copy does
// not reflect.
func (c *Identity[K, E]) Remove(id K) {
	c.slots.delete(id)
}

// Size reports resident identity-map entries, negatives included.
func (c *Identity[K, E]) Size() int {
	return c.slots.size()
}

// Flush drains buffered events into the policy synchronously.
func (c *Identity[K, E]) Flush() {
	c.events.flush()
}

func (c *Identity[K, E]) rememberNegative(id K) {
	c.slots.storeNegative(id)
	c.events.emit(event[K, E]{kind: evNegative, key: id})
}

// commit applies a filled event batch to the policy. Runs off the reader's
// critical path; the policy lock is held only for the batch.
func (c *Identity[K, E]) commit(batch []event[K, E]) {
	victims := c.policy.apply(batch)
	for _, v := range victims {
		c.metrics.eviction()
		if v.value == nil {
			c.slots.dropNegative(v.key)
			continue
		}
		// Dropping the policy's strong hold is enough: once outside
		// holders release the handle, its cleanup prunes the map slot.
		c.log.Debug("evicted cache entry", zap.String("cache", c.name))
	}
	if len(victims) > 0 {
		c.metrics.setEntries(c.Size())
	}
}
