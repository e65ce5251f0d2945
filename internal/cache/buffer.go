package cache

import (
	"sync"
	"sync/atomic"
)

const (
	// defaultBatchSize is how many events accumulate before a batch is
	// handed to the eviction policy.
	defaultBatchSize = 64

	// bufferStripes spreads event recording across independent locks so
	// concurrent readers do not serialize on a single buffer.
	bufferStripes = 8
)

type eventKind uint8

const (
	// evAccess records a cache hit; the policy promotes the id.
	evAccess eventKind = iota
	// evNegative records a confirmed-absent id; the policy pushes a
	// placeholder.
	evNegative
	// evInsert records a new handle; the policy takes a strong hold on it.
	evInsert
)

type event[K comparable, E any] struct {
	kind  eventKind
	key   K
	value *E // strong handle, insert events only
}

type stripe[K comparable, E any] struct {
	mu     sync.Mutex
	events []event[K, E]
}

// buffer accumulates cache events in striped batches. Recording an event
// takes one short stripe lock; only a filled batch pays for the policy's
// global lock, and it does so on its own goroutine, off the reader's
// critical path.
type buffer[K comparable, E any] struct {
	batchSize int
	commit    func([]event[K, E])
	next      atomic.Uint32
	pending   sync.WaitGroup
	stripes   [bufferStripes]stripe[K, E]
}

func newBuffer[K comparable, E any](batchSize int, commit func([]event[K, E])) *buffer[K, E] {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &buffer[K, E]{batchSize: batchSize, commit: commit}
}

func (b *buffer[K, E]) emit(ev event[K, E]) {
	s := &b.stripes[int(b.next.Add(1)-1)%bufferStripes]

	s.mu.Lock()
	if s.events == nil {
		s.events = make([]event[K, E], 0, b.batchSize)
	}
	s.events = append(s.events, ev)

	var batch []event[K, E]
	if len(s.events) >= b.batchSize {
		batch = s.events
		s.events = make([]event[K, E], 0, b.batchSize)
	}
	s.mu.Unlock()

	if batch != nil {
		b.pending.Add(1)
		go func() {
			defer b.pending.Done()
			b.commit(batch)
		}()
	}
}

// flush waits for in-flight batches and then commits every partially filled
// stripe synchronously. Used at shutdown and wherever policy state must be
// current.
func (b *buffer[K, E]) flush() {
	b.pending.Wait()
	for i := range b.stripes {
		s := &b.stripes[i]
		s.mu.Lock()
		batch := s.events
		s.events = nil
		s.mu.Unlock()
		if len(batch) > 0 {
			b.commit(batch)
		}
	}
}
