package cache

import "sync"

// slot guards the mutable portion of a cached entity. Reads run concurrently
// with each other and exclusively with writes; the lock is never held across
// a blocking call. An emptied slot is a tombstone: holders of the entity can
// still observe that it was deleted under them, while the immutable portion
// stays readable.
type slot[T any] struct {
	mu    sync.RWMutex
	value *T
}

// init publishes the initial payload. Called once during entity
// construction, before the entity is shared.
func (s *slot[T]) init(value T) {
	s.mu.Lock()
	s.value = &value
	s.mu.Unlock()
}

// view calls f with read access to the payload. It reports false if the slot
// is tombstoned, in which case f is not called.
func (s *slot[T]) view(f func(*T)) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.value == nil {
		return false
	}
	f(s.value)
	return true
}

// update calls f with exclusive access to the payload. It reports false if
// the slot is tombstoned, in which case f is not called.
func (s *slot[T]) update(f func(*T)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return false
	}
	f(s.value)
	return true
}

// take tombstones the slot and hands the final payload to the caller for
// teardown. It reports false if the slot was already tombstoned.
func (s *slot[T]) take() (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.value
	s.value = nil
	return v, v != nil
}

// deleted reports whether the slot is tombstoned.
func (s *slot[T]) deleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value == nil
}
