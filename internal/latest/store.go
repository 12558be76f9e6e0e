// Package latest provides a single-slot, latest-wins value store for one
// writer and any number of concurrent readers.
package latest

import "sync"

// Store holds the most recently published value of T. Published values must
// not be modified afterwards; readers share them.
type Store[T any] struct {
	mu      sync.Mutex
	value   T
	ok      bool
	seq     uint64
	changed chan struct{}
}

// New returns an empty store. The zero Store is also ready to use.
func New[T any]() *Store[T] {
	return &Store[T]{changed: make(chan struct{})}
}

// Publish replaces the current value and wakes everyone waiting on Changed.
func (s *Store[T]) Publish(v T) {
	s.mu.Lock()
	s.value = v
	s.ok = true
	s.seq++
	ch := s.changed
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

// Latest returns the current value, or false if nothing was published yet.
func (s *Store[T]) Latest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.ok
}

// Snapshot returns the current value together with its sequence number.
func (s *Store[T]) Snapshot() (v T, seq uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.seq, s.ok
}

// Seq returns the number of publishes so far.
func (s *Store[T]) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Changed returns a channel that is closed by the next Publish.
func (s *Store[T]) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.changed
}
