// Package staging decouples transport goroutines from the consumer goroutine.
// Transports only enqueue; Flush and Dispatch run on the consumer.
package staging

import "sync"

// Locked guards a value with its own mutex. The value is only reachable
// inside With, so the lock is always released.
type Locked[T any] struct {
	mu sync.Mutex
	v  T
}

func NewLocked[T any](v T) *Locked[T] {
	return &Locked[T]{v: v}
}

func (l *Locked[T]) With(fn func(v *T)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(&l.v)
}

// Take swaps the value for zero and returns what was there.
func (l *Locked[T]) Take() T {
	var out T
	l.With(func(v *T) {
		out = *v
		var zero T
		*v = zero
	})
	return out
}
