package state

import (
	"sync"

	"github.com/atomicstack/multiverse/internal/diff"
)

// List is an ordered collection mutated only by diff batches. Every method
// takes the lock for exactly one operation; nothing is called while it is
// held.
type List[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewList returns a list seeded with a copy of initial.
func NewList[T any](initial ...T) *List[T] {
	return &List[T]{values: cloneValues(initial)}
}

// ApplyBatch applies ops in order as one atomic step. Readers observe either
// the state before the batch or after it, never an intermediate one.
// Operations that do not fit are skipped and reported in the returned error.
func (l *List[T]) ApplyBatch(ops []diff.Op[T]) error {
	if len(ops) == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	values, err := diff.Apply(l.values, ops)
	l.values = values
	return err
}

// Snapshot returns a copy of the current values.
func (l *List[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneValues(l.values)
}

// Len returns the current number of values.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// At returns the value at index i.
func (l *List[T]) At(i int) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.values) {
		var zero T
		return zero, false
	}
	return l.values[i], true
}

// Find returns the index of the first value matching match.
func (l *List[T]) Find(match func(T) bool) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.values {
		if match(v) {
			return i, true
		}
	}
	return -1, false
}

func cloneValues[T any](values []T) []T {
	if len(values) == 0 {
		return nil
	}
	dup := make([]T, len(values))
	copy(dup, values)
	return dup
}
