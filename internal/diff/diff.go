// Package diff describes positional edits to an ordered collection and a pure
// function applying them. Backends emit batches of these operations; the
// state package applies them to shared lists under a lock.
package diff

import (
	"errors"
	"fmt"
)

// Kind enumerates the supported list edits.
type Kind int

const (
	KindAppend Kind = iota
	KindPushFront
	KindPushBack
	KindPopFront
	KindPopBack
	KindInsert
	KindSet
	KindRemove
	KindMove
	KindTruncate
	KindClear
	KindReset
)

var kindNames = map[Kind]string{
	KindAppend:    "append",
	KindPushFront: "push_front",
	KindPushBack:  "push_back",
	KindPopFront:  "pop_front",
	KindPopBack:   "pop_back",
	KindInsert:    "insert",
	KindSet:       "set",
	KindRemove:    "remove",
	KindMove:      "move",
	KindTruncate:  "truncate",
	KindClear:     "clear",
	KindReset:     "reset",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op is a single edit. Index is the position for Insert, Set and Remove,
// the source for Move and the length for Truncate. To is the destination of
// a Move. Values carries the payload for Append and Reset; Value for the
// single-element operations.
type Op[T any] struct {
	Kind   Kind
	Index  int
	To     int
	Value  T
	Values []T
}

func Append[T any](values ...T) Op[T] { return Op[T]{Kind: KindAppend, Values: values} }
func PushFront[T any](value T) Op[T] { return Op[T]{Kind: KindPushFront, Value: value} }
func PushBack[T any](value T) Op[T] { return Op[T]{Kind: KindPushBack, Value: value} }
func PopFront[T any]() Op[T] { return Op[T]{Kind: KindPopFront} }
func PopBack[T any]() Op[T] { return Op[T]{Kind: KindPopBack} }
func Insert[T any](i int, value T) Op[T] { return Op[T]{Kind: KindInsert, Index: i, Value: value} }
func Set[T any](i int, value T) Op[T] { return Op[T]{Kind: KindSet, Index: i, Value: value} }
func Remove[T any](i int) Op[T] { return Op[T]{Kind: KindRemove, Index: i} }
func Move[T any](from, to int) Op[T] { return Op[T]{Kind: KindMove, Index: from, To: to} }
func Truncate[T any](n int) Op[T] { return Op[T]{Kind: KindTruncate, Index: n} }
func Clear[T any]() Op[T] { return Op[T]{Kind: KindClear} }
func Reset[T any](values ...T) Op[T] { return Op[T]{Kind: KindReset, Values: values} }

// ErrOutOfRange is wrapped by every error reported for an operation whose
// index does not fit the collection it is applied to.
var ErrOutOfRange = errors.New("diff: index out of range")

// Apply applies ops in order to values and returns the resulting slice. The
// input slice may be reused. Operations that do not fit the current length
// are skipped; their errors are joined and returned alongside the result so
// a single bad op never discards the rest of a batch.
func Apply[T any](values []T, ops []Op[T]) ([]T, error) {
	var errs []error
	for n, op := range ops {
		var err error
		values, err = applyOne(values, op)
		if err != nil {
			errs = append(errs, fmt.Errorf("op %d (%s): %w", n, op.Kind, err))
		}
	}
	return values, errors.Join(errs...)
}

func applyOne[T any](values []T, op Op[T]) ([]T, error) {
	switch op.Kind {
	case KindAppend:
		return append(values, op.Values...), nil
	case KindPushBack:
		return append(values, op.Value), nil
	case KindPushFront:
		return insertAt(values, 0, op.Value), nil
	case KindPopFront:
		if len(values) == 0 {
			return values, ErrOutOfRange
		}
		return removeAt(values, 0), nil
	case KindPopBack:
		if len(values) == 0 {
			return values, ErrOutOfRange
		}
		return values[:len(values)-1], nil
	case KindInsert:
		if op.Index < 0 || op.Index > len(values) {
			return values, outOfRange(op.Index, len(values))
		}
		return insertAt(values, op.Index, op.Value), nil
	case KindSet:
		if op.Index < 0 || op.Index >= len(values) {
			return values, outOfRange(op.Index, len(values))
		}
		values[op.Index] = op.Value
		return values, nil
	case KindRemove:
		if op.Index < 0 || op.Index >= len(values) {
			return values, outOfRange(op.Index, len(values))
		}
		return removeAt(values, op.Index), nil
	case KindMove:
		if op.Index < 0 || op.Index >= len(values) {
			return values, outOfRange(op.Index, len(values))
		}
		if op.To < 0 || op.To >= len(values) {
			return values, outOfRange(op.To, len(values))
		}
		v := values[op.Index]
		values = removeAt(values, op.Index)
		return insertAt(values, op.To, v), nil
	case KindTruncate:
		if op.Index < 0 {
			return values, outOfRange(op.Index, len(values))
		}
		if op.Index < len(values) {
			var zero T
			for i := op.Index; i < len(values); i++ {
				values[i] = zero
			}
			values = values[:op.Index]
		}
		return values, nil
	case KindClear:
		clear(values)
		return values[:0], nil
	case KindReset:
		out := make([]T, len(op.Values))
		copy(out, op.Values)
		return out, nil
	default:
		return values, fmt.Errorf("diff: unknown kind %d", int(op.Kind))
	}
}

func outOfRange(index, length int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrOutOfRange, index, length)
}

func insertAt[T any](values []T, i int, v T) []T {
	var zero T
	values = append(values, zero)
	copy(values[i+1:], values[i:])
	values[i] = v
	return values
}

func removeAt[T any](values []T, i int) []T {
	copy(values[i:], values[i+1:])
	var zero T
	values[len(values)-1] = zero
	return values[:len(values)-1]
}
