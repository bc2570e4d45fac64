package chanring

import (
	"errors"
	"fmt"
)

var ErrInvalidCapacity = errors.New("chanring: slot count must be a power of two >= 2")

// ChanRing wraps a buffered channel behind the non-blocking ring contract.
// It holds slots-1 elements so it can be compared directly with the ring buffers.
type ChanRing[T any] struct {
	ch chan T
}

func New[T any](slots uint64) (*ChanRing[T], error) {
	// A zero-capacity channel would be a rendezvous point, not a buffer.
	if slots < 2 || slots&(slots-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, slots)
	}
	return &ChanRing[T]{
		ch: make(chan T, slots-1),
	}, nil
}

func MustNew[T any](slots uint64) *ChanRing[T] {
	q, err := New[T](slots)
	if err != nil {
		panic(err)
	}
	return q
}

func (q *ChanRing[T]) Enqueue(val T) bool {
	select {
	case q.ch <- val:
		return true
	default:
		return false
	}
}

func (q *ChanRing[T]) EnqueueMove(val *T) bool {
	if val == nil || !q.Enqueue(*val) {
		return false
	}
	var zero T
	*val = zero
	return true
}

func (q *ChanRing[T]) Dequeue() (val T, ok bool) {
	select {
	case val = <-q.ch:
		return val, true
	default:
		return val, false
	}
}

func (q *ChanRing[T]) Len() uint64       { return uint64(len(q.ch)) }
func (q *ChanRing[T]) Cap() uint64       { return uint64(cap(q.ch)) }
func (q *ChanRing[T]) IsEmpty() bool     { return len(q.ch) == 0 }
func (q *ChanRing[T]) IsFull() bool      { return len(q.ch) == cap(q.ch) }
func (q *ChanRing[T]) FreeSlots() uint64 { return uint64(cap(q.ch) - len(q.ch)) }
func (q *ChanRing[T]) UsedSlots() uint64 { return uint64(len(q.ch)) }
