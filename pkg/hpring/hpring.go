// Package hpring implements a bounded, fixed-capacity ring buffer that hands
// values from producer goroutines to consumer goroutines without blocking.
//
// Producers serialize on one mutex and consumers on another, so a producer
// and a consumer never wait for each other. The two sides only meet through
// the head and tail cursors, which are published with atomic stores and
// observed with atomic loads: a consumer that sees an advanced head also sees
// the slot written before it, and a producer that sees an advanced tail also
// sees the slot released before it.
//
// The buffer holds N slots (N a power of two) and stores at most N-1 values.
// One slot is always left empty so that head == tail means empty and
// head+1 == tail means full.
//
//	rb := hpring.MustNew[string](4) // 3 usable slots
//	rb.Enqueue("a")
//	v, ok := rb.Dequeue() // "a", true
//
// Full and empty are ordinary outcomes reported through the boolean results.
// Callers that want to wait must retry on their own.
package hpring

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrInvalidCapacity is returned by New when the slot count is not a power of
// two of at least 2.
var ErrInvalidCapacity = errors.New("hpring: slot count must be a power of two >= 2")

// RingBuffer is a bounded FIFO of T. It is safe for any number of producers
// and consumers.
//
// IsEmpty, IsFull, Len, FreeSlots and UsedSlots read the two cursors one after
// the other without a lock. Under concurrent use the result may already be
// stale when the caller acts on it; only the results of Enqueue and Dequeue
// are authoritative.
type RingBuffer[T any] struct {
	// head is the next slot a producer writes. Only changed under pushMu.
	head   atomic.Uint64
	pushMu sync.Mutex
	_      cpu.CacheLinePad

	// tail is the next slot a consumer reads. Only changed under popMu.
	tail  atomic.Uint64
	popMu sync.Mutex
	_     cpu.CacheLinePad

	slots []T
	mask  uint64
}

// New creates a ring buffer with the given number of slots. The slot count
// must be a power of two and at least 2; it is never rounded.
func New[T any](slots uint64) (*RingBuffer[T], error) {
	if slots < 2 || slots&(slots-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, slots)
	}
	return &RingBuffer[T]{
		slots: make([]T, slots),
		mask:  slots - 1,
	}, nil
}

// MustNew is like New but panics if the slot count is invalid.
func MustNew[T any](slots uint64) *RingBuffer[T] {
	rb, err := New[T](slots)
	if err != nil {
		panic(err)
	}
	return rb
}

func (rb *RingBuffer[T]) next(idx uint64) uint64 {
	return (idx + 1) & rb.mask
}

// Enqueue copies item into the buffer. It returns false, storing nothing, if
// the buffer is full.
func (rb *RingBuffer[T]) Enqueue(item T) bool {
	rb.pushMu.Lock()
	defer rb.pushMu.Unlock()

	head := rb.head.Load()
	next := rb.next(head)
	if next == rb.tail.Load() {
		return false
	}

	rb.slots[head] = item
	rb.head.Store(next)
	return true
}

// EnqueueMove moves *item into the buffer. On success *item is reset to the
// zero value, so the caller no longer holds the element. On failure (buffer
// full or nil item) *item is left as it was.
func (rb *RingBuffer[T]) EnqueueMove(item *T) bool {
	if item == nil {
		return false
	}

	rb.pushMu.Lock()
	defer rb.pushMu.Unlock()

	head := rb.head.Load()
	next := rb.next(head)
	if next == rb.tail.Load() {
		return false
	}

	var zero T
	rb.slots[head], *item = *item, zero
	rb.head.Store(next)
	return true
}

// Dequeue removes and returns the oldest element. If the buffer is empty it
// returns the zero value and false.
func (rb *RingBuffer[T]) Dequeue() (T, bool) {
	rb.popMu.Lock()
	defer rb.popMu.Unlock()

	var zero T
	tail := rb.tail.Load()
	if tail == rb.head.Load() {
		return zero, false
	}

	// Clear the slot so the buffer keeps no reference to the element.
	v := rb.slots[tail]
	rb.slots[tail] = zero
	rb.tail.Store(rb.next(tail))
	return v, true
}

// IsEmpty reports whether the buffer held no elements when the cursors were read.
func (rb *RingBuffer[T]) IsEmpty() bool {
	return rb.head.Load() == rb.tail.Load()
}

// IsFull reports whether the buffer held Cap elements when the cursors were read.
func (rb *RingBuffer[T]) IsFull() bool {
	return rb.next(rb.head.Load()) == rb.tail.Load()
}

// Len returns the number of stored elements. The subtraction is taken modulo
// the slot count, so it stays correct after the head wraps behind the tail.
func (rb *RingBuffer[T]) Len() uint64 {
	head := rb.head.Load()
	tail := rb.tail.Load()
	return (head - tail) & rb.mask
}

// Cap returns the number of elements the buffer can hold, one less than Slots.
func (rb *RingBuffer[T]) Cap() uint64 {
	return rb.mask
}

// Slots returns the physical slot count given to New.
func (rb *RingBuffer[T]) Slots() uint64 {
	return uint64(len(rb.slots))
}

// FreeSlots returns how many more elements can be enqueued before the buffer is full.
func (rb *RingBuffer[T]) FreeSlots() uint64 {
	return rb.Cap() - rb.Len()
}

// UsedSlots returns how many elements are currently queued.
func (rb *RingBuffer[T]) UsedSlots() uint64 {
	return rb.Len()
}
