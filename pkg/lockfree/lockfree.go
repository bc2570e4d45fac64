package lockfree

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// maxWaits bounds how often an operation waits on a cell that a peer has
// claimed but not finished. Lost CAS races are not counted: each one means
// another operation completed.
const maxWaits = 16

var ErrInvalidCapacity = errors.New("lockfree: slot count must be a power of two >= 2")

// cell represents one slot in the ring buffer.
// sequence == pos means free for the enqueue at pos,
// sequence == pos+1 means filled for the dequeue at pos.
type cell[T any] struct {
	sequence atomic.Uint64
	value    T
}

// RingBuffer is a bounded, lock-free, multi-producer/multi-consumer ring.
// It holds at most Slots()-1 elements so that it reports full and empty at
// the same points as hpring.RingBuffer.
type RingBuffer[T any] struct {
	_          cpu.CacheLinePad
	enqueuePos atomic.Uint64
	_          cpu.CacheLinePad
	dequeuePos atomic.Uint64
	_          cpu.CacheLinePad
	buffer     []cell[T]
	mask       uint64
	slots      uint64
}

// New creates a RingBuffer with the given slot count, which must be a power of two.
func New[T any](slots uint64) (*RingBuffer[T], error) {
	if slots < 2 || slots&(slots-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, slots)
	}
	q := &RingBuffer[T]{
		buffer: make([]cell[T], slots),
		mask:   slots - 1,
		slots:  slots,
	}
	for i := uint64(0); i < slots; i++ {
		q.buffer[i].sequence.Store(i)
	}
	return q, nil
}

func MustNew[T any](slots uint64) *RingBuffer[T] {
	q, err := New[T](slots)
	if err != nil {
		panic(err)
	}
	return q
}

// Enqueue inserts a value. It returns false if the ring is full, or if the
// slot it needs is still being released by a consumer after maxWaits yields.
// hpring reports full in the same situation, since its tail is published
// only after the slot is cleared.
func (q *RingBuffer[T]) Enqueue(val T) bool {
	waits := 0
	for {
		pos := q.enqueuePos.Load()
		used := int64(pos - q.dequeuePos.Load())
		if used < 0 {
			// pos went stale while consumers moved past it.
			continue
		}
		if uint64(used) >= q.mask {
			return false
		}

		c := &q.buffer[pos&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq - pos); {
		case diff == 0:
			if q.enqueuePos.CompareAndSwap(pos, pos+1) {
				c.value = val
				c.sequence.Store(pos + 1)
				return true
			}
			// CAS failed due to contention, retry immediately
		case diff < 0:
			// A consumer has claimed the previous lap but not released the cell yet.
			if waits++; waits >= maxWaits {
				return false
			}
			runtime.Gosched()
		}
	}
}

// EnqueueMove stores *val and zeroes it. *val is untouched if nothing was stored.
func (q *RingBuffer[T]) EnqueueMove(val *T) bool {
	if val == nil || !q.Enqueue(*val) {
		return false
	}
	var zero T
	*val = zero
	return true
}

// Dequeue removes and returns a value from the ring. It reports empty when
// nothing was enqueued, or when the next cell is still being written by a
// producer after maxWaits yields, matching hpring's unpublished head.
func (q *RingBuffer[T]) Dequeue() (T, bool) {
	var zero T
	waits := 0
	for {
		pos := q.dequeuePos.Load()
		c := &q.buffer[pos&q.mask]
		seq := c.sequence.Load()
		switch diff := int64(seq - (pos + 1)); {
		case diff == 0:
			if q.dequeuePos.CompareAndSwap(pos, pos+1) {
				ret := c.value
				c.value = zero
				// Mark the cell free for the enqueue one lap ahead.
				c.sequence.Store(pos + q.slots)
				return ret, true
			}
			// CAS failed due to contention, retry immediately
		case diff < 0:
			if q.enqueuePos.Load() == pos {
				return zero, false
			}
			// Claimed by a producer that has not published yet.
			if waits++; waits >= maxWaits {
				return zero, false
			}
			runtime.Gosched()
		}
	}
}

// Len returns an approximate count of queued elements, clamped to [0, Cap].
func (q *RingBuffer[T]) Len() uint64 {
	deq := q.dequeuePos.Load()
	enq := q.enqueuePos.Load()
	if n := enq - deq; n < q.mask {
		return n
	}
	return q.mask
}

func (q *RingBuffer[T]) Cap() uint64       { return q.mask }
func (q *RingBuffer[T]) Slots() uint64     { return q.slots }
func (q *RingBuffer[T]) IsEmpty() bool     { return q.Len() == 0 }
func (q *RingBuffer[T]) IsFull() bool      { return q.Len() == q.mask }
func (q *RingBuffer[T]) FreeSlots() uint64 { return q.mask - q.Len() }
func (q *RingBuffer[T]) UsedSlots() uint64 { return q.Len() }
