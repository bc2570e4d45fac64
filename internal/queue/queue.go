package queue

// Ring is the non-blocking contract shared by every bounded buffer in this
// module. The harness only talks to buffers through it.
type Ring[T any] interface {
	// Enqueue adds an element. It returns false without storing anything if the ring is full.
	Enqueue(T) bool

	// Dequeue removes and returns the oldest element.
	// If the ring is empty it returns an empty T and false.
	Dequeue() (T, bool)

	// Len returns how many elements are currently queued. Advisory under concurrency.
	Len() uint64

	// Cap returns the maximum number of queued elements.
	Cap() uint64

	IsEmpty() bool
	IsFull() bool

	// FreeSlots returns how many more elements can be enqueued before the ring is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}

// MoveRing is a Ring that can also take ownership of an element through a
// pointer, zeroing the caller's copy only when the element was stored.
type MoveRing[T any] interface {
	Ring[T]
	EnqueueMove(*T) bool
}
