package main

import (
	"fmt"
	"sync"

	ring "github.com/randomizedcoder/go-lock-free-ring"

	"github.com/i5heu/HPRingBuffer/internal/queue"
	"github.com/i5heu/HPRingBuffer/pkg/chanring"
	"github.com/i5heu/HPRingBuffer/pkg/hpring"
	"github.com/i5heu/HPRingBuffer/pkg/lockfree"
)

// Implementation represents a ring implementation under test.
type Implementation[T any] struct {
	name     string
	pkgName  string
	authors  []string
	features []string
	newQueue func(slots uint64) (queue.Ring[T], error)
}

func (impl Implementation[T]) hasFeature(feature string) bool {
	for _, f := range impl.features {
		if f == feature {
			return true
		}
	}
	return false
}

// getImplementations enumerates the ring implementations the harness can run.
func getImplementations() []Implementation[int] {
	return []Implementation[int]{
		{
			name:     "HPRingBuffer",
			pkgName:  "hpring",
			authors:  []string{"Mia Heidenstedt <heidenstedt.org>"},
			features: []string{"MPMC", "FIFO", "Move", "Exact-Capacity"},
			newQueue: func(slots uint64) (queue.Ring[int], error) {
				return hpring.New[int](slots)
			},
		},
		{
			name:     "LockFreeRing",
			pkgName:  "lockfree",
			authors:  []string{"Mia Heidenstedt <heidenstedt.org>"},
			features: []string{"MPMC", "FIFO", "Move", "Exact-Capacity", "Lock-Free"},
			newQueue: func(slots uint64) (queue.Ring[int], error) {
				return lockfree.New[int](slots)
			},
		},
		{
			name:     "Golang Buffered Channel",
			pkgName:  "chanring",
			authors:  []string{"Mia Heidenstedt <heidenstedt.org>"},
			features: []string{"MPMC", "FIFO", "Move", "Exact-Capacity"},
			newQueue: func(slots uint64) (queue.Ring[int], error) {
				return chanring.New[int](slots)
			},
		},
		{
			name:     "ShardedRing",
			pkgName:  "go-lock-free-ring",
			authors:  []string{"randomizedcoder"},
			features: []string{"MPMC", "Sharded"},
			newQueue: func(slots uint64) (queue.Ring[int], error) {
				return newShardedRing[int](slots)
			},
		},
	}
}

// selectImplementations keeps the implementations whose name or package is in
// names. An empty filter keeps all of them.
func selectImplementations[T any](impls []Implementation[T], names []string) []Implementation[T] {
	if len(names) == 0 {
		return impls
	}
	var out []Implementation[T]
	for _, impl := range impls {
		for _, n := range names {
			if n == impl.name || n == impl.pkgName {
				out = append(out, impl)
				break
			}
		}
	}
	return out
}

// shardedRing adapts the go-lock-free-ring MPSC ring to queue.Ring. Its
// reader side is single-consumer, so Dequeue is serialized here. Unlike the
// other rings it holds all slots, so Cap equals the slot count.
type shardedRing[T any] struct {
	r      *ring.ShardedRing
	readMu sync.Mutex
}

func newShardedRing[T any](slots uint64) (*shardedRing[T], error) {
	r, err := ring.NewShardedRing(slots, 1)
	if err != nil {
		return nil, err
	}
	return &shardedRing[T]{r: r}, nil
}

func (s *shardedRing[T]) Enqueue(v T) bool {
	return s.r.Write(0, v)
}

func (s *shardedRing[T]) Dequeue() (T, bool) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	var zero T
	v, ok := s.r.TryRead()
	if !ok {
		return zero, false
	}
	// Enqueue is the only writer, so anything else means the ring is shared.
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("shardedRing: read %T, want %T", v, zero))
	}
	return t, true
}

func (s *shardedRing[T]) Len() uint64       { return s.r.Len() }
func (s *shardedRing[T]) Cap() uint64       { return s.r.Cap() }
func (s *shardedRing[T]) IsEmpty() bool     { return s.Len() == 0 }
func (s *shardedRing[T]) IsFull() bool      { return s.Len() >= s.Cap() }
func (s *shardedRing[T]) FreeSlots() uint64 { return s.Cap() - min(s.Len(), s.Cap()) }
func (s *shardedRing[T]) UsedSlots() uint64 { return s.Len() }
