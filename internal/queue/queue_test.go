package queue_test

import (
	"github.com/i5heu/HPRingBuffer/internal/queue"
	"github.com/i5heu/HPRingBuffer/pkg/chanring"
	"github.com/i5heu/HPRingBuffer/pkg/hpring"
	"github.com/i5heu/HPRingBuffer/pkg/lockfree"
)

// Compile-time checks that every implementation satisfies the contract.
var (
	_ queue.MoveRing[int] = (*hpring.RingBuffer[int])(nil)
	_ queue.MoveRing[int] = (*lockfree.RingBuffer[int])(nil)
	_ queue.MoveRing[int] = (*chanring.ChanRing[int])(nil)
)
