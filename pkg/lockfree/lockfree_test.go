package lockfree

import (
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/eapache/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesSlots(t *testing.T) {
	for _, slots := range []uint64{0, 1, 3, 10, 1023} {
		_, err := New[int](slots)
		assert.True(t, errors.Is(err, ErrInvalidCapacity), "slots=%d", slots)
	}
	q, err := New[int](16)
	require.NoError(t, err)
	assert.Equal(t, uint64(16), q.Slots())
	assert.Equal(t, uint64(15), q.Cap())
	assert.Panics(t, func() { MustNew[int](6) })
}

func TestFourSlotScenario(t *testing.T) {
	q := MustNew[string](4)
	assert.True(t, q.Enqueue("A"))
	assert.True(t, q.Enqueue("B"))
	assert.True(t, q.Enqueue("C"))
	assert.True(t, q.IsFull())
	assert.False(t, q.Enqueue("D"))

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "A", v)
	assert.True(t, q.Enqueue("D"))

	for _, want := range []string{"B", "C", "D"} {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = q.Dequeue()
	assert.False(t, ok)
	assert.True(t, q.IsEmpty())
}

func TestEnqueueMove(t *testing.T) {
	q := MustNew[[]byte](2)
	a := []byte("a")
	require.True(t, q.EnqueueMove(&a))
	assert.Nil(t, a)

	b := []byte("b")
	assert.False(t, q.EnqueueMove(&b))
	assert.Equal(t, []byte("b"), b)
	assert.False(t, q.EnqueueMove(nil))
}

func TestDequeueClearsCell(t *testing.T) {
	q := MustNew[*int](4)
	v := 1
	require.True(t, q.Enqueue(&v))
	_, ok := q.Dequeue()
	require.True(t, ok)
	for i := range q.buffer {
		assert.Nil(t, q.buffer[i].value)
	}
}

func TestMatchesReferenceQueue(t *testing.T) {
	const slots = 8
	q := MustNew[int](slots)
	ref := queue.New()
	r := rand.New(rand.NewSource(7))

	for step := 0; step < 50000; step++ {
		if r.Intn(2) == 0 {
			ok := q.Enqueue(step)
			require.Equal(t, ref.Length() < slots-1, ok, "step %d", step)
			if ok {
				ref.Add(step)
			}
		} else {
			v, ok := q.Dequeue()
			require.Equal(t, ref.Length() > 0, ok, "step %d", step)
			if ok {
				require.Equal(t, ref.Remove(), v, "step %d", step)
			}
		}
		require.Equal(t, uint64(ref.Length()), q.Len(), "step %d", step)
	}
}

func TestConcurrentNoLossNoDuplication(t *testing.T) {
	const (
		numProducers = 4
		numConsumers = 4
		perProducer  = 20000
		total        = numProducers * perProducer
	)
	q := MustNew[int](64)

	var prodWg sync.WaitGroup
	for p := 0; p < numProducers; p++ {
		prodWg.Add(1)
		go func(p int) {
			defer prodWg.Done()
			for j := 0; j < perProducer; j++ {
				for !q.Enqueue(p*perProducer + j) {
					runtime.Gosched()
				}
			}
		}(p)
	}

	var received [total]atomic.Int32
	var count atomic.Int64
	var consWg sync.WaitGroup
	for c := 0; c < numConsumers; c++ {
		consWg.Add(1)
		go func() {
			defer consWg.Done()
			for count.Load() < total {
				v, ok := q.Dequeue()
				if !ok {
					runtime.Gosched()
					continue
				}
				received[v].Add(1)
				count.Add(1)
			}
		}()
	}
	prodWg.Wait()
	consWg.Wait()

	for v := 0; v < total; v++ {
		require.Equal(t, int32(1), received[v].Load(), "value %d", v)
	}
	assert.True(t, q.IsEmpty())
}

func TestLenNeverExceedsCap(t *testing.T) {
	q := MustNew[int](16)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					q.Enqueue(1)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					q.Dequeue()
				}
			}
		}()
	}
	for i := 0; i < 100000; i++ {
		if n := q.Len(); n > q.Cap() {
			t.Errorf("Len %d exceeds Cap %d", n, q.Cap())
			break
		}
	}
	close(stop)
	wg.Wait()
}

// Producers racing on a ring that never fills must never see a refusal:
// losing a CAS only means another enqueue went first.
func TestContendedEnqueueNeverRefusesBelowCap(t *testing.T) {
	const (
		numProducers = 16
		perProducer  = 4000
	)
	q := MustNew[int](1 << 17)
	require.Less(t, uint64(numProducers*perProducer), q.Cap())

	var refused atomic.Int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(p int) {
			defer wg.Done()
			<-start
			for j := 0; j < perProducer; j++ {
				if !q.Enqueue(p*perProducer + j) {
					refused.Add(1)
				}
			}
		}(p)
	}
	close(start)
	wg.Wait()

	assert.Zero(t, refused.Load(), "Enqueue returned false on a ring that was never full")
	assert.Equal(t, uint64(numProducers*perProducer), q.Len())
}

// Consumers racing on a pre-filled ring must never see empty before it drains.
func TestContendedDequeueNeverEmptyWhileFilled(t *testing.T) {
	const (
		numConsumers = 16
		perConsumer  = 4000
		total        = numConsumers * perConsumer
	)
	q := MustNew[int](1 << 17)
	for i := 0; i < total; i++ {
		require.True(t, q.Enqueue(i))
	}

	var empty atomic.Int64
	var received [total]atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(numConsumers)
	for c := 0; c < numConsumers; c++ {
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perConsumer; j++ {
				v, ok := q.Dequeue()
				if !ok {
					empty.Add(1)
					continue
				}
				received[v].Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Zero(t, empty.Load(), "Dequeue reported empty on a ring that still held elements")
	for v := 0; v < total; v++ {
		require.Equal(t, int32(1), received[v].Load(), "value %d", v)
	}
	assert.True(t, q.IsEmpty())
}
