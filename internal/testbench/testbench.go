package testbench

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/HPRingBuffer/internal/queue"
)

// yieldEvery is how many consecutive full/empty results a retry loop absorbs
// before it yields the processor.
const yieldEvery = 64

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int `yaml:"producers" json:"producers"`
	NumConsumers int `yaml:"consumers" json:"consumers"`
}

// Result is what a harness run reports.
type Result struct {
	Produced int64
	Consumed int64
	// FullRetries and EmptyRetries count Enqueue calls that returned false
	// and Dequeue calls that found nothing.
	FullRetries  int64
	EmptyRetries int64
	Elapsed      time.Duration
}

// Throughput returns consumed messages per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Consumed) / r.Elapsed.Seconds()
}

// backoff is the caller-side retry policy: spin, and give up the processor
// every yieldEvery misses so the other side can run with GOMAXPROCS=1.
func backoff(misses int64) {
	if misses%yieldEvery == 0 {
		runtime.Gosched()
	}
}

// RunFixedCount moves exactly count values through q with one producer
// goroutine and one consumer goroutine. Both retry until they have done
// their share, so the run always completes unless q loses elements.
func RunFixedCount[T any, Q queue.Ring[T]](
	q Q,
	count int64,
	valueGenerator func(int) T,
) Result {
	var res Result
	var wg sync.WaitGroup
	wg.Add(2)

	start := time.Now()

	go func() {
		defer wg.Done()
		var misses int64
		for i := int64(0); i < count; i++ {
			msg := valueGenerator(int(i))
			for !q.Enqueue(msg) {
				misses++
				backoff(misses)
			}
		}
		res.Produced = count
		res.FullRetries = misses
	}()

	go func() {
		defer wg.Done()
		var misses int64
		var received int64
		for received < count {
			if _, ok := q.Dequeue(); ok {
				received++
				continue
			}
			misses++
			backoff(misses)
		}
		res.Consumed = received
		res.EmptyRetries = misses
	}()

	wg.Wait()
	res.Elapsed = time.Since(start)
	return res
}

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Once the context expires, producers stop and consumers
// drain any remaining messages in the queue.
func RunTimedTest[T any, Q queue.Ring[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var totalProduced, totalConsumed atomic.Int64
	var fullRetries, emptyRetries atomic.Int64
	var msgIndex atomic.Int64

	// productionDone is set once the test duration expires.
	var productionDone atomic.Bool

	go func() {
		<-ctx.Done()
		productionDone.Store(true)
	}()

	var activeProducers atomic.Int32
	activeProducers.Store(int32(cfg.NumProducers))

	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			defer activeProducers.Add(-1)
			var misses int64
			defer func() { fullRetries.Add(misses) }()
			for !productionDone.Load() {
				msg := valueGenerator(int(msgIndex.Add(1) - 1))
				for !q.Enqueue(msg) {
					if productionDone.Load() {
						return
					}
					misses++
					backoff(misses)
				}
				totalProduced.Add(1)
			}
		}()
	}

	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			var misses int64
			defer func() { emptyRetries.Add(misses) }()
			for {
				// Read before dequeuing: every enqueue of a finished
				// producer is visible once its exit is.
				drained := activeProducers.Load() == 0
				if _, ok := q.Dequeue(); ok {
					totalConsumed.Add(1)
					continue
				}
				if drained {
					return
				}
				misses++
				backoff(misses)
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()
	consWg.Wait()

	return Result{
		Produced:     totalProduced.Load(),
		Consumed:     totalConsumed.Load(),
		FullRetries:  fullRetries.Load(),
		EmptyRetries: emptyRetries.Load(),
		Elapsed:      time.Since(start),
	}
}
