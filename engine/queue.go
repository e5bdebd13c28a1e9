// Package engine runs the filter variants concurrently over live sensor
// streams: bounded per-sensor queues on the intake side, one consumer
// goroutine per filter, lock-free pose snapshots on the output side.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/metrics"
	"github.com/rovermap/insd/types/sensor"
)

// Queue is a bounded FIFO of sensor readings with drop-oldest overflow.
// Producers never block: when the queue is full the oldest unread
// reading is discarded and the drop counter incremented. Fresh data
// always beats stale data for a real-time estimator.
type Queue struct {
	mu     sync.Mutex
	buf    []sensor.Reading
	head   int
	count  int
	drops  atomic.Uint64
	dropsM metrics.Meter
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		buf:    make([]sensor.Reading, size),
		dropsM: metrics.NewMeter(),
	}
}

// Push appends a reading, evicting the oldest when full.
func (q *Queue) Push(r sensor.Reading) {
	q.mu.Lock()
	if q.count == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		q.drops.Add(1)
		q.dropsM.Mark(1)
	}
	q.buf[(q.head+q.count)%len(q.buf)] = r
	q.count++
	q.mu.Unlock()
}

// Drain removes and returns every queued reading in arrival order.
func (q *Queue) Drain() []sensor.Reading {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	out := make([]sensor.Reading, q.count)
	for i := 0; i < q.count; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.head, q.count = 0, 0
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Drops returns the total readings discarded to overflow.
func (q *Queue) Drops() uint64 { return q.drops.Load() }
