package node

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"vectornav-ng/internal/vn"
)

// Backpressure selects what Push does when the queue is full.
type Backpressure int

const (
	// DropOldest discards the oldest queued frame to make room.
	DropOldest Backpressure = iota
	// Block waits up to the block timeout, then discards the incoming frame.
	Block
)

func (b Backpressure) String() string {
	if b == Block {
		return "block"
	}
	return "drop-oldest"
}

// FrameQueue decouples the sensor's reception goroutine from the relay.
// Push never blocks for longer than the block timeout.
type FrameQueue struct {
	ch      chan vn.Packet
	policy  Backpressure
	timeout time.Duration
	clk     clock.Clock

	// Serializes producers so drop-oldest cannot race itself.
	mu sync.Mutex

	pushed  atomic.Uint64
	dropped atomic.Uint64
}

func NewFrameQueue(size int, policy Backpressure, timeout time.Duration, clk clock.Clock) *FrameQueue {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	if clk == nil {
		clk = clock.New()
	}
	return &FrameQueue{
		ch:      make(chan vn.Packet, size),
		policy:  policy,
		timeout: timeout,
		clk:     clk,
	}
}

// Push enqueues p and reports whether p itself was queued. Under DropOldest
// p is always queued, possibly at the expense of an older frame.
func (q *FrameQueue) Push(p vn.Packet) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed.Add(1)

	select {
	case q.ch <- p:
		return true
	default:
	}

	if q.policy == Block {
		t := q.clk.Timer(q.timeout)
		defer t.Stop()
		select {
		case q.ch <- p:
			return true
		case <-t.C:
			q.dropped.Add(1)
			return false
		}
	}

	for {
		select {
		case q.ch <- p:
			return true
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// C is the consumer side.
func (q *FrameQueue) C() <-chan vn.Packet { return q.ch }

func (q *FrameQueue) Len() int { return len(q.ch) }

func (q *FrameQueue) Cap() int { return cap(q.ch) }

// Pushed counts every frame offered to the queue.
func (q *FrameQueue) Pushed() uint64 { return q.pushed.Load() }

// Dropped counts frames lost to back-pressure.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }
