package audio

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/murmur/internal/pcm"
)

// OverflowPolicy names what the capture queue does when it is full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued frame and counts the drop. The producer never blocks.
	DropOldest OverflowPolicy = iota
)

// CaptureOverflow is the policy every Capture uses.
const CaptureOverflow = DropOldest

// frameQueue is a bounded FIFO between the device callback and readers.
type frameQueue struct {
	ch chan pcm.Frame

	mu     sync.Mutex
	closed bool
	drops  atomic.Uint64
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{ch: make(chan pcm.Frame, capacity)}
}

// push enqueues f, evicting the oldest frames while full. It returns how many were evicted.
func (q *frameQueue) push(f pcm.Frame) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}

	dropped := 0
	for {
		select {
		case q.ch <- f:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped++
			q.drops.Add(1)
		default:
		}
	}
}

// close stops further pushes. Queued frames stay readable.
func (q *frameQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

func (q *frameQueue) tryPop() (pcm.Frame, bool) {
	select {
	case f, ok := <-q.ch:
		return f, ok
	default:
		return pcm.Frame{}, false
	}
}

func (q *frameQueue) pop() (pcm.Frame, bool) {
	f, ok := <-q.ch
	return f, ok
}

func (q *frameQueue) popTimeout(timeout time.Duration) (pcm.Frame, bool) {
	if timeout <= 0 {
		return q.tryPop()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case f, ok := <-q.ch:
		return f, ok
	case <-timer.C:
		return pcm.Frame{}, false
	}
}

func (q *frameQueue) len() int {
	return len(q.ch)
}

func (q *frameQueue) dropped() uint64 {
	return q.drops.Load()
}
