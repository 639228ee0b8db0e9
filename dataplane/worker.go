package dataplane

import (
	"sync"
	"time"
)

// WorkItem is a single queued invocation: a callback closed over its packet
// copy (spec §3, §4.3).
type WorkItem struct {
	Run func()
}

// Worker is the single-producer/single-consumer ordered dispatch queue
// described in spec §4.3 (component C3). Items execute strictly in enqueue
// order, one at a time, on a dedicated consumer goroutine that blocks with a
// ~1s timeout and polls a cooperative stop flag on every wakeup (spec §5).
//
// The wake signal is a buffered channel of capacity 1 — the standard Go
// counting-semaphore idiom for "at least one item is ready" — rather than
// golang.org/x/sync/semaphore.Weighted: that type's Acquire blocks while the
// semaphore is full, which fits bounding concurrent work (used for callback
// pool D, see control.CallbackPool) but not a zero-initialized "wake me when
// something arrives" signal.
type Worker struct {
	mu       sync.Mutex
	items    []WorkItem
	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

const pollTimeout = time.Second

// NewWorker creates a Worker and starts its consumer on an ordinary
// goroutine. The consumer is not pinned with rtsched: it runs at normal
// scheduling priority, not at the data-plane read loop's real-time priority
// minus 8.
func NewWorker() *Worker {
	w := &Worker{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.consume()
	return w
}

// Enqueue appends item to the tail of the queue and wakes the consumer.
func (w *Worker) Enqueue(item WorkItem) {
	w.mu.Lock()
	w.items = append(w.items, item)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) consume() {
	defer close(w.done)

	for {
		select {
		case <-w.stop:
			return
		case <-w.wake:
			w.drain()
		case <-time.After(pollTimeout):
			select {
			case <-w.stop:
				return
			default:
			}
		}
	}
}

// drain runs every item currently queued, strictly in enqueue order, before
// returning to wait for the next wake-up.
func (w *Worker) drain() {
	for {
		w.mu.Lock()
		if len(w.items) == 0 {
			w.mu.Unlock()
			return
		}
		item := w.items[0]
		w.items = w.items[1:]
		w.mu.Unlock()

		item.Run()

		select {
		case <-w.stop:
			return
		default:
		}
	}
}

// Stop requests cooperative shutdown and blocks until the consumer has
// exited, so callers can rely on "no work item executes after Stop
// returns" (spec §8 invariant 10).
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Pending reports the current queue depth; useful for tests and metrics.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}
