package queue

import (
	"container/heap"
	"sync"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/models"
)

// --- Depth Heap Implementation ---

// frontierItem is one entry in the heap
type frontierItem struct {
	entry models.FrontierEntry
	seq   uint64 // Insertion order, breaks ties between equal depths (FIFO)
	index int    // The index of the item in the heap (required by heap interface)
}

// depthHeap implements heap.Interface ordered by (depth, seq)
type depthHeap []*frontierItem

func (h depthHeap) Len() int { return len(h) }

func (h depthHeap) Less(i, j int) bool {
	// Pop should return the shallowest item; among equals, the oldest
	if h[i].entry.Depth != h[j].entry.Depth {
		return h[i].entry.Depth < h[j].entry.Depth
	}
	return h[i].seq < h[j].seq
}

func (h depthHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push adds an element to the heap
func (h *depthHeap) Push(x any) {
	item := x.(*frontierItem)
	item.index = len(*h)
	*h = append(*h, item)
}

// Pop removes and returns the last element; heap.Pop has already moved the minimum there
func (h *depthHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	*h = old[0 : n-1]
	return item
}

// DepthQueue is the crawl frontier: a blocking, closable queue that always hands out the shallowest entry
type DepthQueue struct {
	h      depthHeap
	mu     sync.Mutex
	cond   *sync.Cond // Condition variable to wait for items
	closed bool
	seq    uint64
	log    *logrus.Entry
}

// NewDepthQueue creates an empty frontier
func NewDepthQueue(log *logrus.Entry) *DepthQueue {
	q := &DepthQueue{log: log}
	q.cond = sync.NewCond(&q.mu) // Initialize condition variable
	heap.Init(&q.h)
	return q
}

// Add pushes an entry; it returns false (and drops the entry) when the queue is already closed
func (q *DepthQueue) Add(entry models.FrontierEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Debugf("Frontier closed, dropping entry: %s (depth %d)", entry.URL, entry.Depth)
		return false
	}

	heap.Push(&q.h, &frontierItem{entry: entry, seq: q.seq})
	q.seq++
	q.cond.Signal() // Signal one waiting worker that an item is available
	return true
}

// Pop retrieves the shallowest entry, blocking while the queue is empty and open.
// Returns false once the queue is closed and empty.
func (q *DepthQueue) Pop() (models.FrontierEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.h) == 0 {
		if q.closed {
			return models.FrontierEntry{}, false
		}
		// Wait releases the lock and waits for a Signal/Broadcast; reacquires lock upon waking
		q.cond.Wait()
	}

	item := heap.Pop(&q.h).(*frontierItem)
	return item.entry, true
}

// Close stops the queue from accepting entries and wakes all waiting workers.
// Entries already queued can still be popped or drained.
func (q *DepthQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast() // Wake up ALL waiting workers so they can check the closed status
	}
}

// Drain removes and returns every queued entry in pop order
func (q *DepthQueue) Drain() []models.FrontierEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.FrontierEntry, 0, len(q.h))
	for len(q.h) > 0 {
		out = append(out, heap.Pop(&q.h).(*frontierItem).entry)
	}
	return out
}

// Len returns the current number of queued entries
func (q *DepthQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Closed reports whether Close has been called
func (q *DepthQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
