package queue

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/models"
)

// testLogger returns a log entry that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func entry(url string, depth int) models.FrontierEntry {
	return models.FrontierEntry{URL: url, Depth: depth}
}

// --- Basic Operations Tests ---

func TestNewDepthQueue(t *testing.T) {
	q := NewDepthQueue(testLogger())
	if q == nil {
		t.Fatal("NewDepthQueue() returned nil")
	}
	if q.Len() != 0 {
		t.Errorf("New queue Len() = %d, want 0", q.Len())
	}
	if q.Closed() {
		t.Error("New queue should not be closed")
	}
}

func TestDepthQueue_AddAndPop(t *testing.T) {
	q := NewDepthQueue(testLogger())

	if !q.Add(entry("http://example.com/", 0)) {
		t.Fatal("Add() on open queue returned false")
	}
	if q.Len() != 1 {
		t.Errorf("After Add, Len() = %d, want 1", q.Len())
	}

	got, ok := q.Pop()
	if !ok {
		t.Fatal("Pop() returned ok=false, want true")
	}
	if got.URL != "http://example.com/" || got.Depth != 0 {
		t.Errorf("Pop() = %+v", got)
	}
	if q.Len() != 0 {
		t.Errorf("After Pop, Len() = %d, want 0", q.Len())
	}
}

func TestDepthQueue_DepthOrdering(t *testing.T) {
	q := NewDepthQueue(testLogger())

	// Lower depth = higher priority (should be popped first)
	q.Add(entry("depth2", 2))
	q.Add(entry("depth0", 0))
	q.Add(entry("depth1", 1))
	q.Add(entry("depth3", 3))

	expectedOrder := []string{"depth0", "depth1", "depth2", "depth3"}
	for i, expected := range expectedOrder {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned ok=false", i)
		}
		if got.URL != expected {
			t.Errorf("Pop() #%d URL = %q, want %q", i, got.URL, expected)
		}
	}
}

func TestDepthQueue_FIFOWithinDepth(t *testing.T) {
	q := NewDepthQueue(testLogger())

	for i := 0; i < 20; i++ {
		q.Add(entry(fmt.Sprintf("d1-%02d", i), 1))
		q.Add(entry(fmt.Sprintf("d2-%02d", i), 2))
	}

	for depth := 1; depth <= 2; depth++ {
		for i := 0; i < 20; i++ {
			got, ok := q.Pop()
			if !ok {
				t.Fatal("Pop() returned ok=false")
			}
			want := fmt.Sprintf("d%d-%02d", depth, i)
			if got.URL != want {
				t.Fatalf("Pop() = %q, want %q", got.URL, want)
			}
		}
	}
}

// --- Close Tests ---

func TestDepthQueue_Close(t *testing.T) {
	q := NewDepthQueue(testLogger())
	q.Close()

	got, ok := q.Pop()
	if ok {
		t.Error("Pop() on closed empty queue returned ok=true, want false")
	}
	if got != (models.FrontierEntry{}) {
		t.Errorf("Pop() on closed empty queue returned %+v, want zero value", got)
	}
}

func TestDepthQueue_CloseWithItems(t *testing.T) {
	q := NewDepthQueue(testLogger())

	q.Add(entry("a", 0))
	q.Add(entry("b", 1))
	q.Close()

	// Existing items can still be popped
	for i := 0; i < 2; i++ {
		if _, ok := q.Pop(); !ok {
			t.Errorf("Pop() #%d after Close should return existing items", i)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on closed empty queue returned ok=true")
	}
}

func TestDepthQueue_AddAfterClose(t *testing.T) {
	q := NewDepthQueue(testLogger())
	q.Close()

	if q.Add(entry("test", 0)) {
		t.Error("Add() after Close returned true")
	}
	if q.Len() != 0 {
		t.Errorf("Add after Close: Len() = %d, want 0", q.Len())
	}
}

func TestDepthQueue_DoubleClose(t *testing.T) {
	q := NewDepthQueue(testLogger())
	q.Close()
	q.Close() // Should be safe
	if !q.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestDepthQueue_Drain(t *testing.T) {
	q := NewDepthQueue(testLogger())
	q.Add(entry("c", 2))
	q.Add(entry("a", 0))
	q.Add(entry("b", 1))
	q.Close()

	drained := q.Drain()
	if len(drained) != 3 {
		t.Fatalf("Drain() returned %d entries, want 3", len(drained))
	}
	for i, want := range []string{"a", "b", "c"} {
		if drained[i].URL != want {
			t.Errorf("Drain()[%d] = %q, want %q", i, drained[i].URL, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Len() after Drain = %d, want 0", q.Len())
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() after Drain on closed queue returned ok=true")
	}
}

// --- Blocking Behavior Tests ---

func TestDepthQueue_PopBlocks(t *testing.T) {
	q := NewDepthQueue(testLogger())

	resultChan := make(chan models.FrontierEntry, 1)
	go func() {
		got, ok := q.Pop() // This should block
		if ok {
			resultChan <- got
		} else {
			resultChan <- models.FrontierEntry{}
		}
	}()

	// Give goroutine time to start blocking
	time.Sleep(50 * time.Millisecond)

	select {
	case <-resultChan:
		t.Fatal("Pop() returned before Add(), should have blocked")
	default:
	}

	q.Add(entry("unblock", 0))

	select {
	case got := <-resultChan:
		if got.URL != "unblock" {
			t.Errorf("Pop() URL = %q, want %q", got.URL, "unblock")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Pop() did not return after Add()")
	}
}

func TestDepthQueue_CloseUnblocksWaiters(t *testing.T) {
	q := NewDepthQueue(testLogger())

	var wg sync.WaitGroup
	results := make(chan bool, 3)

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop() // Block waiting
			results <- ok
		}()
	}

	time.Sleep(50 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("Close() did not unblock waiting goroutines")
	}

	close(results)
	for ok := range results {
		if ok {
			t.Error("Blocked Pop() returned ok=true after Close()")
		}
	}
}

// --- Concurrency Tests ---

func TestDepthQueue_ConcurrentAddPop(t *testing.T) {
	q := NewDepthQueue(testLogger())

	var wg sync.WaitGroup
	numProducers := 5
	numConsumers := 3
	itemsPerProducer := 20
	totalItems := numProducers * itemsPerProducer

	var popped atomic.Int64

	for i := 0; i < numConsumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, ok := q.Pop(); !ok {
					return // Queue closed and empty
				}
				popped.Add(1)
			}
		}()
	}

	var producerWg sync.WaitGroup
	for i := 0; i < numProducers; i++ {
		producerWg.Add(1)
		go func(producerID int) {
			defer producerWg.Done()
			for j := 0; j < itemsPerProducer; j++ {
				q.Add(entry(fmt.Sprintf("p%d-%d", producerID, j), producerID))
			}
		}(i)
	}

	producerWg.Wait()
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Consumers did not finish in time")
	}

	if int(popped.Load()) != totalItems {
		t.Errorf("Popped %d items, want %d", popped.Load(), totalItems)
	}
}

func TestDepthQueue_LenAccuracy(t *testing.T) {
	q := NewDepthQueue(testLogger())

	for i := 0; i < 10; i++ {
		q.Add(entry("url", i))
		if q.Len() != i+1 {
			t.Errorf("After Add #%d, Len() = %d, want %d", i, q.Len(), i+1)
		}
	}

	for i := 10; i > 0; i-- {
		q.Pop()
		if q.Len() != i-1 {
			t.Errorf("After Pop (remaining=%d), Len() = %d, want %d", i-1, q.Len(), i-1)
		}
	}
}
