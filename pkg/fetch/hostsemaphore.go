package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"url-spider/pkg/utils"
)

// hostEntry tracks a single host's semaphore and its usage state.
type hostEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // number of held + waiting permits
	lastRelease time.Time // zero if never released
}

// HostSemaphorePool caps concurrent requests per host across all workers of a run.
type HostSemaphorePool struct {
	entries map[string]*hostEntry
	mu      sync.Mutex
	limit   int64
	log     *logrus.Entry
}

// NewHostSemaphorePool creates a new pool with the given per-host concurrency limit.
func NewHostSemaphorePool(maxPerHost int, log *logrus.Entry) *HostSemaphorePool {
	limit := int64(maxPerHost)
	if limit <= 0 {
		limit = 2
		log.Warnf("max_requests_per_host invalid or zero, defaulting to %d", limit)
	}
	return &HostSemaphorePool{
		entries: make(map[string]*hostEntry),
		limit:   limit,
		log:     log,
	}
}

// Acquire takes one permit for host and returns the function that gives it back.
// A non-positive timeout waits as long as ctx allows; otherwise running out of time yields utils.ErrSemaphoreTimeout.
func (p *HostSemaphorePool) Acquire(ctx context.Context, host string, timeout time.Duration) (release func(), err error) {
	p.mu.Lock()
	entry, exists := p.entries[host]
	if !exists {
		entry = &hostEntry{sem: semaphore.NewWeighted(p.limit)}
		p.entries[host] = entry
		p.log.WithFields(logrus.Fields{"host": host, "limit": p.limit}).Debug("Created new host semaphore")
	}
	entry.activeCount++
	p.mu.Unlock()

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := entry.sem.Acquire(acquireCtx, 1); err != nil {
		p.mu.Lock()
		entry.activeCount--
		p.mu.Unlock()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: host %s after %v", utils.ErrSemaphoreTimeout, host, timeout)
		}
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(func() { p.release(host, entry) }) }, nil
}

func (p *HostSemaphorePool) release(host string, entry *hostEntry) {
	p.mu.Lock()
	entry.activeCount--
	entry.lastRelease = time.Now()
	p.mu.Unlock()

	entry.sem.Release(1)
	p.log.WithField("host", host).Trace("Released host semaphore")
}

// RunEviction periodically removes idle host entries until ctx is done.
func (p *HostSemaphorePool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			p.log.Debugf("Stopping host semaphore eviction: %v", ctx.Err())
			return
		}
	}
}

// evictIdle removes entries that have been idle longer than maxIdle.
func (p *HostSemaphorePool) evictIdle(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	evicted := 0
	for host, entry := range p.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(p.entries, host)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle host semaphores, %d remain", evicted, len(p.entries))
	}
}

// Len returns the current number of tracked hosts.
func (p *HostSemaphorePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Busy returns the number of held or awaited permits per host, for progress reporting
func (p *HostSemaphorePool) Busy() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.entries))
	for host, entry := range p.entries {
		if entry.activeCount > 0 {
			out[host] = entry.activeCount
		}
	}
	return out
}
