package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces requests to the same host by a minimum delay.
// Each Wait reserves the host's next slot under the lock before sleeping, so concurrent callers for one
// host queue up one delay apart instead of all firing once the first delay elapses.
type RateLimiter struct {
	next         map[string]time.Time // hostname -> earliest start of the next request
	mu           sync.Mutex
	defaultDelay time.Duration // Used when Wait is called with a non-positive delay
	log          *logrus.Entry
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		next:         make(map[string]time.Time),
		defaultDelay: defaultDelay,
		log:          log,
	}
}

// Wait blocks until host may be contacted again, or ctx is done.
// The delay carries +/- 10% jitter to desynchronize workers.
func (rl *RateLimiter) Wait(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return nil
	}

	now := time.Now()
	rl.mu.Lock()
	slot, exists := rl.next[host]
	if !exists || slot.Before(now) {
		slot = now
	}
	rl.next[host] = slot.Add(jittered(minDelay))
	rl.mu.Unlock()

	sleep := slot.Sub(now)
	if sleep <= 0 {
		return nil
	}
	rl.log.WithFields(logrus.Fields{"host": host, "sleep": sleep, "required_delay": minDelay}).Debug("Rate limit applying sleep")

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Hosts returns the number of hosts with a recorded slot
func (rl *RateLimiter) Hosts() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.next)
}

func jittered(d time.Duration) time.Duration {
	jitterRange := int64(d) / 5 // 20% range width for +/-10%
	if jitterRange <= 0 {
		return d
	}
	out := d + time.Duration(rand.Int63n(jitterRange)) - d/10
	if out < 0 {
		return 0
	}
	return out
}
