package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/utils"
)

// VisitedSet holds the canonical URLs already queued or dispatched during one run
type VisitedSet interface {
	// MarkVisited atomically records canonical as visited
	// Returns true if the URL was newly added, false if it was already present
	MarkVisited(canonical string) (bool, error)

	// Count returns the number of URLs recorded so far
	Count() int

	// Close releases resources; the set must not be used afterwards
	Close() error
}

// GarbageCollector is implemented by stores that need periodic compaction during long runs
type GarbageCollector interface {
	RunGC(ctx context.Context, interval time.Duration)
}

// Store kinds accepted by Open
const (
	KindMemory = "memory"
	KindBadger = "badger"
)

// Options configures Open
type Options struct {
	Kind          string  // "memory" (default) or "badger"
	Dir           string  // Parent directory for the badger store; a temporary directory is used when empty
	InMemory      bool    // Run badger without touching disk
	ExpectedItems uint    // Sizing hint for the bloom pre-check
	FalsePositive float64 // Bloom false-positive rate
}

// Open creates the visited set selected by opts.Kind
func Open(ctx context.Context, opts Options, logger *logrus.Entry) (VisitedSet, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindBadger:
		return NewBadgerStore(ctx, opts, logger)
	}
	return nil, fmt.Errorf("%w: unknown visited store kind '%s'", utils.ErrConfigValidation, opts.Kind)
}
