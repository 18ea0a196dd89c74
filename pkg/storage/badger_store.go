package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"url-spider/pkg/log"
	"url-spider/pkg/utils"
)

const (
	visitedKeyPrefix = "visited:"   // Prefix for URL keys in DB
	visitedDBDir     = "visited_db" // Directory name prefix for per-run Badger DB files

	defaultExpectedItems = 100_000
	defaultFalsePositive = 0.01
	lockStripes          = 256
)

// BadgerStore implements VisitedSet on BadgerDB with a bloom filter in front of it.
// A bloom miss proves a URL is new, which lets MarkVisited skip the read. The database lives in a
// per-run directory that Close removes.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	dir      string // removed on Close; empty for in-memory mode
	keyCount atomic.Int64

	bloomMu sync.Mutex
	bloom   *bloom.BloomFilter

	// stripes serialize check-and-set per key so a bloom miss and a concurrent DB read cannot both claim a URL
	stripes [lockStripes]sync.Mutex
}

// NewBadgerStore opens a fresh per-run store
func NewBadgerStore(ctx context.Context, opts Options, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	expected := opts.ExpectedItems
	if expected == 0 {
		expected = defaultExpectedItems
	}
	fp := opts.FalsePositive
	if fp <= 0 || fp >= 1 {
		fp = defaultFalsePositive
	}
	store.bloom = bloom.NewWithEstimates(expected, fp)

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		logger.Info("Initializing in-memory visited URL database")
	} else {
		if opts.Dir != "" {
			if err := os.MkdirAll(opts.Dir, 0755); err != nil {
				return nil, fmt.Errorf("%w: cannot create state directory %s: %w", utils.ErrFilesystem, opts.Dir, err)
			}
		}
		dbPath, err := os.MkdirTemp(opts.Dir, visitedDBDir+"_*")
		if err != nil {
			return nil, fmt.Errorf("%w: cannot create visited DB directory: %w", utils.ErrFilesystem, err)
		}
		store.dir = dbPath
		badgerOpts = badger.DefaultOptions(dbPath)
		logger.Infof("Initializing visited URL database at: %s", dbPath)
	}
	badgerOpts = badgerOpts.
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(badgerOpts)
	if err != nil {
		store.removeDir()
		return nil, fmt.Errorf("%w: failed to open badger database: %w", utils.ErrDatabase, err)
	}

	if ctx.Err() != nil {
		_ = store.Close()
		return nil, ctx.Err()
	}

	logger.Info("Visited URL database initialized successfully.")
	return store, nil
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func (s *BadgerStore) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.stripes[h.Sum32()%lockStripes]
}

// MarkVisited implements VisitedSet
func (s *BadgerStore) MarkVisited(canonical string) (bool, error) {
	if s.db == nil || s.db.IsClosed() {
		return false, fmt.Errorf("%w: visited DB not initialized", utils.ErrDatabase)
	}

	lock := s.stripe(canonical)
	lock.Lock()
	defer lock.Unlock()

	s.bloomMu.Lock()
	maybeSeen := s.bloom.TestAndAddString(canonical)
	s.bloomMu.Unlock()

	key := []byte(visitedKeyPrefix + canonical)
	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		added = false
		if maybeSeen {
			_, errGet := txn.Get(key)
			if errGet == nil {
				return nil // Already visited
			}
			if !errors.Is(errGet, badger.ErrKeyNotFound) {
				return errGet
			}
		}
		if errSet := txn.SetEntry(badger.NewEntry(key, []byte{})); errSet != nil {
			return errSet
		}
		added = true
		return nil
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkVisited: %v", err)
		return false, fmt.Errorf("%w: marking key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}
	return added, nil
}

// Count implements VisitedSet.
// Returns the cached key count maintained by atomic increments on writes.
func (s *BadgerStore) Count() int {
	return int(s.keyCount.Load())
}

// RunGC runs BadgerDB's value log garbage collection periodically until ctx is done
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Debug("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				return
			}
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for err == nil {
				err = s.db.RunValueLogGC(0.5)
			}
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				s.log.Warnf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			s.log.Debugf("Stopping BadgerDB garbage collection goroutine: %v", ctx.Err())
			return
		}
	}
}

// Close implements VisitedSet; the on-disk directory is removed since visited state never outlives a run
func (s *BadgerStore) Close() error {
	var err error
	if s.db != nil && !s.db.IsClosed() {
		s.log.Debug("Closing visited DB...")
		if err = s.db.Close(); err != nil {
			s.log.Errorf("Error closing visited DB: %v", err)
			err = fmt.Errorf("%w: closing visited DB: %w", utils.ErrDatabase, err)
		}
	}
	s.removeDir()
	return err
}

// Dir returns the on-disk location, or "" in memory mode
func (s *BadgerStore) Dir() string {
	return s.dir
}

func (s *BadgerStore) removeDir() {
	if s.dir == "" {
		return
	}
	if err := os.RemoveAll(s.dir); err != nil {
		s.log.Warnf("Failed to remove visited DB directory %s: %v", s.dir, err)
		return
	}
	s.log.Debugf("Removed visited DB directory %s", filepath.Clean(s.dir))
	s.dir = ""
}
