package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/fetch"
	"url-spider/pkg/filter"
	applog "url-spider/pkg/log"
	"url-spider/pkg/models"
	"url-spider/pkg/parse"
	"url-spider/pkg/queue"
	"url-spider/pkg/storage"
	"url-spider/pkg/utils"
)

// EngineOptions contains optional collaborators and tuning for NewEngine
type EngineOptions struct {
	Robots        *fetch.RobotsHandler // Required for RespectRobots and SeedSitemaps
	RespectRobots bool
	SeedSitemaps  bool // Queue robots.txt Sitemap: directives of seed hosts at depth 0

	// Discovered URLs with these extensions are recorded but never fetched
	SkipExtensions []string

	// FetchScripts is how many newly found script assets of a page are fetched within the page's task.
	// Their URLs are admitted at the page's child depth, as if the page itself linked to them.
	FetchScripts int

	HostSemaphores   *fetch.HostSemaphorePool
	SemaphoreTimeout time.Duration
	RateLimiter      *fetch.RateLimiter
	DelayPerHost     time.Duration

	ProgressInterval time.Duration
	OnProgress       func(Progress) // Called on every progress tick and once when the run ends

	GCInterval time.Duration // Visited-store compaction interval for stores that support it
}

// Progress is a point-in-time view of a running crawl
type Progress struct {
	RunID        string
	State        models.RunState
	Discovered   int
	PagesFetched int
	Failures     int
	Queued       int
	Visited      int
	Elapsed      time.Duration
}

// Engine runs the bounded, depth-limited traversal for one crawl
type Engine struct {
	policy  models.CrawlPolicy
	fetcher fetch.HTTPFetcher
	store   storage.VisitedSet
	log     *logrus.Entry
	opts    EngineOptions
}

// NewEngine creates an engine over the given policy, fetcher and visited set; log and opts may be nil
func NewEngine(policy models.CrawlPolicy, fetcher fetch.HTTPFetcher, store storage.VisitedSet, log *logrus.Entry, opts *EngineOptions) *Engine {
	if log == nil {
		log = applog.Discard()
	}
	e := &Engine{policy: policy, fetcher: fetcher, store: store, log: log}
	if opts != nil {
		e.opts = *opts
	}
	if e.policy.Concurrency <= 0 {
		e.policy.Concurrency = 1
	}
	if e.policy.MaxDepth < 0 {
		e.policy.MaxDepth = 0
	}
	if e.opts.ProgressInterval <= 0 {
		e.opts.ProgressInterval = 30 * time.Second
	}
	return e
}

// run holds the state of a single Run call
type run struct {
	*Engine
	ctx      context.Context
	log      *logrus.Entry
	result   *models.CrawlResult
	filter   *filter.Filter
	frontier *queue.DepthQueue

	tasks      sync.WaitGroup // One count per frontier entry until it is processed or dropped
	dispatched atomic.Int64   // Reserved page slots
	stopOnce   sync.Once
	stopCh     chan struct{} // Closed when the page cap is reached
}

func (r *run) stop() {
	r.stopOnce.Do(func() {
		r.log.Info("Page cap reached, stopping dispatch")
		close(r.stopCh)
	})
}

// stopping reports whether new work must no longer be enqueued or dispatched
func (r *run) stopping() bool {
	if r.ctx.Err() != nil {
		return true
	}
	select {
	case <-r.stopCh:
		return true
	default:
		return false
	}
}

func (r *run) capReached() bool {
	return r.policy.MaxPages > 0 && r.dispatched.Load() >= int64(r.policy.MaxPages)
}

// Run crawls from seeds and blocks until the frontier is exhausted, the page cap is hit or ctx is cancelled.
// The returned result is always non-nil. The only error is utils.ErrNoSeeds (or a filter compile error)
// raised before any fetch; cancellation is reported through the result's ABORTED state.
func (e *Engine) Run(ctx context.Context, seeds []string) (*models.CrawlResult, error) {
	result := models.NewCrawlResult()
	result.Seeds = append([]string(nil), seeds...)
	runLog := e.log.WithField("run_id", result.RunID)

	// --- Seed Validation ---
	type seedURL struct {
		raw       string
		canonical string
		parsed    *url.URL
	}
	var valid []seedURL
	var seedHosts []string
	var seedParsed []*url.URL
	for i, raw := range seeds {
		canonical, parsed, err := parse.ParseAndNormalize(raw)
		if err != nil || !parse.IsCrawlable(canonical) {
			runLog.WithFields(logrus.Fields{"index": i, "url": raw}).Warnf("Invalid seed URL, skipping: %v", err)
			result.Count(func(s *models.Stats) { s.NormalizationErrors++ })
			continue
		}
		valid = append(valid, seedURL{raw: raw, canonical: canonical, parsed: parsed})
		seedHosts = append(seedHosts, parsed.Hostname())
		seedParsed = append(seedParsed, parsed)
	}

	f, err := filter.New(e.policy, seedHosts)
	if err != nil {
		return result, fmt.Errorf("%w: %w", utils.ErrConfigValidation, err)
	}

	r := &run{
		Engine:   e,
		ctx:      ctx,
		log:      runLog,
		result:   result,
		filter:   f,
		frontier: queue.NewDepthQueue(runLog.WithField("component", "frontier")),
		stopCh:   make(chan struct{}),
	}

	accepted := 0
	for _, s := range valid {
		if !r.admit(s.canonical, s.raw, "", models.ContextSeed, 0) {
			continue
		}
		accepted++
		r.enqueue(s.canonical, 0)
	}
	if accepted == 0 {
		runLog.Error("No seed URL passed normalization and filtering")
		return result, utils.ErrNoSeeds
	}

	if e.opts.SeedSitemaps && e.opts.Robots != nil {
		r.seedSitemaps(seedParsed)
	}

	result.SetState(models.RunStateRunning)
	runLog.WithFields(logrus.Fields{
		"seeds":     accepted,
		"max_depth": e.policy.MaxDepth,
		"max_pages": e.policy.MaxPages,
	}).Infof("Crawl starting with %d worker(s)...", e.policy.Concurrency)

	// --- Background Helpers ---
	helperCtx, stopHelpers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHelpers()
	if gc, ok := e.store.(storage.GarbageCollector); ok && e.opts.GCInterval > 0 {
		go gc.RunGC(helperCtx, e.opts.GCInterval)
	}
	if e.opts.HostSemaphores != nil {
		go e.opts.HostSemaphores.RunEviction(helperCtx, time.Minute)
	}
	go r.reportProgress(helperCtx)

	// --- Workers ---
	var workers sync.WaitGroup
	for i := 1; i <= e.policy.Concurrency; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			r.worker(runLog.WithField("worker_id", id))
		}(i)
	}

	// --- Waiter ---
	tasksDone := make(chan struct{})
	go func() { r.tasks.Wait(); close(tasksDone) }()
	select {
	case <-tasksDone:
		runLog.Info("Waiter: all tasks finished")
	case <-r.stopCh:
		runLog.Info("Waiter: page cap reached, closing frontier")
	case <-ctx.Done():
		runLog.Warnf("Waiter: context cancelled (%v), closing frontier", ctx.Err())
	}
	r.frontier.Close()
	if dropped := r.frontier.Drain(); len(dropped) > 0 {
		runLog.Infof("Discarding %d queued frontier entries", len(dropped))
		result.Count(func(s *models.Stats) { s.Dropped += len(dropped) })
		for range dropped {
			r.tasks.Done()
		}
	}
	workers.Wait()

	if ctx.Err() != nil {
		result.SetState(models.RunStateAborted)
	} else {
		result.SetState(models.RunStateCompleted)
	}
	stopHelpers()
	r.notifyProgress()
	r.logSummary()
	return result, nil
}

// seedSitemaps queues the robots.txt Sitemap: directives of every distinct seed host
func (r *run) seedSitemaps(seeds []*url.URL) {
	seenHosts := make(map[string]bool, len(seeds))
	for _, u := range seeds {
		if seenHosts[u.Host] {
			continue
		}
		seenHosts[u.Host] = true
		for _, sm := range r.opts.Robots.Sitemaps(r.ctx, u) {
			canonical, err := parse.Normalize(sm, u)
			if err != nil {
				r.result.Count(func(s *models.Stats) { s.NormalizationErrors++ })
				continue
			}
			if r.admit(canonical, sm, "", models.ContextSitemapLoc, 0) {
				r.log.WithField("sitemap", canonical).Info("Queued sitemap from robots.txt")
				r.enqueue(canonical, 0)
			}
		}
	}
}

// worker pulls frontier entries until the queue is closed and empty
func (r *run) worker(workerLog *logrus.Entry) {
	workerLog.Debug("Worker starting")
	defer workerLog.Debug("Worker finished")

	for {
		entry, ok := r.frontier.Pop()
		if !ok {
			return
		}
		r.processEntry(entry, workerLog)
	}
}

// reportProgress logs a "Crawl Progress" line every ProgressInterval until ctx is done
func (r *run) reportProgress(ctx context.Context) {
	ticker := time.NewTicker(r.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p := r.progress()
			r.log.WithFields(logrus.Fields{
				"discovered":    p.Discovered,
				"pages_fetched": p.PagesFetched,
				"failures":      p.Failures,
				"queue_len":     p.Queued,
				"visited":       p.Visited,
			}).Info("Crawl Progress")
			if r.opts.OnProgress != nil {
				r.opts.OnProgress(p)
			}
		}
	}
}

func (r *run) progress() Progress {
	stats := r.result.Stats()
	return Progress{
		RunID:        r.result.RunID,
		State:        r.result.State(),
		Discovered:   stats.Discovered,
		PagesFetched: stats.PagesFetched,
		Failures:     stats.Failures + stats.RobotsBlocked,
		Queued:       r.frontier.Len(),
		Visited:      r.store.Count(),
		Elapsed:      r.result.Duration(),
	}
}

func (r *run) notifyProgress() {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(r.progress())
	}
}

func (r *run) logSummary() {
	stats := r.result.Stats()
	summaryLog := r.log.WithField("state", r.result.State())
	summaryLog.Info("========================================================================")
	summaryLog.Info("CRAWL FINISHED")
	summaryLog.Infof("Duration:         %v", r.result.Duration().Round(time.Millisecond))
	summaryLog.Infof("Final Stats: Discovered: %d, Pages: %d, Failures: %d, Robots Blocked: %d",
		stats.Discovered, stats.PagesFetched, stats.Failures, stats.RobotsBlocked)
	summaryLog.Infof("Dropped: Duplicates: %d, Filtered: %d, Beyond Depth: %d, Invalid: %d, Discarded: %d",
		stats.Duplicates, stats.FilterRejected, stats.BeyondMaxDepth, stats.NormalizationErrors, stats.Dropped)
	if stats.ExtractionWarnings > 0 {
		summaryLog.Infof("Extraction warnings: %d (partial results kept)", stats.ExtractionWarnings)
	}
	summaryLog.Info("========================================================================")
}
