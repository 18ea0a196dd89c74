package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"url-spider/pkg/extract"
	"url-spider/pkg/fetch"
	"url-spider/pkg/filter"
	"url-spider/pkg/models"
	"url-spider/pkg/parse"
	"url-spider/pkg/utils"
)

// admit runs the discovery pipeline for a canonical URL found at depth: filter, depth bound, dedup.
// It records a discovered entry and returns true only when the URL is new.
func (r *run) admit(canonical, raw, source string, ctx models.ExtractionContext, depth int) bool {
	if d := r.filter.Decide(canonical); d != filter.Accepted {
		r.result.Count(func(s *models.Stats) { s.FilterRejected++ })
		r.log.WithFields(logrus.Fields{"url": canonical, "decision": d}).Trace("Rejected by filter")
		return false
	}
	if depth > r.policy.MaxDepth {
		r.result.Count(func(s *models.Stats) { s.BeyondMaxDepth++ })
		return false
	}
	added, err := r.store.MarkVisited(canonical)
	if err != nil {
		r.log.WithField("url", canonical).Errorf("Visited set error, skipping URL: %v", err)
		return false
	}
	if !added {
		r.result.Count(func(s *models.Stats) { s.Duplicates++ })
		return false
	}
	r.result.AddDiscovered(models.DiscoveredURL{
		Canonical:  canonical,
		Raw:        raw,
		SourcePage: source,
		Context:    ctx,
		Depth:      depth,
	})
	return true
}

// fetchable reports whether an admitted URL may be fetched at all
func (r *run) fetchable(canonical string) bool {
	return parse.IsCrawlable(canonical) && !parse.HasExtension(canonical, r.opts.SkipExtensions)
}

// enqueue adds an admitted URL to the frontier when it can and should be fetched
func (r *run) enqueue(canonical string, depth int) {
	if !r.fetchable(canonical) {
		return
	}
	if r.capReached() || r.stopping() {
		return
	}
	r.tasks.Add(1)
	if !r.frontier.Add(models.FrontierEntry{URL: canonical, Depth: depth}) {
		r.tasks.Done()
	}
}

// errStopping marks a wait that ended because the run is shutting down
var errStopping = errors.New("run stopping")

// reserveSlot takes one unit of the page budget. False means the cap was already spent.
func (r *run) reserveSlot() bool {
	n := r.dispatched.Add(1)
	if r.policy.MaxPages <= 0 {
		return true
	}
	if n > int64(r.policy.MaxPages) {
		r.stop()
		return false
	}
	if n == int64(r.policy.MaxPages) {
		r.stop()
	}
	return true
}

// hostTurn waits for a host permit and the per-host delay. The returned release must be called once
// the request is done.
func (r *run) hostTurn(host string) (func(), error) {
	release := func() {}
	if r.opts.HostSemaphores != nil {
		rel, err := r.opts.HostSemaphores.Acquire(r.ctx, host, r.opts.SemaphoreTimeout)
		if err != nil {
			if r.ctx.Err() != nil {
				return nil, errStopping
			}
			return nil, err
		}
		release = rel
	}
	if r.opts.RateLimiter != nil {
		if err := r.opts.RateLimiter.Wait(r.ctx, host, r.opts.DelayPerHost); err != nil {
			release()
			return nil, errStopping
		}
	}
	return release, nil
}

// robotsBlocked records a robots.txt refusal and reports whether u may not be fetched
func (r *run) robotsBlocked(entry models.FrontierEntry, u *url.URL) bool {
	if !r.opts.RespectRobots || r.opts.Robots == nil || r.opts.Robots.Allowed(r.ctx, u) {
		return false
	}
	blocked := fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, entry.URL)
	r.result.AddBlocked(models.FailureRecord{
		URL:      entry.URL,
		Depth:    entry.Depth,
		Category: utils.CategorizeError(blocked),
		Detail:   blocked.Error(),
	})
	return true
}

// cancelledBeforeSend reports whether a fetch error only says the run was cancelled before any
// request went out
func (r *run) cancelledBeforeSend(err error) bool {
	if r.ctx.Err() == nil || !errors.Is(err, context.Canceled) {
		return false
	}
	var fe *fetch.FetchError
	return !errors.As(err, &fe) || fe.Attempts == 0
}

// responseBase returns the URL a fetched body's references resolve against. After a redirect that is
// the final URL, which must itself pass the filter; it is marked visited so a later link to it is not
// fetched again. ok is false when the redirect left the crawl scope.
func (r *run) responseBase(requested *url.URL, resp *models.FetchResponse, log *logrus.Entry) (*url.URL, bool) {
	if resp.FinalURL == "" || resp.FinalURL == requested.String() {
		return requested, true
	}
	canonical, final, err := parse.ParseAndNormalize(resp.FinalURL)
	if err != nil {
		return requested, true
	}
	if canonical == requested.String() {
		return final, true
	}
	if d := r.filter.Decide(canonical); d != filter.Accepted {
		r.result.Count(func(s *models.Stats) { s.FilterRejected++ })
		log.WithFields(logrus.Fields{"final_url": canonical, "decision": d}).Info("Redirected out of scope, not extracting")
		return final, false
	}
	if _, err := r.store.MarkVisited(canonical); err != nil {
		log.WithField("final_url", canonical).Errorf("Visited set error: %v", err)
	}
	return final, true
}

// extractLinks runs the extractor over a body, logging and counting what it had to give up on
func (r *run) extractLinks(body []byte, hint extract.MimeHint, base *url.URL, log *logrus.Entry) []extract.RawLink {
	links, warnings := extract.ExtractWithWarnings(body, hint, base)
	if len(warnings) > 0 {
		r.result.Count(func(s *models.Stats) { s.ExtractionWarnings += len(warnings) })
		for _, w := range warnings {
			log.WithFields(logrus.Fields{"hint": hint, "category": utils.CategorizeError(w)}).Debugf("Extraction warning: %v", w)
		}
	}
	return links
}

// discover admits the references found on source at depth and queues them. Up to scriptBudget newly
// admitted script assets are held back and returned for fetching within the current task.
func (r *run) discover(links []extract.RawLink, base *url.URL, source string, depth, scriptBudget int, log *logrus.Entry) []string {
	var scripts []string
	for _, link := range links {
		canonical, err := parse.Normalize(link.Raw, base)
		if err != nil {
			r.result.Count(func(s *models.Stats) { s.NormalizationErrors++ })
			log.WithField("raw", link.Raw).Tracef("Dropping unnormalizable reference: %v", err)
			continue
		}
		if !r.admit(canonical, link.Raw, source, link.Context, depth) {
			continue
		}
		if link.Context == models.ContextScriptSrc && len(scripts) < scriptBudget && r.fetchable(canonical) {
			scripts = append(scripts, canonical)
			continue
		}
		r.enqueue(canonical, depth)
	}
	return scripts
}

func (r *run) recordPage(entry models.FrontierEntry, resp *models.FetchResponse, linksFound int) {
	r.result.AddPage(models.PageRecord{
		URL:         entry.URL,
		FinalURL:    resp.FinalURL,
		Depth:       entry.Depth,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Bytes:       len(resp.Body),
		ContentHash: utils.HashBytes(resp.Body),
		LinksFound:  linksFound,
		Attempts:    resp.Attempts,
	})
}

// processEntry handles one frontier entry: robots, page slot, host limits, fetch, record, discover
func (r *run) processEntry(entry models.FrontierEntry, workerLog *logrus.Entry) {
	taskLog := workerLog.WithFields(logrus.Fields{"url": entry.URL, "depth": entry.Depth})
	startTime := time.Now()

	var taskErr error
	var skipped bool
	var linksFound int

	defer func() {
		if rec := recover(); rec != nil {
			taskErr = fmt.Errorf("panic: %v", rec)
			taskLog.WithFields(logrus.Fields{
				"panic_info":  rec,
				"duration":    time.Since(startTime).String(),
				"stage":       "PanicRecovery",
				"stack_trace": string(debug.Stack()),
			}).Error("PANIC recovered in processEntry")
			r.result.AddFailure(models.FailureRecord{
				URL:      entry.URL,
				Depth:    entry.Depth,
				Category: utils.CategorizeError(taskErr),
				Detail:   taskErr.Error(),
			})
		}

		logFields := logrus.Fields{"duration": time.Since(startTime).String()}
		switch {
		case taskErr != nil:
			logFields["category"] = utils.CategorizeError(taskErr)
			taskLog.WithFields(logFields).Warnf("Task failed: %v", taskErr)
		case skipped:
			taskLog.WithFields(logFields).Debug("Task skipped")
		default:
			logFields["links_found"] = linksFound
			taskLog.WithFields(logFields).Info("Task completed successfully")
		}
		r.tasks.Done()
	}()

	drop := func() {
		r.result.Count(func(s *models.Stats) { s.Dropped++ })
		skipped = true
	}

	// 1. Stop check: entries popped after close are discarded
	if r.stopping() {
		drop()
		return
	}

	parsed, err := url.Parse(entry.URL)
	if err != nil {
		taskErr = fmt.Errorf("%w: %w", utils.ErrNormalization, err)
		r.result.AddFailure(models.FailureRecord{URL: entry.URL, Depth: entry.Depth,
			Category: utils.CategorizeError(taskErr), Detail: taskErr.Error()})
		return
	}
	host := parsed.Hostname()
	taskLog = taskLog.WithField("host", host)

	// 2. Robots
	if r.robotsBlocked(entry, parsed) {
		taskLog.Info("Blocked by robots.txt")
		skipped = true
		return
	}

	// 3. Page slot
	if !r.reserveSlot() {
		drop()
		return
	}

	// 4. Host limits, held for the request only
	release, err := r.hostTurn(host)
	if err != nil {
		if errors.Is(err, errStopping) {
			drop()
			return
		}
		taskErr = err
		r.result.AddFailure(models.FailureRecord{URL: entry.URL, Depth: entry.Depth,
			Category: utils.CategorizeError(err), Detail: err.Error()})
		return
	}

	// 5. Fetch
	resp, err := r.fetcher.Fetch(r.ctx, entry.URL)
	release()
	if err != nil {
		if r.cancelledBeforeSend(err) {
			drop()
			return
		}
		taskErr = err
		r.result.AddFailure(failureRecord(entry, err))
		return
	}

	// 6. Extract, then record the page before its discoveries
	base, inScope := r.responseBase(parsed, resp, taskLog)
	var links []extract.RawLink
	if inScope {
		hint := extract.DetectMime(resp.ContentType, base, resp.Body)
		links = r.extractLinks(resp.Body, hint, base, taskLog)
	}
	linksFound = len(links)
	r.recordPage(entry, resp, linksFound)

	// 7. Discover
	childDepth := entry.Depth + 1
	scripts := r.discover(links, base, entry.URL, childDepth, r.opts.FetchScripts, taskLog)

	// 8. Script assets of this page
	for _, script := range scripts {
		linksFound += r.fetchScript(models.FrontierEntry{URL: script, Depth: childDepth}, entry.URL, taskLog)
	}
}

// fetchScript fetches a script asset found on page within the page's task. The script is recorded as a
// page at its own depth and its references are admitted at that same depth, so they land where the
// page's own links do. It returns the number of references found.
func (r *run) fetchScript(script models.FrontierEntry, page string, pageLog *logrus.Entry) int {
	scriptLog := pageLog.WithField("script", script.URL)
	if r.stopping() {
		r.result.Count(func(s *models.Stats) { s.Dropped++ })
		return 0
	}
	parsed, err := url.Parse(script.URL)
	if err != nil {
		return 0
	}
	if r.robotsBlocked(script, parsed) {
		scriptLog.Info("Script blocked by robots.txt")
		return 0
	}
	if !r.reserveSlot() {
		r.result.Count(func(s *models.Stats) { s.Dropped++ })
		return 0
	}

	release, err := r.hostTurn(parsed.Hostname())
	if err != nil {
		if errors.Is(err, errStopping) {
			r.result.Count(func(s *models.Stats) { s.Dropped++ })
			return 0
		}
		r.result.AddFailure(models.FailureRecord{URL: script.URL, Depth: script.Depth,
			Category: utils.CategorizeError(err), Detail: err.Error()})
		return 0
	}
	resp, err := r.fetcher.Fetch(r.ctx, script.URL)
	release()
	if err != nil {
		if r.cancelledBeforeSend(err) {
			r.result.Count(func(s *models.Stats) { s.Dropped++ })
			return 0
		}
		r.result.AddFailure(failureRecord(script, err))
		scriptLog.WithField("category", utils.CategorizeError(err)).Warnf("Script fetch failed: %v", err)
		return 0
	}

	base, inScope := r.responseBase(parsed, resp, scriptLog)
	var links []extract.RawLink
	if inScope {
		hint := extract.DetectMime(resp.ContentType, base, resp.Body)
		if hint == extract.MimeText {
			// bundles served as text/plain
			hint = extract.MimeJavaScript
		}
		links = r.extractLinks(resp.Body, hint, base, scriptLog)
	}
	r.recordPage(script, resp, len(links))
	r.discover(links, base, script.URL, script.Depth, 0, scriptLog)
	scriptLog.WithFields(logrus.Fields{"page": page, "links_found": len(links)}).Debug("Fetched script asset")
	return len(links)
}

// failureRecord converts a fetch error into a failure entry
func failureRecord(entry models.FrontierEntry, err error) models.FailureRecord {
	rec := models.FailureRecord{
		URL:      entry.URL,
		Depth:    entry.Depth,
		Kind:     models.FetchErrorConnection,
		Category: utils.CategorizeError(err),
		Detail:   err.Error(),
	}
	var fe *fetch.FetchError
	if errors.As(err, &fe) {
		rec.Kind = fe.Kind
		rec.StatusCode = fe.StatusCode
		rec.Attempts = fe.Attempts
	}
	return rec
}
